// Package events is an in-memory pub/sub bus for per-request completion
// outcomes. The SSE feed built on it backs the extension's debug panel; user
// keystroke text never appears in events, only request metadata.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventCompletionServed EventType = "completion_served"
	EventNoSuggestion     EventType = "no_suggestion"
	EventRateLimited      EventType = "rate_limited"
	EventUpstreamError    EventType = "upstream_error"
	EventBreakerChange    EventType = "breaker_change"
)

// Event is a single completion outcome published on the bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Completion fields.
	CacheStatus    string  `json:"cache_status,omitempty"` // hit, miss, coalesced, negative
	Model          string  `json:"model,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	LatencyMs      float64 `json:"latency_ms,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty"`
	RetryAfterSecs int     `json:"retry_after_secs,omitempty"`
	RequestID      string  `json:"request_id,omitempty"`

	// Breaker fields (populated for breaker_change events).
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty"`
}

// JSON returns the event as a JSON byte slice.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscriber receives events on a channel.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Bus is an in-memory pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe creates a new subscriber with a buffered channel.
func (b *Bus) Subscribe(bufSize int) *Subscriber {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Subscriber{
		C:    make(chan Event, bufSize),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	close(s.done)
}

// Publish sends an event to all subscribers (non-blocking).
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.C <- e:
		default:
			// Drop event if subscriber is slow (back-pressure).
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
