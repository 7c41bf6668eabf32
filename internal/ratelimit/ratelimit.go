// Package ratelimit provides a simple in-memory fixed-window rate limiter
// keyed by client IP.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sharedBucket is the key used when no client identity can be derived from a
// request. Unattributable clients share one window rather than getting
// unlimited access.
const sharedBucket = "shared"

// Decision is the result of an admission check.
type Decision struct {
	OK             bool
	RetryAfterSecs int // seconds until the window resets; set when OK is false
}

// Limiter admits at most maxRequests per client per fixed window.
type Limiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxRequests int
	interval    time.Duration
	maxKeys     int // max entries before evicting oldest
	stop        chan struct{}
	stopOnce    sync.Once
	counter     prometheus.Counter // optional: incremented on each rejection

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

type window struct {
	count   int
	started time.Time
}

// New creates a limiter allowing maxRequests per interval per client.
func New(maxRequests int, interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		interval:    interval,
		maxKeys:     100000, // default cap: 100k unique clients
		stop:        make(chan struct{}),
		nowFunc:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	// Periodically clean up stale windows.
	go l.cleanup()
	return l
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCounter sets a Prometheus counter that is incremented on each rejection.
func WithCounter(c prometheus.Counter) Option {
	return func(l *Limiter) {
		l.counter = c
	}
}

// WithMaxKeys caps the number of tracked clients.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// Admit records a request for the given client and decides whether it may
// proceed. An empty clientID falls into the shared bucket. Counters within a
// window only grow; they reset when wall-clock time passes the window end.
func (l *Limiter) Admit(clientID string) Decision {
	if clientID == "" {
		clientID = sharedBucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	w, ok := l.windows[clientID]
	if !ok || now.Sub(w.started) >= l.interval {
		if !ok && len(l.windows) >= l.maxKeys {
			l.evictOldest()
		}
		l.windows[clientID] = &window{count: 1, started: now}
		return Decision{OK: true}
	}

	if w.count >= l.maxRequests {
		if l.counter != nil {
			l.counter.Inc()
		}
		remaining := l.interval - now.Sub(w.started)
		secs := int((remaining + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		return Decision{OK: false, RetryAfterSecs: secs}
	}

	w.count++
	return Decision{OK: true}
}

// ClientID derives a best-effort client identifier from a request: X-Real-IP,
// the first X-Forwarded-For hop, or the RemoteAddr host. Returns "" when
// nothing usable is present.
func ClientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// evictOldest removes the window with the earliest start time.
// Must be called with l.mu held.
func (l *Limiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, w := range l.windows {
		if first || w.started.Before(oldestTime) {
			oldestKey = k
			oldestTime = w.started
			first = false
		}
	}
	if !first {
		delete(l.windows, oldestKey)
	}
}

// Stop terminates the background cleanup goroutine. Safe to call twice.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// cleanup drops windows whose reset time has long passed. The limiter stays
// correct without it (rolled-over windows are overwritten on the next Admit);
// this only bounds memory for clients that never return.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.nowFunc().Add(-2 * l.interval)
			for k, w := range l.windows {
				if w.started.Before(cutoff) {
					delete(l.windows, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
