package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ghosttext/ghosttext/internal/events"
	"github.com/ghosttext/ghosttext/internal/gateway"
	"github.com/ghosttext/ghosttext/internal/stats"
	"github.com/ghosttext/ghosttext/internal/store"
)

// jsonError writes a JSON-encoded error response with the given status code.
// Response body format: {"error": "<msg>"}
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// observeParams captures the fields required to record a completed request
// across the Metrics, Store, EventBus, and Stats subsystems.
type observeParams struct {
	// Context for store operations; nil falls back to Background.
	Ctx context.Context

	// Resp carries cache status, model, and provider even on failure.
	Resp gateway.Response

	URLHost    string
	LatencyMs  int64
	StatusCode int
	RequestID  string

	// Failure classification. RateLimited marks a local limiter reject;
	// ErrorKind is set for upstream failures.
	RateLimited    bool
	ErrorKind      string
	RetryAfterSecs int
}

// recordObservability writes a completed request result to all configured
// observability sinks. Each subsystem is skipped when the corresponding
// dependency is nil, so tests can wire only what they assert on.
func recordObservability(d Dependencies, p observeParams) {
	ctx := p.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	success := p.StatusCode == http.StatusOK
	suggested := success && p.Resp.Text != ""

	// --- Prometheus metrics ---
	if d.Metrics != nil {
		// RateLimitedTotal is not incremented here; the limiter owns that
		// counter via ratelimit.WithCounter.
		d.Metrics.RequestsTotal.WithLabelValues(outcome(p)).Inc()
		if p.ErrorKind != "" {
			d.Metrics.UpstreamErrorsTotal.WithLabelValues(p.ErrorKind).Inc()
		}
		if p.Resp.CacheStatus != "" {
			d.Metrics.CacheTotal.WithLabelValues(p.Resp.CacheStatus).Inc()
			d.Metrics.RequestLatency.WithLabelValues(p.Resp.CacheStatus).Observe(float64(p.LatencyMs))
		}
		// Coalesced callers shared the same flight; count it once.
		if p.Resp.CacheStatus == gateway.StatusMiss && p.Resp.UpstreamMs > 0 {
			d.Metrics.UpstreamLatency.WithLabelValues(p.Resp.Provider, p.Resp.Model).Observe(p.Resp.UpstreamMs)
		}
	}

	// --- Store: request log ---
	if d.Store != nil {
		warnOnErr(d.Logger, "log_request", d.Store.LogRequest(ctx, store.RequestLog{
			Timestamp:   time.Now().UTC(),
			Model:       p.Resp.Model,
			Provider:    p.Resp.Provider,
			CacheStatus: p.Resp.CacheStatus,
			URLHost:     p.URLHost,
			LatencyMs:   p.LatencyMs,
			StatusCode:  p.StatusCode,
			Suggested:   suggested,
			ErrorKind:   p.ErrorKind,
			RequestID:   p.RequestID,
		}))
	}

	// --- EventBus ---
	if d.EventBus != nil {
		d.EventBus.Publish(events.Event{
			Type:           eventType(p, suggested),
			CacheStatus:    p.Resp.CacheStatus,
			Model:          p.Resp.Model,
			Provider:       p.Resp.Provider,
			LatencyMs:      float64(p.LatencyMs),
			ErrorKind:      p.ErrorKind,
			RetryAfterSecs: p.RetryAfterSecs,
			RequestID:      p.RequestID,
		})
	}

	// --- Stats ---
	if d.Stats != nil {
		d.Stats.Record(stats.Snapshot{
			Model:       p.Resp.Model,
			Provider:    p.Resp.Provider,
			CacheStatus: p.Resp.CacheStatus,
			LatencyMs:   float64(p.LatencyMs),
			Success:     success,
			Suggested:   suggested,
		})
	}
}

func outcome(p observeParams) string {
	switch {
	case p.RateLimited || p.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case p.StatusCode != http.StatusOK:
		return "error"
	case p.Resp.Text == "":
		return "no_suggestion"
	default:
		return "served"
	}
}

func eventType(p observeParams, suggested bool) events.EventType {
	switch {
	case p.RateLimited:
		return events.EventRateLimited
	case p.ErrorKind != "":
		return events.EventUpstreamError
	case !suggested:
		return events.EventNoSuggestion
	default:
		return events.EventCompletionServed
	}
}

func warnOnErr(logger *slog.Logger, op string, err error) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("observability_sink_failed", slog.String("op", op), slog.String("error", err.Error()))
}
