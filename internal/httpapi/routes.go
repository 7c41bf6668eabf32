package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghosttext/ghosttext/internal/events"
	"github.com/ghosttext/ghosttext/internal/gateway"
	"github.com/ghosttext/ghosttext/internal/metrics"
	"github.com/ghosttext/ghosttext/internal/stats"
	"github.com/ghosttext/ghosttext/internal/store"
)

type Dependencies struct {
	Gateway  *gateway.Gateway
	Metrics  *metrics.Registry
	Store    store.Store
	Stats    *stats.Collector
	EventBus *events.Bus
	Logger   *slog.Logger
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Post("/complete", CompleteHandler(d))

	health := healthHandler(d)
	r.Get("/health", health)
	r.Get("/ping", health)

	r.Get("/models", ModelsHandler())
	r.Get("/stats", StatsHandler(d))
	r.Get("/logs", RequestLogsHandler(d))

	if d.EventBus != nil {
		r.Get("/events", SSEHandler(d.EventBus))
	}

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}

// healthHandler reports liveness plus the gateway gauges the extension's
// debug panel polls for.
func healthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":              "ok",
			"cache_entries":       d.Gateway.CacheLen(),
			"error_cache_entries": d.Gateway.ErrorCacheLen(),
			"in_flight":           d.Gateway.InFlight(),
		})
	}
}
