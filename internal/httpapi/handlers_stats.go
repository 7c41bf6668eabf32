package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ghosttext/ghosttext/internal/prompt"
)

// ModelsHandler lists the selectable completion models as id -> display name.
func ModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"default": prompt.DefaultModelID,
			"models":  prompt.AvailableModels(),
		})
	}
}

// StatsHandler returns rolling window aggregates.
func StatsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if d.Stats == nil {
			jsonError(w, "stats not configured", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"global":      d.Stats.Global(),
			"by_model":    d.Stats.Summary(),
			"by_provider": d.Stats.SummaryByProvider(),
		})
	}
}

// RequestLogsHandler returns paginated request log entries, newest first.
func RequestLogsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			jsonError(w, "request log not configured", http.StatusNotFound)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		if offset < 0 {
			offset = 0
		}

		logs, err := d.Store.ListRequestLogs(r.Context(), limit, offset)
		if err != nil {
			jsonError(w, "failed to list request logs", http.StatusInternalServerError)
			return
		}
		total, err := d.Store.CountRequestLogs(r.Context())
		if err != nil {
			jsonError(w, "failed to count request logs", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"logs":   logs,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}
