package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghosttext/ghosttext/internal/circuitbreaker"
	"github.com/ghosttext/ghosttext/internal/events"
	"github.com/ghosttext/ghosttext/internal/gateway"
	"github.com/ghosttext/ghosttext/internal/metrics"
	"github.com/ghosttext/ghosttext/internal/prompt"
	"github.com/ghosttext/ghosttext/internal/ratelimit"
	"github.com/ghosttext/ghosttext/internal/stats"
	"github.com/ghosttext/ghosttext/internal/store"
	"github.com/ghosttext/ghosttext/internal/upstream"
)

// mockUpstream implements upstream.Client for handler tests.
type mockUpstream struct {
	mu   sync.Mutex
	text string
	err  error
}

func (m *mockUpstream) ID() string { return "mock" }

func (m *mockUpstream) Complete(ctx context.Context, model prompt.ModelConfig, msgs []prompt.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, m.err
}

func (m *mockUpstream) set(text string, err error) {
	m.mu.Lock()
	m.text = text
	m.err = err
	m.mu.Unlock()
}

type testEnv struct {
	ts       *httptest.Server
	upstream *mockUpstream
	store    *store.SQLiteStore
	stats    *stats.Collector
	bus      *events.Bus
	metrics  *metrics.Registry
}

func setupTestServer(t *testing.T, rateLimit int) *testEnv {
	t.Helper()

	mock := &mockUpstream{text: " fox jumps"}
	m := metrics.New()
	limiter := ratelimit.New(rateLimit, time.Minute, ratelimit.WithCounter(m.RateLimitedTotal))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.New(gateway.Config{}, mock, limiter, circuitbreaker.New(), logger)

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	collector := stats.NewCollector()
	bus := events.NewBus()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	MountRoutes(r, Dependencies{
		Gateway:  gw,
		Metrics:  m,
		Store:    st,
		Stats:    collector,
		EventBus: bus,
		Logger:   logger,
	})
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		gw.Close()
		limiter.Stop()
		_ = st.Close()
	})
	return &testEnv{ts: ts, upstream: mock, store: st, stats: collector, bus: bus, metrics: m}
}

func postComplete(t *testing.T, env *testEnv, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(env.ts.URL+"/complete", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func TestCompleteSuccess(t *testing.T) {
	env := setupTestServer(t, 100)

	resp := postComplete(t, env, `{"text":"The quick brown","url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, " fox jumps", body["text"])
}

func TestCompleteCacheHitSecondCall(t *testing.T) {
	env := setupTestServer(t, 100)

	req := `{"text":"The quick brown","url":"https://example.com"}`
	resp := postComplete(t, env, req)
	resp.Body.Close()

	env.upstream.set("", nil) // a second upstream call would now return nothing

	resp = postComplete(t, env, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, " fox jumps", body["text"], "second call must be served from cache")
}

func TestCompleteMissingText(t *testing.T) {
	env := setupTestServer(t, 100)

	for _, payload := range []string{
		`{"url":"https://example.com"}`,
		`{"text":"","url":"https://example.com"}`,
	} {
		resp := postComplete(t, env, payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeJSON(t, resp)
		assert.NotEmpty(t, body["error"])
	}
}

func TestCompleteMissingURL(t *testing.T) {
	env := setupTestServer(t, 100)

	resp := postComplete(t, env, `{"text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCompleteClosedSchema(t *testing.T) {
	env := setupTestServer(t, 100)

	// Unknown fields are rejected.
	resp := postComplete(t, env, `{"text":"hi","url":"https://a","extra":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Non-string values are rejected.
	resp = postComplete(t, env, `{"text":42,"url":"https://a"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Malformed JSON is rejected.
	resp = postComplete(t, env, `{"text":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCompleteLocalRateLimit(t *testing.T) {
	env := setupTestServer(t, 1)

	resp := postComplete(t, env, `{"text":"first","url":"https://a"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postComplete(t, env, `{"text":"second","url":"https://a"}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	body := decodeJSON(t, resp)
	assert.NotEmpty(t, body["error"])

	// One rejection means the counter reads exactly 1; the limiter owns the
	// increment and the handler must not add a second one.
	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ghosttext_rate_limited_total 1")
	assert.NotContains(t, string(raw), "ghosttext_rate_limited_total 2")
}

func TestCompleteUpstreamRateLimited(t *testing.T) {
	env := setupTestServer(t, 100)

	se := &upstream.StatusError{StatusCode: 429}
	se.ParseRetryAfter("20")
	env.upstream.set("", se)

	resp := postComplete(t, env, `{"text":"hello","url":"https://a"}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "20", resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestCompleteUpstreamErrorIsGeneric(t *testing.T) {
	env := setupTestServer(t, 100)

	env.upstream.set("", &upstream.StatusError{StatusCode: 503, Body: "internal provider details"})

	resp := postComplete(t, env, `{"text":"hello","url":"https://a"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, "An error occurred while processing the request.", body["error"])
	assert.NotContains(t, body["error"], "provider details", "upstream detail must not leak")
}

func TestHealthReportsGauges(t *testing.T) {
	env := setupTestServer(t, 100)

	// Warm the cache with one entry.
	resp := postComplete(t, env, `{"text":"warm","url":"https://a"}`)
	resp.Body.Close()

	for _, path := range []string{"/health", "/ping"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeJSON(t, resp)
		assert.Equal(t, "ok", body["status"])
		assert.EqualValues(t, 1, body["cache_entries"])
		assert.EqualValues(t, 0, body["in_flight"])
	}
}

func TestModelsListing(t *testing.T) {
	env := setupTestServer(t, 100)

	resp, err := http.Get(env.ts.URL + "/models")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, prompt.DefaultModelID, body["default"])
	models, ok := body["models"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, models, prompt.DefaultModelID)
}

func TestStatsEndpoint(t *testing.T) {
	env := setupTestServer(t, 100)

	resp := postComplete(t, env, `{"text":"hello","url":"https://a"}`)
	resp.Body.Close()

	resp, err := http.Get(env.ts.URL + "/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	global, ok := body["global"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, global)
}

func TestLogsEndpoint(t *testing.T) {
	env := setupTestServer(t, 100)

	resp := postComplete(t, env, `{"text":"hello","url":"https://example.com/path?q=1"}`)
	resp.Body.Close()

	resp, err := http.Get(env.ts.URL + "/logs?limit=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.EqualValues(t, 1, body["total"])
	logs, ok := body["logs"].([]any)
	require.True(t, ok)
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]any)
	assert.Equal(t, "example.com", entry["url_host"], "only the host is persisted")
	assert.Equal(t, true, entry["suggested"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, 100)

	resp := postComplete(t, env, `{"text":"hello","url":"https://a"}`)
	resp.Body.Close()

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ghosttext_requests_total")
}

func TestSSEStream(t *testing.T) {
	env := setupTestServer(t, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "event: connected"), "got %q", line)

	// Trigger an event and check it arrives on the stream.
	go func() {
		r, err := http.Post(env.ts.URL+"/complete", "application/json",
			strings.NewReader(`{"text":"streamed","url":"https://a"}`))
		if err == nil {
			r.Body.Close()
		}
	}()

	found := false
	for !found {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "event: completion_served") {
			found = true
		}
	}
	assert.True(t, found, "expected a completion_served event on the stream")
}
