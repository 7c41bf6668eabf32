// Package metrics holds the Prometheus instruments for the completion
// gateway. Everything hangs off a private registry so tests can create
// isolated instances without double-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// RequestsTotal counts completion requests by outcome: served,
	// no_suggestion, rate_limited, error.
	RequestsTotal *prometheus.CounterVec

	// CacheTotal counts cache dispositions: hit, miss, coalesced, negative.
	CacheTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the per-client limiter.
	RateLimitedTotal prometheus.Counter

	// UpstreamErrorsTotal counts upstream failures by kind.
	UpstreamErrorsTotal *prometheus.CounterVec

	// RequestLatency is end-to-end gateway latency, including cache hits.
	RequestLatency *prometheus.HistogramVec

	// UpstreamLatency is provider round-trip latency, misses only.
	UpstreamLatency *prometheus.HistogramVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghosttext_requests_total",
			Help: "Total completion requests by outcome",
		}, []string{"outcome"}),
		CacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghosttext_cache_total",
			Help: "Cache lookups by disposition",
		}, []string{"status"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghosttext_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
		UpstreamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghosttext_upstream_errors_total",
			Help: "Upstream provider failures by kind",
		}, []string{"kind"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghosttext_request_latency_ms",
			Help:    "End-to-end request latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"cache_status"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghosttext_upstream_latency_ms",
			Help:    "Upstream provider latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"provider", "model"}),
	}
	reg.MustRegister(
		m.RequestsTotal,
		m.CacheTotal,
		m.RateLimitedTotal,
		m.UpstreamErrorsTotal,
		m.RequestLatency,
		m.UpstreamLatency,
	)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
