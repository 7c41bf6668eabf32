// Package gateway orchestrates a completion request: admission, cache
// lookup, in-flight coalescing, the upstream call, sanitization, and cache
// writes. One Gateway owns both caches and the singleflight group; handlers
// stay thin.
package gateway

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ghosttext/ghosttext/internal/cache"
	"github.com/ghosttext/ghosttext/internal/circuitbreaker"
	"github.com/ghosttext/ghosttext/internal/prompt"
	"github.com/ghosttext/ghosttext/internal/ratelimit"
	"github.com/ghosttext/ghosttext/internal/sanitize"
	"github.com/ghosttext/ghosttext/internal/upstream"
)

// Cache status values reported on responses.
const (
	StatusHit       = "hit"
	StatusMiss      = "miss"
	StatusCoalesced = "coalesced"
	StatusNegative  = "negative"
)

// Request is a single completion request after HTTP decoding.
type Request struct {
	Text               string
	URL                string
	Screenshot         string
	PreviousScreenshot string
	PreviousTabURL     string
	UserCountry        string
	UserCity           string

	// Model is the requested model id; unknown or empty ids fall back to
	// the gateway default.
	Model string

	// ClientID attributes the request for rate limiting. Empty means the
	// shared bucket.
	ClientID string
}

// Response carries the suggestion and request metadata for observability.
// Text is empty when there is no plausible suggestion; that is a valid,
// cacheable outcome, not an error.
type Response struct {
	Text        string
	CacheStatus string
	Model       string
	Provider    string

	// UpstreamMs is the provider round-trip time in milliseconds. Zero when
	// the response came from cache.
	UpstreamMs float64
}

// failure is the negative-cache record for an upstream error.
type failure struct {
	Kind           upstream.ErrorKind
	RetryAfterSecs int
}

// flightResult is what one singleflight execution yields to its callers.
type flightResult struct {
	text       string
	upstreamMs float64
}

// Config holds gateway tuning knobs.
type Config struct {
	DefaultModel    string
	MaxTextLen      int
	CacheTTL        time.Duration
	ErrorCacheTTL   time.Duration
	CacheMaxEntries int
	UpstreamTimeout time.Duration
}

// Gateway coordinates the completion pipeline.
type Gateway struct {
	cfg       Config
	client    upstream.Client
	limiter   *ratelimit.Limiter
	breaker   *circuitbreaker.Breaker
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger

	successCache *cache.Store[string]
	errorCache   *cache.Store[failure]

	sf       singleflight.Group
	inFlight atomic.Int64
}

// New builds a Gateway. The limiter and breaker are constructed by the
// caller so their metrics and event hooks can be wired at the app layer.
func New(cfg Config, client upstream.Client, limiter *ratelimit.Limiter, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Gateway {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = prompt.DefaultModelID
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = 4000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.ErrorCacheTTL <= 0 {
		cfg.ErrorCacheTTL = 30 * time.Second
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 1000
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:          cfg,
		client:       client,
		limiter:      limiter,
		breaker:      breaker,
		sanitizer:    sanitize.New(nil),
		logger:       logger,
		successCache: cache.New[string](cfg.CacheTTL, cfg.CacheMaxEntries),
		errorCache:   cache.New[failure](cfg.ErrorCacheTTL, cfg.CacheMaxEntries),
	}
}

// Complete runs the completion state machine for one request.
func (g *Gateway) Complete(ctx context.Context, req Request) (Response, error) {
	model := prompt.ModelByID(g.modelID(req.Model))
	resp := Response{Model: model.ID, Provider: g.client.ID()}

	if isBlank(req.Text) {
		return resp, ErrTextRequired
	}

	if d := g.limiter.Admit(req.ClientID); !d.OK {
		return resp, &RateLimitError{RetryAfterSecs: d.RetryAfterSecs}
	}

	// Very long inputs are truncated from the front: the tail near the
	// cursor is what the prompt needs, and keying on the truncated form
	// keeps the cache consistent with what we actually asked for.
	text := truncateFront(req.Text, g.cfg.MaxTextLen)

	// Screenshots enter the key only when the prompt will actually carry
	// them; otherwise two requests producing the same prompt would land on
	// different slots.
	shot, prevShot := prompt.AttachedScreenshots(model, req.Screenshot, req.PreviousScreenshot)
	key := buildKey(text,
		req.URL,
		req.PreviousTabURL,
		req.UserCountry,
		req.UserCity,
		shot,
		prevShot,
		model.ID,
	)

	if cached, ok := g.successCache.Get(key); ok {
		resp.Text = cached
		resp.CacheStatus = StatusHit
		return resp, nil
	}

	if f, ok := g.errorCache.Get(key); ok {
		resp.CacheStatus = StatusNegative
		return resp, &upstream.Error{Kind: f.Kind, RetryAfterSecs: f.RetryAfterSecs, Err: errNegativeCached}
	}

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	v, err, shared := g.sf.Do(key, func() (any, error) {
		return g.callUpstream(ctx, key, model, req, text)
	})
	if err != nil {
		resp.CacheStatus = StatusMiss
		return resp, err
	}

	fr := v.(flightResult)
	resp.Text = fr.text
	resp.UpstreamMs = fr.upstreamMs
	if shared {
		resp.CacheStatus = StatusCoalesced
	} else {
		resp.CacheStatus = StatusMiss
	}
	return resp, nil
}

// callUpstream runs inside singleflight: exactly one caller per key reaches
// here. The upstream call is detached from the caller's context so a
// disconnecting client does not cancel work that coalesced callers and the
// cache are waiting on.
func (g *Gateway) callUpstream(ctx context.Context, key string, model prompt.ModelConfig, req Request, text string) (any, error) {
	if !g.breaker.Allow() {
		f := failure{Kind: upstream.KindTransport}
		g.errorCache.Set(key, f, 0)
		return nil, &upstream.Error{Kind: upstream.KindTransport, Err: errBreakerOpen}
	}

	msgs := prompt.Build(prompt.Params{
		Model:              model,
		ExistingText:       text,
		URL:                req.URL,
		Screenshot:         req.Screenshot,
		PreviousScreenshot: req.PreviousScreenshot,
		PreviousTabURL:     req.PreviousTabURL,
		UserCountry:        req.UserCountry,
		UserCity:           req.UserCity,
	})

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	raw, err := g.client.Complete(callCtx, model, msgs)
	upstreamMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		ce := upstream.Classify(err)
		if ce.Kind == upstream.KindTransport {
			g.breaker.RecordFailure()
		} else {
			// Rate limiting and bad payloads say nothing about
			// provider reachability.
			g.breaker.RecordSuccess()
		}
		// The provider's retry hint governs the cooldown when it gave one;
		// otherwise the configured negative TTL applies.
		var negTTL time.Duration
		if ce.RetryAfterSecs > 0 {
			negTTL = time.Duration(ce.RetryAfterSecs) * time.Second
		}
		g.errorCache.Set(key, failure{Kind: ce.Kind, RetryAfterSecs: ce.RetryAfterSecs}, negTTL)
		g.logger.Warn("upstream_failure",
			slog.String("provider", g.client.ID()),
			slog.String("model", model.ID),
			slog.String("kind", string(ce.Kind)),
			slog.Int("retry_after_secs", ce.RetryAfterSecs),
		)
		return nil, ce
	}
	g.breaker.RecordSuccess()

	cleaned, ok := g.sanitizer.Clean(raw, text)
	if !ok {
		cleaned = ""
	}
	// An empty suggestion is cached too: asking again will not make the
	// model produce a better answer for the same input.
	g.successCache.Set(key, cleaned, 0)
	return flightResult{text: cleaned, upstreamMs: upstreamMs}, nil
}

// modelID resolves the effective model id for a request.
func (g *Gateway) modelID(requested string) string {
	if requested != "" {
		return requested
	}
	return g.cfg.DefaultModel
}

// CacheLen reports the number of live success-cache entries.
func (g *Gateway) CacheLen() int { return g.successCache.Len() }

// ErrorCacheLen reports the number of live negative-cache entries.
func (g *Gateway) ErrorCacheLen() int { return g.errorCache.Len() }

// InFlight reports how many requests are currently between admission and
// response.
func (g *Gateway) InFlight() int64 { return g.inFlight.Load() }

// Close stops the cache prune loops.
func (g *Gateway) Close() {
	g.successCache.Stop()
	g.errorCache.Stop()
}

// URLHost extracts the host component of a page URL for request logging.
// The full URL may carry query strings with user data, so only the host is
// ever persisted.
func URLHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// truncateFront keeps at most max bytes from the end of s, advancing past
// any partial leading rune left by the cut.
func truncateFront(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[len(s)-max:]
	for i := 0; i < len(s); i++ {
		if (s[i] & 0xC0) != 0x80 {
			return s[i:]
		}
	}
	return ""
}
