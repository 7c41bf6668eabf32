package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ghosttext/ghosttext/internal/circuitbreaker"
	"github.com/ghosttext/ghosttext/internal/events"
	"github.com/ghosttext/ghosttext/internal/gateway"
	"github.com/ghosttext/ghosttext/internal/httpapi"
	"github.com/ghosttext/ghosttext/internal/logging"
	"github.com/ghosttext/ghosttext/internal/metrics"
	"github.com/ghosttext/ghosttext/internal/ratelimit"
	"github.com/ghosttext/ghosttext/internal/stats"
	"github.com/ghosttext/ghosttext/internal/store"
	"github.com/ghosttext/ghosttext/internal/tracing"
	"github.com/ghosttext/ghosttext/internal/upstream"
	"github.com/ghosttext/ghosttext/internal/upstream/openai"
	"github.com/ghosttext/ghosttext/internal/upstream/openrouter"
)

type Server struct {
	cfg Config

	r *chi.Mux

	gateway *gateway.Gateway
	limiter *ratelimit.Limiter
	store   store.Store
	logger  *slog.Logger

	tracingShutdown func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	tracingShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "ghosttext",
	})
	if err != nil {
		return nil, err
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware())
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Open store.
	db, err := store.NewSQLite(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database initialized", slog.String("dsn", cfg.DBDSN))

	m := metrics.New()
	bus := events.NewBus()
	collector := stats.NewCollector()
	seedStats(collector, db, logger)
	if removed, err := db.PruneRequestLogs(context.Background(), time.Now().Add(-7*24*time.Hour)); err != nil {
		logger.Warn("request_log_prune_failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("request_log_pruned", slog.Int64("removed", removed))
	}

	limiter := ratelimit.New(
		cfg.RateLimitMaxRequests,
		time.Duration(cfg.RateLimitWindowSecs)*time.Second,
		ratelimit.WithCounter(m.RateLimitedTotal),
	)

	breaker := circuitbreaker.New(
		circuitbreaker.WithThreshold(cfg.BreakerThreshold),
		circuitbreaker.WithCooldown(time.Duration(cfg.BreakerCooldownSecs)*time.Second),
		circuitbreaker.WithOnStateChange(func(from, to circuitbreaker.State) {
			logger.Warn("breaker_state_change",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			bus.Publish(events.Event{
				Type:     events.EventBreakerChange,
				OldState: from.String(),
				NewState: to.String(),
			})
		}),
	)

	client, err := buildUpstream(cfg, logger)
	if err != nil {
		_ = db.Close()
		limiter.Stop()
		return nil, err
	}

	gw := gateway.New(gateway.Config{
		DefaultModel:    cfg.DefaultModel,
		MaxTextLen:      cfg.MaxTextLen,
		CacheTTL:        time.Duration(cfg.CacheTTLSecs) * time.Second,
		ErrorCacheTTL:   time.Duration(cfg.ErrorCacheTTLSecs) * time.Second,
		CacheMaxEntries: cfg.CacheMaxEntries,
		UpstreamTimeout: time.Duration(cfg.UpstreamTimeoutSecs) * time.Second,
	}, client, limiter, breaker, logger)

	s := &Server{
		cfg:             cfg,
		r:               r,
		gateway:         gw,
		limiter:         limiter,
		store:           db,
		logger:          logger,
		tracingShutdown: tracingShutdown,
	}

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Gateway:  gw,
		Metrics:  m,
		Store:    db,
		Stats:    collector,
		EventBus: bus,
		Logger:   logger,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Reload applies the subset of config that can change at runtime. Currently
// that is the log level; pipeline knobs require a restart.
func (s *Server) Reload(cfg Config) {
	logging.SetLevel(cfg.LogLevel)
	s.cfg = cfg
	s.logger.Info("config reloaded", slog.String("log_level", cfg.LogLevel))
}

func (s *Server) Close() error {
	s.gateway.Close()
	s.limiter.Stop()
	if s.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.tracingShutdown(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// buildUpstream constructs the configured provider adapter. The OTel
// transport is always attached; it is a pass-through when tracing is off.
func buildUpstream(cfg Config, logger *slog.Logger) (upstream.Client, error) {
	timeout := time.Duration(cfg.UpstreamTimeoutSecs) * time.Second
	transport := tracing.HTTPTransport(nil)

	switch cfg.Provider {
	case "openai":
		base := cfg.OpenAIBaseURL
		if base == "" {
			base = openai.DefaultBaseURL
		}
		logger.Info("upstream configured", slog.String("provider", "openai"))
		return openai.New("openai", cfg.OpenAIAPIKey, base,
			openai.WithTimeout(timeout), openai.WithTransport(transport)), nil
	default:
		base := cfg.OpenRouterBaseURL
		if base == "" {
			base = openrouter.DefaultBaseURL
		}
		logger.Info("upstream configured", slog.String("provider", "openrouter"))
		return openrouter.New("openrouter", cfg.OpenRouterAPIKey, base,
			openrouter.WithTimeout(timeout), openrouter.WithTransport(transport)), nil
	}
}

// seedStats reloads recent request logs into the stats collector so the
// stats endpoint is not empty right after a restart.
func seedStats(collector *stats.Collector, db *store.SQLiteStore, logger *slog.Logger) {
	logs, err := db.RecentRequestLogs(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.Warn("stats_seed_failed", slog.String("error", err.Error()))
		return
	}
	snapshots := make([]stats.Snapshot, 0, len(logs))
	for _, l := range logs {
		snapshots = append(snapshots, stats.Snapshot{
			Timestamp:   l.Timestamp,
			Model:       l.Model,
			Provider:    l.Provider,
			CacheStatus: l.CacheStatus,
			LatencyMs:   float64(l.LatencyMs),
			Success:     l.StatusCode == http.StatusOK,
			Suggested:   l.Suggested,
		})
	}
	collector.Seed(snapshots)
	if len(snapshots) > 0 {
		logger.Info("stats_seeded", slog.Int("snapshots", len(snapshots)))
	}
}
