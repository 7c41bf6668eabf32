package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	DBDSN string

	// Upstream provider selection. Provider is "openrouter" or "openai";
	// whichever key matches is used for auth against the base URL.
	Provider          string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	DefaultModel      string

	// Completion pipeline tuning.
	CacheMaxEntries      int
	CacheTTLSecs         int
	ErrorCacheTTLSecs    int
	RateLimitMaxRequests int
	RateLimitWindowSecs  int
	MaxTextLen           int
	UpstreamTimeoutSecs  int

	// Circuit breaker.
	BreakerThreshold    int
	BreakerCooldownSecs int

	CORSOrigins []string // allowed CORS origins; empty = ["*"]

	// OpenTelemetry tracing (opt-in).
	OTelEnabled  bool
	OTelEndpoint string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("GHOSTTEXT_LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("GHOSTTEXT_LOG_LEVEL", "info"),
		DBDSN:      getEnv("GHOSTTEXT_DB_DSN", "file:ghosttext.sqlite"),

		Provider:          getEnv("GHOSTTEXT_PROVIDER", "openrouter"),
		OpenRouterAPIKey:  getEnv("GHOSTTEXT_OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("GHOSTTEXT_OPENROUTER_BASE_URL", ""),
		OpenAIAPIKey:      getEnv("GHOSTTEXT_OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("GHOSTTEXT_OPENAI_BASE_URL", ""),
		DefaultModel:      getEnv("GHOSTTEXT_DEFAULT_MODEL", ""),

		CacheMaxEntries:      getEnvInt("GHOSTTEXT_CACHE_MAX_ENTRIES", 1000),
		CacheTTLSecs:         getEnvInt("GHOSTTEXT_CACHE_TTL_SECS", 3600),
		ErrorCacheTTLSecs:    getEnvInt("GHOSTTEXT_ERROR_CACHE_TTL_SECS", 30),
		RateLimitMaxRequests: getEnvInt("GHOSTTEXT_RATE_LIMIT_MAX_REQUESTS", 30),
		RateLimitWindowSecs:  getEnvInt("GHOSTTEXT_RATE_LIMIT_WINDOW_SECS", 60),
		MaxTextLen:           getEnvInt("GHOSTTEXT_MAX_TEXT_LEN", 4000),
		UpstreamTimeoutSecs:  getEnvInt("GHOSTTEXT_UPSTREAM_TIMEOUT_SECS", 30),

		BreakerThreshold:    getEnvInt("GHOSTTEXT_BREAKER_THRESHOLD", 5),
		BreakerCooldownSecs: getEnvInt("GHOSTTEXT_BREAKER_COOLDOWN_SECS", 15),

		CORSOrigins: getEnvStringSlice("GHOSTTEXT_CORS_ORIGINS", nil),

		OTelEnabled:  getEnvBool("GHOSTTEXT_OTEL_ENABLED", false),
		OTelEndpoint: getEnv("GHOSTTEXT_OTEL_ENDPOINT", "localhost:4318"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	switch c.Provider {
	case "openrouter", "openai":
	default:
		return fmt.Errorf("GHOSTTEXT_PROVIDER must be openrouter or openai, got %q", c.Provider)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("GHOSTTEXT_CACHE_MAX_ENTRIES must be > 0, got %d", c.CacheMaxEntries)
	}
	if c.CacheTTLSecs <= 0 {
		return fmt.Errorf("GHOSTTEXT_CACHE_TTL_SECS must be > 0, got %d", c.CacheTTLSecs)
	}
	if c.ErrorCacheTTLSecs <= 0 {
		return fmt.Errorf("GHOSTTEXT_ERROR_CACHE_TTL_SECS must be > 0, got %d", c.ErrorCacheTTLSecs)
	}
	if c.RateLimitMaxRequests <= 0 {
		return fmt.Errorf("GHOSTTEXT_RATE_LIMIT_MAX_REQUESTS must be > 0, got %d", c.RateLimitMaxRequests)
	}
	if c.RateLimitWindowSecs <= 0 {
		return fmt.Errorf("GHOSTTEXT_RATE_LIMIT_WINDOW_SECS must be > 0, got %d", c.RateLimitWindowSecs)
	}
	if c.MaxTextLen <= 0 {
		return fmt.Errorf("GHOSTTEXT_MAX_TEXT_LEN must be > 0, got %d", c.MaxTextLen)
	}
	if c.UpstreamTimeoutSecs <= 0 {
		return fmt.Errorf("GHOSTTEXT_UPSTREAM_TIMEOUT_SECS must be > 0, got %d", c.UpstreamTimeoutSecs)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("GHOSTTEXT_BREAKER_THRESHOLD must be > 0, got %d", c.BreakerThreshold)
	}
	if c.BreakerCooldownSecs <= 0 {
		return fmt.Errorf("GHOSTTEXT_BREAKER_COOLDOWN_SECS must be > 0, got %d", c.BreakerCooldownSecs)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
