package gateway

import (
	"errors"
	"fmt"
)

// ErrTextRequired is returned when a request carries no text to complete.
var ErrTextRequired = errors.New("text is required")

var (
	errNegativeCached = errors.New("upstream failure served from negative cache")
	errBreakerOpen    = errors.New("upstream circuit breaker open")
)

// RateLimitError is returned when the per-client limiter rejects a request.
// RetryAfterSecs is the whole number of seconds until the client's window
// rolls over.
type RateLimitError struct {
	RetryAfterSecs int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSecs)
}
