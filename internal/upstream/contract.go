// Package upstream defines the contract between the completion gateway and
// the language-model providers, plus the HTTP plumbing shared by the
// adapters. The gateway treats a provider as a black box that either returns
// raw completion text or a classified error.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ghosttext/ghosttext/internal/prompt"
)

// Client is implemented by provider adapters. Complete issues one model call
// and returns the raw (unsanitized) completion text.
type Client interface {
	ID() string
	Complete(ctx context.Context, model prompt.ModelConfig, msgs []prompt.Message) (string, error)
}

// ErrorKind classifies an upstream failure for caching and caller reporting.
type ErrorKind string

const (
	// KindRateLimited is provider-side throttling; RetryAfterSecs carries the
	// provider's hint when one was given.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransport covers network failures, timeouts, and 5xx responses.
	KindTransport ErrorKind = "transport"
	// KindInvalidResponse means the provider answered but the payload was
	// unusable.
	KindInvalidResponse ErrorKind = "invalid_response"
)

// Error is the classified form of an upstream failure.
type Error struct {
	Kind           ErrorKind
	RetryAfterSecs int
	Err            error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError captures a non-200 HTTP status from a provider response.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// retryDelayPattern matches the retry hint some providers embed in the error
// body instead of (or in addition to) the Retry-After header, e.g.
// "retryDelay": "20s".
var retryDelayPattern = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+)s?"`)

// ParseRetryAfter fills RetryAfterSecs from the Retry-After header value and,
// failing that, from provider-specific metadata in the response body.
func (e *StatusError) ParseRetryAfter(header string) {
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
			e.RetryAfterSecs = secs
			return
		}
	}
	if m := retryDelayPattern.FindStringSubmatch(e.Body); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			e.RetryAfterSecs = secs
		}
	}
}

// Classify maps an adapter error to its Error form. Already-classified errors
// pass through; HTTP 429/529 become rate-limit errors with the parsed retry
// hint; 5xx, timeouts, and network failures become transport errors; anything
// else that reached the wire but could not be used is an invalid response.
func Classify(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429 || se.StatusCode == 529:
			return &Error{Kind: KindRateLimited, RetryAfterSecs: se.RetryAfterSecs, Err: err}
		case se.StatusCode >= 500:
			return &Error{Kind: KindTransport, Err: err}
		default:
			return &Error{Kind: KindInvalidResponse, Err: err}
		}
	}

	return &Error{Kind: KindTransport, Err: err}
}
