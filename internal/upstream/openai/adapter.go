// Package openai implements the upstream.Client contract against the OpenAI
// chat-completions API (or any endpoint speaking the same dialect).
package openai

import (
	"context"
	"net/http"
	"time"

	"github.com/ghosttext/ghosttext/internal/prompt"
	"github.com/ghosttext/ghosttext/internal/upstream"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// Adapter implements upstream.Client for OpenAI.
type Adapter struct {
	id      string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a new OpenAI adapter. A zero timeout defaults to 30s.
func New(id, apiKey, baseURL string, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	a := &Adapter{
		id:      id,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.client.Timeout = d
	}
}

// WithTransport sets the HTTP transport (used to wire OTel instrumentation).
func WithTransport(rt http.RoundTripper) Option {
	return func(a *Adapter) {
		a.client.Transport = rt
	}
}

func (a *Adapter) ID() string { return a.id }

func (a *Adapter) Complete(ctx context.Context, model prompt.ModelConfig, msgs []prompt.Message) (string, error) {
	payload := upstream.ChatPayload(model, msgs)
	body, err := upstream.DoRequest(ctx, a.client, a.baseURL+"/chat/completions", payload, a.authHeaders())
	if err != nil {
		return "", err
	}
	return upstream.ParseChatText(body)
}

func (a *Adapter) authHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	}
}
