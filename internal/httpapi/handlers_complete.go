package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ghosttext/ghosttext/internal/gateway"
	"github.com/ghosttext/ghosttext/internal/ratelimit"
	"github.com/ghosttext/ghosttext/internal/upstream"
)

// genericErrorMsg is the only detail upstream failures leak to clients.
const genericErrorMsg = "An error occurred while processing the request."

// completeRequest is the POST /complete body. The schema is closed: unknown
// fields and non-string values are rejected.
type completeRequest struct {
	Text               string `json:"text"`
	URL                string `json:"url"`
	Screenshot         string `json:"screenshot,omitempty"`
	PreviousScreenshot string `json:"previousScreenshot,omitempty"`
	PreviousTabURL     string `json:"previousTabUrl,omitempty"`
	UserCountry        string `json:"userCountry,omitempty"`
	UserCity           string `json:"userCity,omitempty"`
	Model              string `json:"model,omitempty"`
}

type completeResponse struct {
	Text string `json:"text"`
}

// CompleteHandler serves ghost-text completions.
func CompleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var body completeRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.Text == "" {
			jsonError(w, "text is required", http.StatusBadRequest)
			return
		}
		if body.URL == "" {
			jsonError(w, "url is required", http.StatusBadRequest)
			return
		}
		if _, err := url.Parse(body.URL); err != nil {
			jsonError(w, "invalid url", http.StatusBadRequest)
			return
		}

		// The request ID rides the context so the provider call can forward
		// it as X-Request-ID; it survives the gateway's context detach.
		reqID := middleware.GetReqID(r.Context())
		ctx := upstream.WithRequestID(r.Context(), reqID)
		resp, err := d.Gateway.Complete(ctx, gateway.Request{
			Text:               body.Text,
			URL:                body.URL,
			Screenshot:         body.Screenshot,
			PreviousScreenshot: body.PreviousScreenshot,
			PreviousTabURL:     body.PreviousTabURL,
			UserCountry:        body.UserCountry,
			UserCity:           body.UserCity,
			Model:              body.Model,
			ClientID:           ratelimit.ClientID(r),
		})
		latencyMs := time.Since(start).Milliseconds()

		if err != nil {
			handleCompleteError(w, d, err, resp, body.URL, reqID, latencyMs)
			return
		}

		recordObservability(d, observeParams{
			Ctx:        r.Context(),
			Resp:       resp,
			URLHost:    gateway.URLHost(body.URL),
			LatencyMs:  latencyMs,
			StatusCode: http.StatusOK,
			RequestID:  reqID,
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completeResponse{Text: resp.Text})
	}
}

func handleCompleteError(w http.ResponseWriter, d Dependencies, err error, resp gateway.Response, pageURL, reqID string, latencyMs int64) {
	if errors.Is(err, gateway.ErrTextRequired) {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}

	var rle *gateway.RateLimitError
	if errors.As(err, &rle) {
		recordObservability(d, observeParams{
			Resp:           resp,
			URLHost:        gateway.URLHost(pageURL),
			LatencyMs:      latencyMs,
			StatusCode:     http.StatusTooManyRequests,
			RequestID:      reqID,
			RateLimited:    true,
			RetryAfterSecs: rle.RetryAfterSecs,
		})
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSecs))
		jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var ue *upstream.Error
	if errors.As(err, &ue) {
		status := http.StatusInternalServerError
		msg := genericErrorMsg
		if ue.Kind == upstream.KindRateLimited {
			status = http.StatusTooManyRequests
			msg = "rate limit exceeded"
			if ue.RetryAfterSecs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(ue.RetryAfterSecs))
			}
		}
		recordObservability(d, observeParams{
			Resp:           resp,
			URLHost:        gateway.URLHost(pageURL),
			LatencyMs:      latencyMs,
			StatusCode:     status,
			RequestID:      reqID,
			ErrorKind:      string(ue.Kind),
			RetryAfterSecs: ue.RetryAfterSecs,
		})
		jsonError(w, msg, status)
		return
	}

	recordObservability(d, observeParams{
		Resp:       resp,
		URLHost:    gateway.URLHost(pageURL),
		LatencyMs:  latencyMs,
		StatusCode: http.StatusInternalServerError,
		RequestID:  reqID,
		ErrorKind:  "internal",
	})
	jsonError(w, genericErrorMsg, http.StatusInternalServerError)
}
