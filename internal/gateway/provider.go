// Package gateway is the single choke point for calls to a generative
// backend. It owns retries, rate limiting, response-shape checking, and
// per-run cost accounting.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// Message is one turn in a conversation
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Response is the provider-neutral completion result
type Response struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// CallOptions tune a single gateway call
type CallOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	CacheKey    string // non-empty enables response caching
}

// Provider is a backend capable of chat completion
type Provider interface {
	Complete(ctx context.Context, messages []Message, opts CallOptions) (*Response, error)
	Name() string
}

// classifyStatus maps an HTTP status to the gateway error taxonomy. Rate
// limits and server errors are retryable; everything else fails immediately.
func classifyStatus(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= http.StatusInternalServerError:
		return qaerrors.Transient(err)
	default:
		return qaerrors.Fatal(err)
	}
}
