// Package gatewaytest builds gateways backed by canned provider responses
// for stage tests.
package gatewaytest

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/internal/gateway"
)

// Script is a provider that replays responses (or errors) in order. Once the
// script runs out it repeats the final entry.
type Script struct {
	Calls     int
	Responses []string
	Errors    []error
}

// Complete implements gateway.Provider
func (s *Script) Complete(ctx context.Context, messages []gateway.Message, opts gateway.CallOptions) (*gateway.Response, error) {
	idx := s.Calls
	s.Calls++

	if idx < len(s.Errors) && s.Errors[idx] != nil {
		return nil, s.Errors[idx]
	}
	ri := idx
	if ri >= len(s.Responses) {
		ri = len(s.Responses) - 1
	}
	return &gateway.Response{
		Content:      s.Responses[ri],
		InputTokens:  10,
		OutputTokens: 10,
		Model:        "scripted",
	}, nil
}

// Name implements gateway.Provider
func (s *Script) Name() string { return "scripted" }

// New returns a gateway that replays the given response bodies in order
func New(t *testing.T, responses ...string) *gateway.Gateway {
	t.Helper()
	return Wrap(&Script{Responses: responses})
}

// Wrap builds a gateway around a script
func Wrap(script *Script) *gateway.Gateway {
	cfg := config.GatewayConfig{
		Provider:          "google",
		Model:             "scripted",
		MaxTokens:         1024,
		Temperature:       0.1,
		Timeout:           5 * time.Second,
		MaxRetries:        1,
		RequestsPerMinute: 6000,
	}
	return gateway.NewWithProvider(script, cfg, zap.NewNop())
}
