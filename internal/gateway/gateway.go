package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// ModelCallRecord is the append-only accounting entry for one call attempt.
// Failed attempts are recorded too; cost accounting must reflect them.
type ModelCallRecord struct {
	Stage        models.Stage  `json:"stage"`
	Label        string        `json:"label"` // prompt identity, e.g. "analyze_diff"
	Round        int           `json:"round,omitempty"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
	Attempt      int           `json:"attempt"` // 1-based; >1 means a retry
	Succeeded    bool          `json:"succeeded"`
	Error        string        `json:"error,omitempty"`
	At           time.Time     `json:"at"`
}

// Request identifies one logical gateway call
type Request struct {
	Stage   models.Stage
	Label   string
	Round   int
	System  string
	User    string
	Options CallOptions
}

// Gateway wraps a provider with retries, rate limiting, caching, and the
// usage ledger. Safe for concurrent use.
type Gateway struct {
	provider   Provider
	limiter    *rate.Limiter
	logger     *zap.Logger
	maxRetries int
	defaults   CallOptions

	mu      sync.Mutex
	records []ModelCallRecord
	cache   map[string]*Response
}

// New builds a gateway from configuration
func New(cfg config.GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key for provider %q is required", cfg.Provider)
	}

	var provider Provider
	switch cfg.Provider {
	case "anthropic":
		provider = NewAnthropicProvider(cfg.APIKey, cfg.Model)
	case "openai":
		provider = NewOpenAIProvider(cfg.APIKey, cfg.Model)
	case "google":
		provider = NewGoogleProvider(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}

	return NewWithProvider(provider, cfg, logger), nil
}

// NewWithProvider builds a gateway around an existing provider
func NewWithProvider(provider Provider, cfg config.GatewayConfig, logger *zap.Logger) *Gateway {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Gateway{
		provider:   provider,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:     logger.Named("gateway"),
		maxRetries: cfg.MaxRetries,
		defaults: CallOptions{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		},
		cache: make(map[string]*Response),
	}
}

// Call executes one logical call with bounded retries for transient failures.
// Fatal failures are returned immediately. Every attempt lands in the ledger.
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	opts := g.mergeOptions(req.Options)

	if opts.CacheKey != "" {
		if resp := g.cached(opts.CacheKey); resp != nil {
			g.logger.Debug("cache hit", zap.String("label", req.Label), zap.String("key", opts.CacheKey))
			return resp, nil
		}
	}

	messages := []Message{}
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.User})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	var resp *Response
	attempt := 0

	operation := func() error {
		attempt++
		if attempt > g.maxRetries+1 {
			return backoff.Permanent(qaerrors.Transient(errors.New("retry budget exhausted")))
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		callCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		start := time.Now()
		r, err := g.provider.Complete(callCtx, messages, opts)
		g.record(req, r, attempt, time.Since(start), err)

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = qaerrors.Transient(err)
			}
			if errors.Is(err, qaerrors.ErrGatewayTransient) {
				g.logger.Warn("transient gateway failure, retrying",
					zap.String("label", req.Label),
					zap.Int("attempt", attempt),
					zap.Error(err))
				return err
			}
			if errors.Is(err, qaerrors.ErrGatewayFatal) {
				return backoff.Permanent(err)
			}
			// Unclassified provider errors (shape problems, empty content)
			// are not worth repeating.
			return backoff.Permanent(qaerrors.Fatal(err))
		}

		resp = r
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	if opts.CacheKey != "" {
		g.store(opts.CacheKey, resp)
	}
	return resp, nil
}

// CallJSON executes the call and unmarshals the response into out. A response
// that does not match the expected shape fails with ErrMalformedResponse;
// partially-parsed data is never returned.
func (g *Gateway) CallJSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Call(ctx, req)
	if err != nil {
		return err
	}

	payload := stripFences(resp.Content)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return qaerrors.Malformed(fmt.Errorf("expected JSON for %s: %w", req.Label, err))
	}
	return nil
}

// Records returns a copy of the usage ledger
func (g *Gateway) Records() []ModelCallRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ModelCallRecord, len(g.records))
	copy(out, g.records)
	return out
}

// Usage summarizes the ledger for report assembly
func (g *Gateway) Usage() models.UsageSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	var s models.UsageSummary
	for _, r := range g.records {
		s.Calls++
		if !r.Succeeded {
			s.FailedCalls++
		}
		if r.Attempt > 1 {
			s.Retries++
		}
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
	}
	return s
}

func (g *Gateway) mergeOptions(opts CallOptions) CallOptions {
	merged := g.defaults
	if opts.Model != "" {
		merged.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		merged.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		merged.Temperature = opts.Temperature
	}
	if opts.Timeout > 0 {
		merged.Timeout = opts.Timeout
	}
	merged.CacheKey = opts.CacheKey
	return merged
}

func (g *Gateway) record(req Request, resp *Response, attempt int, latency time.Duration, err error) {
	rec := ModelCallRecord{
		Stage:   req.Stage,
		Label:   req.Label,
		Round:   req.Round,
		Model:   g.defaults.Model,
		Latency: latency,
		Attempt: attempt,
		At:      time.Now(),
	}
	if resp != nil {
		rec.Model = resp.Model
		rec.InputTokens = resp.InputTokens
		rec.OutputTokens = resp.OutputTokens
	}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Succeeded = true
	}

	g.mu.Lock()
	g.records = append(g.records, rec)
	g.mu.Unlock()
}

func (g *Gateway) cached(key string) *Response {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache[key]
}

func (g *Gateway) store(key string, resp *Response) {
	g.mu.Lock()
	g.cache[key] = resp
	g.mu.Unlock()
}

// stripFences removes a markdown code fence around a JSON payload. Models
// wrap JSON in ```json fences often enough that callers should not see it.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
