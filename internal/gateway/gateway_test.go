package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// scriptedProvider returns canned results in order, then repeats the last one
type scriptedProvider struct {
	calls   int
	results []scriptedResult
}

type scriptedResult struct {
	resp *Response
	err  error
}

func (s *scriptedProvider) Complete(ctx context.Context, messages []Message, opts CallOptions) (*Response, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return r.resp, r.err
}

func (s *scriptedProvider) Name() string { return "scripted" }

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Provider:          "google",
		Model:             "test-model",
		MaxTokens:         1024,
		Temperature:       0.1,
		Timeout:           5 * time.Second,
		MaxRetries:        2,
		RequestsPerMinute: 6000,
	}
}

func newTestGateway(p Provider) *Gateway {
	return NewWithProvider(p, testConfig(), zap.NewNop())
}

func TestCall_Success(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{resp: &Response{Content: "ok", InputTokens: 10, OutputTokens: 5, Model: "test-model"}},
	}}
	g := newTestGateway(p)

	resp, err := g.Call(context.Background(), Request{Stage: models.StageAnalyzer, Label: "analyze"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, p.calls)

	recs := g.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Succeeded)
	assert.Equal(t, 10, recs[0].InputTokens)
}

func TestCall_TransientRetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: qaerrors.Transient(errors.New("rate limited"))},
		{err: qaerrors.Transient(errors.New("rate limited"))},
		{resp: &Response{Content: "recovered"}},
	}}
	g := newTestGateway(p)

	resp, err := g.Call(context.Background(), Request{Label: "flaky"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 3, p.calls)

	// Failed attempts are in the ledger too
	recs := g.Records()
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Succeeded)
	assert.False(t, recs[1].Succeeded)
	assert.True(t, recs[2].Succeeded)
}

func TestCall_TransientExhaustsBudget(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: qaerrors.Transient(errors.New("always down"))},
	}}
	g := newTestGateway(p)

	_, err := g.Call(context.Background(), Request{Label: "down"})
	require.Error(t, err)
	assert.ErrorIs(t, err, qaerrors.ErrGatewayTransient)
	// MaxRetries=2 means 3 real attempts
	assert.Equal(t, 3, p.calls)
}

func TestCall_FatalDoesNotRetry(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: qaerrors.Fatal(errors.New("bad api key"))},
	}}
	g := newTestGateway(p)

	_, err := g.Call(context.Background(), Request{Label: "auth"})
	require.Error(t, err)
	assert.ErrorIs(t, err, qaerrors.ErrGatewayFatal)
	assert.Equal(t, 1, p.calls)
	require.Len(t, g.Records(), 1)
	assert.False(t, g.Records()[0].Succeeded)
}

func TestCall_CacheHitSkipsProvider(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{resp: &Response{Content: "cached answer"}},
	}}
	g := newTestGateway(p)

	req := Request{Label: "same", Options: CallOptions{CacheKey: "pr-42-analyze"}}
	first, err := g.Call(context.Background(), req)
	require.NoError(t, err)
	second, err := g.Call(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, p.calls, "second call must be served from cache")
}

func TestCallJSON_Valid(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{resp: &Response{Content: "```json\n{\"summary\": \"fine\"}\n```"}},
	}}
	g := newTestGateway(p)

	var out struct {
		Summary string `json:"summary"`
	}
	err := g.CallJSON(context.Background(), Request{Label: "json"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "fine", out.Summary)
}

func TestCallJSON_MalformedResponse(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{resp: &Response{Content: "I could not produce JSON, sorry."}},
	}}
	g := newTestGateway(p)

	var out map[string]any
	err := g.CallJSON(context.Background(), Request{Label: "json"}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestUsage_AggregatesFailedCalls(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: qaerrors.Transient(errors.New("hiccup"))},
		{resp: &Response{Content: "ok", InputTokens: 100, OutputTokens: 40}},
	}}
	g := newTestGateway(p)

	_, err := g.Call(context.Background(), Request{Label: "usage"})
	require.NoError(t, err)

	u := g.Usage()
	assert.Equal(t, 2, u.Calls)
	assert.Equal(t, 1, u.FailedCalls)
	assert.Equal(t, 1, u.Retries)
	assert.Equal(t, 100, u.InputTokens)
	assert.Equal(t, 40, u.OutputTokens)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
