package requirements

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/gatewaytest"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

func TestAnalyze_WithDocument(t *testing.T) {
	gw := gatewaytest.New(t, `{
		"scenarios": [
			{"name": "checkout succeeds", "given": "a cart with items", "when": "the user pays", "then": "an order is created", "acceptance_refs": ["AC-1"]}
		],
		"gaps": ["AC-3 refunds are not touched by this change"],
		"risks": []
	}`)

	req := models.NewAnalysisRequest(
		models.Trigger{Kind: models.TriggerPullRequest},
		models.PullRequest{Title: "Checkout flow"},
		"diff --git a/x b/x\n",
	)
	req.Requirements = "AC-1: paying for a cart creates an order.\nAC-3: refunds complete within 5 days."

	result, err := New(gw, zap.NewNop()).Analyze(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "checkout succeeds", result.Scenarios[0].Name)
	assert.Len(t, result.Gaps, 1)
}

func TestAnalyze_NoScenariosIsMalformed(t *testing.T) {
	gw := gatewaytest.New(t, `{"scenarios": [], "gaps": [], "risks": []}`)

	req := models.NewAnalysisRequest(models.Trigger{Kind: models.TriggerPullRequest}, models.PullRequest{}, "")
	_, err := New(gw, zap.NewNop()).Analyze(context.Background(), req)
	assert.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestAnalyze_IncompleteScenarioIsMalformed(t *testing.T) {
	gw := gatewaytest.New(t, `{"scenarios": [{"name": "broken", "when": "", "then": ""}]}`)

	req := models.NewAnalysisRequest(models.Trigger{Kind: models.TriggerPullRequest}, models.PullRequest{}, "")
	_, err := New(gw, zap.NewNop()).Analyze(context.Background(), req)
	assert.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}
