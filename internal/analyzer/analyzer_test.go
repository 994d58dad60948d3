package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/internal/gatewaytest"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

const testDiff = `diff --git a/src/login.ts b/src/login.ts
--- a/src/login.ts
+++ b/src/login.ts
@@ -1,2 +1,3 @@
 function login() {
+  retry();
 }
`

func testRequest() models.AnalysisRequest {
	return models.NewAnalysisRequest(
		models.Trigger{Kind: models.TriggerPullRequest},
		models.PullRequest{Title: "Retry on login", BaseBranch: "main", HeadBranch: "fix", HeadSHA: "abc"},
		testDiff,
	)
}

func TestAnalyze_Success(t *testing.T) {
	gw := gatewaytest.New(t, `{
		"summary": "Adds a retry to login",
		"overall_risk": "medium",
		"risk_areas": [{"file_path": "src/login.ts", "description": "retry loop may not terminate", "level": "high"}],
		"testing_focus": ["login retries on transient failure"]
	}`)

	changes, err := diffparse.Parse(testDiff)
	require.NoError(t, err)

	result, err := New(gw, zap.NewNop()).Analyze(context.Background(), testRequest(), changes, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RiskMedium, result.OverallRisk)
	assert.Equal(t, []string{"src/login.ts"}, result.ChangedFiles)
	require.Len(t, result.RiskAreas, 1)
	assert.Equal(t, models.RiskHigh, result.RiskAreas[0].Level)
}

func TestAnalyze_MalformedShape(t *testing.T) {
	// Valid JSON, wrong shape: no summary
	gw := gatewaytest.New(t, `{"overall_risk": "low"}`)

	changes, err := diffparse.Parse(testDiff)
	require.NoError(t, err)

	_, err = New(gw, zap.NewNop()).Analyze(context.Background(), testRequest(), changes, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestAnalyze_UnknownRiskLevelRejected(t *testing.T) {
	gw := gatewaytest.New(t, `{"summary": "ok", "overall_risk": "catastrophic"}`)

	changes, err := diffparse.Parse(testDiff)
	require.NoError(t, err)

	_, err = New(gw, zap.NewNop()).Analyze(context.Background(), testRequest(), changes, nil)
	assert.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestSystemPrompt_Enhancements(t *testing.T) {
	withBias := systemPrompt([]string{"avoid suggesting snapshot tests"})
	assert.Contains(t, withBias, "avoid suggesting snapshot tests")
	assert.NotContains(t, systemPrompt(nil), "Learned preferences")
}
