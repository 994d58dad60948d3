package depscan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/internal/gatewaytest"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

const manifestOnlyDiff = `diff --git a/package.json b/package.json
--- a/package.json
+++ b/package.json
@@ -5,2 +5,2 @@
-    "express": "^4.18.0"
+    "express": "^5.0.0"
`

const codeOnlyDiff = `diff --git a/src/app.ts b/src/app.ts
--- a/src/app.ts
+++ b/src/app.ts
@@ -1,1 +1,2 @@
 const a = 1;
+const b = 2;
`

func TestAnalyze_NoManifestsSkipsGateway(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{`{}`}}
	gw := gatewaytest.Wrap(script)

	changes, err := diffparse.Parse(codeOnlyDiff)
	require.NoError(t, err)

	req := models.NewAnalysisRequest(models.Trigger{Kind: models.TriggerPullRequest}, models.PullRequest{}, codeOnlyDiff)
	result, err := New(gw, zap.NewNop()).Analyze(context.Background(), req, changes)
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, result.OverallRisk)
	assert.Equal(t, 0, script.Calls, "no gateway call for manifest-free diffs")
}

func TestAnalyze_MajorBump(t *testing.T) {
	gw := gatewaytest.New(t, `{
		"changes": [{"name": "express", "manifest": "package.json", "old_version": "^4.18.0", "new_version": "^5.0.0"}],
		"overall_risk": "high",
		"concerns": ["express 5 changes middleware error semantics"]
	}`)

	changes, err := diffparse.Parse(manifestOnlyDiff)
	require.NoError(t, err)

	req := models.NewAnalysisRequest(models.Trigger{Kind: models.TriggerPullRequest}, models.PullRequest{}, manifestOnlyDiff)
	result, err := New(gw, zap.NewNop()).Analyze(context.Background(), req, changes)
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, result.OverallRisk)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "express", result.Changes[0].Name)
}

func TestManifestDiff_FiltersToManifestSections(t *testing.T) {
	combined := manifestOnlyDiff + codeOnlyDiff
	changes, err := diffparse.Parse(combined)
	require.NoError(t, err)

	filtered := manifestDiff(combined, changes.ManifestFiles())
	assert.Contains(t, filtered, "package.json")
	assert.NotContains(t, filtered, "src/app.ts")
}
