package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkman-dev/pinkman/internal/analyzer"
	"github.com/pinkman-dev/pinkman/internal/coverage"
	"github.com/pinkman-dev/pinkman/internal/depscan"
	"github.com/pinkman-dev/pinkman/internal/feedback"
	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/internal/gatewaytest"
	"github.com/pinkman-dev/pinkman/internal/generator"
	"github.com/pinkman-dev/pinkman/internal/loop"
	"github.com/pinkman-dev/pinkman/internal/observability"
	"github.com/pinkman-dev/pinkman/internal/requirements"
	"github.com/pinkman-dev/pinkman/internal/validator"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

const sampleDiff = `diff --git a/src/checkout.ts b/src/checkout.ts
--- a/src/checkout.ts
+++ b/src/checkout.ts
@@ -10,2 +10,4 @@
 context line
+added one
+added two
 another context line
`

// analysisResponse satisfies both the code analyzer's and the requirements
// analyzer's expected shapes, so the parallel fan-out can share one script
const analysisResponse = `{
  "summary": "checkout validation changes",
  "overall_risk": "medium",
  "risk_areas": [],
  "testing_focus": ["checkout error states"],
  "quality_issues": [],
  "scenarios": [{"name": "checkout", "given": "a cart", "when": "paying", "then": "order confirmed", "acceptance_refs": []}],
  "gaps": [],
  "risks": []
}`

const generationResponse = `[{"target_path": "tests/checkout.spec.ts", "source": "const a = 1;", "role": "spec"}]`

// analyzerOnlyResponse validates for the code analyzer but not for the
// requirements analyzer (no scenarios)
const analyzerOnlyResponse = `{"summary": "ok", "overall_risk": "low", "risk_areas": [], "testing_focus": [], "quality_issues": [], "scenarios": []}`

func newOrchestrator(gw *gateway.Gateway, applier Applier, learning *feedback.Engine) *Orchestrator {
	logger := observability.NewNop()
	return New(Deps{
		Gateway:      gw,
		Analyzer:     analyzer.New(gw, logger),
		Requirements: requirements.New(gw, logger),
		Dependencies: depscan.New(gw, logger),
		Loop:         loop.New(generator.New(gw, logger, 5), validator.New(logger), logger, 3),
		Coverage:     coverage.New(logger),
		Executor:     applier,
		Learning:     learning,
	}, logger)
}

func prRequest(kind models.TriggerKind, stages ...models.Stage) models.AnalysisRequest {
	req := models.NewAnalysisRequest(models.Trigger{Kind: kind}, models.PullRequest{
		Owner: "acme", Repo: "shop", Number: 12, HeadSHA: "abc123",
	}, sampleDiff)
	req.Stages = stages
	return req
}

func TestRun_FullPipeline(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analysisResponse, analysisResponse, generationResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	report, err := o.Run(context.Background(), prRequest(models.TriggerPullRequest))
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, report.State)
	assert.False(t, report.Silent)
	require.NotNil(t, report.Analysis)
	require.NotNil(t, report.Requirements)
	require.NotNil(t, report.Dependencies)
	require.NotNil(t, report.Generation)
	assert.Len(t, report.Generation.Tests, 1)

	for _, stage := range []models.Stage{models.StageAnalyzer, models.StageRequirements, models.StageDependencies, models.StageGeneration} {
		entry := report.StageFor(stage)
		require.NotNil(t, entry, "stage %s missing from report", stage)
		assert.Equal(t, models.StageSucceeded, entry.Status, "stage %s", stage)
	}

	// no artifact on the request, so coverage is reported skipped, not omitted
	coverageEntry := report.StageFor(models.StageCoverage)
	require.NotNil(t, coverageEntry)
	assert.Equal(t, models.StageSkipped, coverageEntry.Status)

	// diff has no manifests, so the dependency scanner never called the model
	assert.Equal(t, 3, script.Calls)
	assert.Equal(t, 3, report.Usage.Calls)
	assert.Positive(t, report.Usage.InputTokens)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_AnalyzerFailureErrorsRun(t *testing.T) {
	script := &gatewaytest.Script{
		Responses: []string{analysisResponse},
		Errors:    []error{qaerrors.Fatal(assert.AnError), qaerrors.Fatal(assert.AnError)},
	}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	report, err := o.Run(context.Background(), prRequest(models.TriggerPullRequest))
	require.ErrorIs(t, err, qaerrors.ErrStageRequired)

	assert.Equal(t, models.StateErrored, report.State)
	entry := report.StageFor(models.StageAnalyzer)
	require.NotNil(t, entry)
	assert.Equal(t, models.StageFailed, entry.Status)
	assert.Nil(t, report.Generation)
	assert.Nil(t, report.StageFor(models.StageGeneration))
	assert.Positive(t, report.Usage.FailedCalls)
}

func TestRun_UnparsableDiffErrorsWithoutModelCalls(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analysisResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	req := prRequest(models.TriggerPullRequest)
	req.Diff = "not a diff at all"

	report, err := o.Run(context.Background(), req)
	require.ErrorIs(t, err, qaerrors.ErrStageRequired)
	assert.Equal(t, models.StateErrored, report.State)
	assert.Zero(t, script.Calls)
}

func TestRun_OptionalStageDegrades(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analyzerOnlyResponse, analyzerOnlyResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	report, err := o.Run(context.Background(), prRequest(models.TriggerPullRequest, models.StageAnalyzer, models.StageRequirements))
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, report.State)
	assert.Equal(t, models.StageSucceeded, report.StageFor(models.StageAnalyzer).Status)
	assert.Equal(t, models.StageDegraded, report.StageFor(models.StageRequirements).Status)
	assert.Nil(t, report.StageFor(models.StageGeneration))
}

func TestRun_CoverageStage(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analyzerOnlyResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	req := prRequest(models.TriggerPullRequest, models.StageAnalyzer, models.StageCoverage)
	req.CoverageData = []byte("SF:src/checkout.ts\nDA:11,0\nDA:12,1\nend_of_record\n")

	report, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, report.Coverage)
	assert.Equal(t, models.StageSucceeded, report.StageFor(models.StageCoverage).Status)
	require.NotEmpty(t, report.Coverage.Suggestions)
	assert.True(t, report.Coverage.Suggestions[0].Touched)
	assert.Equal(t, 11, report.Coverage.Suggestions[0].Line)
}

func TestRun_UnrecognizedCoverageDegrades(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analyzerOnlyResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	req := prRequest(models.TriggerPullRequest, models.StageAnalyzer, models.StageCoverage)
	req.CoverageData = []byte("not a coverage artifact")

	report, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, report.State)
	assert.Equal(t, models.StageDegraded, report.StageFor(models.StageCoverage).Status)
}

type captureApplier struct {
	actions []models.ProposedAction
}

func (c *captureApplier) Apply(ctx context.Context, actions []models.ProposedAction) (*models.ExecutionResult, error) {
	c.actions = actions
	results := make([]models.ActionResult, len(actions))
	for i, a := range actions {
		results[i] = models.ActionResult{Action: a, Applied: true}
	}
	return &models.ExecutionResult{Results: results, FilesWritten: len(actions) - 1}, nil
}

func TestRun_ExecutionIsOptIn(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analyzerOnlyResponse, generationResponse}}
	applier := &captureApplier{}
	o := newOrchestrator(gatewaytest.Wrap(script), applier, nil)

	// default stage set never executes
	report, err := o.Run(context.Background(), prRequest(models.TriggerPullRequest, models.StageAnalyzer, models.StageGeneration))
	require.NoError(t, err)
	assert.Nil(t, report.Execution)
	assert.Empty(t, applier.actions)

	script = &gatewaytest.Script{Responses: []string{analyzerOnlyResponse, generationResponse}}
	o = newOrchestrator(gatewaytest.Wrap(script), applier, nil)
	report, err = o.Run(context.Background(), prRequest(models.TriggerComment, models.StageAnalyzer, models.StageGeneration, models.StageExecution))
	require.NoError(t, err)

	require.NotNil(t, report.Execution)
	assert.Equal(t, models.StageSucceeded, report.StageFor(models.StageExecution).Status)
	require.Len(t, applier.actions, 2)
	assert.Equal(t, models.ActionWriteFile, applier.actions[0].Kind)
	assert.Equal(t, "tests/checkout.spec.ts", applier.actions[0].Path)
	assert.Equal(t, models.ActionCommit, applier.actions[1].Kind)
}

func TestRun_SilentTriggerRunsAnalyzerOnly(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analysisResponse, analysisResponse, generationResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	report, err := o.Run(context.Background(), prRequest(models.TriggerSilent))
	require.NoError(t, err)

	assert.True(t, report.Silent)
	assert.Equal(t, models.StateDone, report.State)
	require.NotNil(t, report.Analysis)
	assert.Equal(t, 1, script.Calls, "silent analysis makes exactly one model call")

	assert.Nil(t, report.Requirements)
	assert.Nil(t, report.Generation)
	assert.Nil(t, report.StageFor(models.StageRequirements))
	assert.Nil(t, report.StageFor(models.StageGeneration))
	assert.Nil(t, report.StageFor(models.StageCoverage))
}

func TestRun_SilentTriggerIgnoresStageSelection(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analyzerOnlyResponse, generationResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	report, err := o.Run(context.Background(), prRequest(models.TriggerSilent, models.StageAnalyzer, models.StageGeneration))
	require.NoError(t, err)

	assert.True(t, report.Silent)
	assert.Equal(t, 1, script.Calls)
	assert.Nil(t, report.Generation)
}

func TestStagesFor(t *testing.T) {
	pr := prRequest(models.TriggerPullRequest)
	enabled := stagesFor(pr)
	assert.True(t, enabled[models.StageAnalyzer])
	assert.True(t, enabled[models.StageGeneration])
	assert.True(t, enabled[models.StageFeedback])
	assert.False(t, enabled[models.StageExecution])

	explicit := prRequest(models.TriggerComment, models.StageCoverage)
	enabled = stagesFor(explicit)
	assert.True(t, enabled[models.StageAnalyzer], "analyzer is always included")
	assert.True(t, enabled[models.StageCoverage])
	assert.False(t, enabled[models.StageGeneration])

	ci := prRequest(models.TriggerCIFailure)
	enabled = stagesFor(ci)
	assert.True(t, enabled[models.StageAnalyzer])
	assert.False(t, enabled[models.StageGeneration])

	silent := prRequest(models.TriggerSilent, models.StageGeneration)
	enabled = stagesFor(silent)
	assert.True(t, enabled[models.StageAnalyzer])
	assert.False(t, enabled[models.StageGeneration], "explicit stages never widen a silent run")
	assert.Len(t, enabled, 1)
}

func TestRun_CancelledContext(t *testing.T) {
	script := &gatewaytest.Script{Responses: []string{analyzerOnlyResponse}}
	o := newOrchestrator(gatewaytest.Wrap(script), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.Run(ctx, prRequest(models.TriggerPullRequest, models.StageAnalyzer))
	require.Error(t, err)
	assert.Equal(t, models.StateErrored, report.State)
}
