// Package orchestrator drives a full analysis run. It owns trigger-to-stage
// mapping, fans the analyzers out in parallel, and assembles the run report.
//
// The code analyzer is the one required stage: without its output there is
// nothing to generate tests from, so its failure ends the run. Every other
// stage degrades the report instead of failing it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pinkman-dev/pinkman/internal/analyzer"
	"github.com/pinkman-dev/pinkman/internal/coverage"
	"github.com/pinkman-dev/pinkman/internal/depscan"
	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/internal/feedback"
	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/internal/loop"
	"github.com/pinkman-dev/pinkman/internal/requirements"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// errNoCoverageArtifact marks the coverage stage skipped, not silent, when a
// run carries no coverage report
var errNoCoverageArtifact = errors.New("no coverage artifact provided")

// Applier materializes proposed actions. Satisfied by executor.Executor.
type Applier interface {
	Apply(ctx context.Context, actions []models.ProposedAction) (*models.ExecutionResult, error)
}

// Deps collects the stage implementations a run can dispatch to. Executor
// and Learning are optional; a nil field skips the stage.
type Deps struct {
	Gateway      *gateway.Gateway
	Analyzer     *analyzer.Analyzer
	Requirements *requirements.Analyzer
	Dependencies *depscan.Scanner
	Loop         *loop.Loop
	Coverage     *coverage.Analyzer
	Executor     Applier
	Learning     *feedback.Engine
}

// Orchestrator runs the pipeline
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// New creates an Orchestrator
func New(deps Deps, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{deps: deps, logger: logger.Named("orchestrator")}
}

// stagesFor maps a trigger onto the stages it runs. Comment commands may
// carry an explicit stage selection which wins over the default; a silent
// trigger always means analyzer alone.
func stagesFor(req models.AnalysisRequest) map[models.Stage]bool {
	if req.Trigger.Kind == models.TriggerSilent {
		return map[models.Stage]bool{models.StageAnalyzer: true}
	}
	if len(req.Stages) > 0 {
		selected := map[models.Stage]bool{models.StageAnalyzer: true}
		for _, s := range req.Stages {
			selected[s] = true
		}
		return selected
	}

	all := map[models.Stage]bool{
		models.StageAnalyzer:     true,
		models.StageRequirements: true,
		models.StageDependencies: true,
		models.StageGeneration:   true,
		models.StageCoverage:     true,
		models.StageFeedback:     true,
	}
	switch req.Trigger.Kind {
	case models.TriggerPullRequest, models.TriggerComment:
		return all
	default:
		return map[models.Stage]bool{models.StageAnalyzer: true}
	}
}

// Run executes the pipeline for one request. The returned report is always
// complete; the error mirrors report.State == errored.
func (o *Orchestrator) Run(ctx context.Context, req models.AnalysisRequest) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     req.RunID,
		Trigger:   req.Trigger,
		State:     models.StateReceived,
		Silent:    req.Trigger.Kind == models.TriggerSilent,
		StartedAt: time.Now().UTC(),
	}
	enabled := stagesFor(req)

	o.logger.Info("run started",
		zap.String("run_id", req.RunID.String()),
		zap.String("trigger", string(req.Trigger.Kind)),
		zap.Int("pr", req.PullRequest.Number))

	err := o.execute(ctx, req, enabled, report)
	if err != nil {
		report.State = models.StateErrored
	} else {
		report.State = models.StateDone
	}
	report.Usage = o.deps.Gateway.Usage()
	report.FinishedAt = time.Now().UTC()

	o.logger.Info("run finished",
		zap.String("run_id", req.RunID.String()),
		zap.String("state", string(report.State)),
		zap.Int("model_calls", report.Usage.Calls))
	return report, err
}

func (o *Orchestrator) execute(ctx context.Context, req models.AnalysisRequest, enabled map[models.Stage]bool, report *models.RunReport) error {
	enhancements := o.loadEnhancements(ctx, enabled, report)

	report.State = models.StateAnalyzing
	changes, err := diffparse.Parse(req.Diff)
	if err != nil {
		addStage(report, models.StageAnalyzer, models.StageFailed, err)
		return qaerrors.RequiredStage(string(models.StageAnalyzer), err)
	}

	if err := o.analyze(ctx, req, changes, enhancements, enabled, report); err != nil {
		return err
	}

	if enabled[models.StageGeneration] {
		if err := ctx.Err(); err != nil {
			addStage(report, models.StageGeneration, models.StageSkipped, err)
			return err
		}
		o.generate(ctx, req, enhancements, enabled, report)
	}

	if enabled[models.StageCoverage] {
		if len(req.CoverageData) > 0 {
			o.analyzeCoverage(req, changes, report)
		} else {
			addStage(report, models.StageCoverage, models.StageSkipped, errNoCoverageArtifact)
		}
	}

	report.State = models.StateReporting
	o.collectFeedback(ctx, enabled, report)
	return ctx.Err()
}

// collectFeedback persists the run's suggestions as pending entries for
// later human verdicts. Collection failures never fail the run.
func (o *Orchestrator) collectFeedback(ctx context.Context, enabled map[models.Stage]bool, report *models.RunReport) {
	if !enabled[models.StageFeedback] || o.deps.Learning == nil || ctx.Err() != nil {
		return
	}
	recorded, err := o.deps.Learning.CollectRun(ctx, report)
	if err != nil {
		o.logger.Warn("feedback collection failed", zap.Error(err), zap.Int("recorded", recorded))
		return
	}
	o.logger.Debug("feedback entries recorded", zap.Int("count", recorded))
}

// analyze fans the three analyzers out in parallel. Only the code analyzer
// can fail the run; the optional two record a degraded stage instead.
func (o *Orchestrator) analyze(ctx context.Context, req models.AnalysisRequest, changes *diffparse.DiffSet, enhancements []string, enabled map[models.Stage]bool, report *models.RunReport) error {
	var (
		reqsResult *models.RequirementsAnalysis
		reqsErr    error
		depsResult *models.DependencyAnalysis
		depsErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analysis, err := o.deps.Analyzer.Analyze(gctx, req, changes, enhancements)
		if err != nil {
			return qaerrors.RequiredStage(string(models.StageAnalyzer), err)
		}
		report.Analysis = analysis
		return nil
	})
	if enabled[models.StageRequirements] {
		g.Go(func() error {
			reqsResult, reqsErr = o.deps.Requirements.Analyze(gctx, req)
			return nil
		})
	}
	if enabled[models.StageDependencies] {
		g.Go(func() error {
			depsResult, depsErr = o.deps.Dependencies.Analyze(gctx, req, changes)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		addStage(report, models.StageAnalyzer, models.StageFailed, err)
		return err
	}
	addStage(report, models.StageAnalyzer, models.StageSucceeded, nil)

	if enabled[models.StageRequirements] {
		report.Requirements = reqsResult
		addOptional(report, models.StageRequirements, reqsErr)
	}
	if enabled[models.StageDependencies] {
		report.Dependencies = depsResult
		addOptional(report, models.StageDependencies, depsErr)
	}
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, req models.AnalysisRequest, enhancements []string, enabled map[models.Stage]bool, report *models.RunReport) {
	report.State = models.StateGenerating
	generation, err := o.deps.Loop.Run(ctx, req, report.Analysis, report.Requirements, enhancements)
	if err != nil {
		addStage(report, models.StageGeneration, models.StageFailed, err)
		return
	}
	report.State = models.StateValidating
	report.Generation = generation

	status := models.StageSucceeded
	if len(generation.Dropped) > 0 {
		status = models.StageDegraded
	}
	stage := models.StageReport{
		Stage:  models.StageGeneration,
		Status: status,
		Detail: fmt.Sprintf("%d tests in %d rounds", len(generation.Tests), generation.Rounds),
	}
	report.Stages = append(report.Stages, stage)

	if enabled[models.StageExecution] && o.deps.Executor != nil && len(generation.Tests) > 0 {
		o.executeActions(ctx, generation, report)
	}
}

func (o *Orchestrator) executeActions(ctx context.Context, generation *models.GenerationResult, report *models.RunReport) {
	report.State = models.StateExecuting

	actions := make([]models.ProposedAction, 0, len(generation.Tests)+1)
	for _, test := range generation.Tests {
		actions = append(actions, models.ProposedAction{
			Kind:    models.ActionWriteFile,
			Path:    test.TargetPath,
			Content: test.Source,
			Origin:  models.StageGeneration,
		})
	}
	actions = append(actions, models.ProposedAction{
		Kind:    models.ActionCommit,
		Message: fmt.Sprintf("test: add %d generated tests", len(generation.Tests)),
		Origin:  models.StageGeneration,
	})

	result, err := o.deps.Executor.Apply(ctx, actions)
	report.Execution = result
	addOptional(report, models.StageExecution, err)
}

func (o *Orchestrator) analyzeCoverage(req models.AnalysisRequest, changes *diffparse.DiffSet, report *models.RunReport) {
	analysis, err := o.deps.Coverage.Analyze(req.CoverageData, changes)
	report.Coverage = analysis
	addOptional(report, models.StageCoverage, err)
}

// loadEnhancements pulls learned preferences for the prompts. Absence of a
// feedback store, or its failure, never blocks a run.
func (o *Orchestrator) loadEnhancements(ctx context.Context, enabled map[models.Stage]bool, report *models.RunReport) []string {
	if !enabled[models.StageFeedback] || o.deps.Learning == nil {
		return nil
	}
	insights, err := o.deps.Learning.Insights(ctx)
	if err != nil {
		addStage(report, models.StageFeedback, models.StageDegraded, err)
		return nil
	}
	report.Insights = insights
	addStage(report, models.StageFeedback, models.StageSucceeded, nil)
	return insights.Patterns
}

func addStage(report *models.RunReport, stage models.Stage, status models.StageStatus, err error) {
	entry := models.StageReport{Stage: stage, Status: status}
	if err != nil {
		entry.Error = err.Error()
	}
	report.Stages = append(report.Stages, entry)
}

// addOptional marks an optional stage succeeded or degraded by its error
func addOptional(report *models.RunReport, stage models.Stage, err error) {
	if err == nil {
		addStage(report, stage, models.StageSucceeded, nil)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		addStage(report, stage, models.StageSkipped, err)
		return
	}
	addStage(report, stage, models.StageDegraded, err)
}
