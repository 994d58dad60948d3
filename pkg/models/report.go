package models

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus distinguishes success, partial success, and failure so that
// downstream consumers never confuse silence with success
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageDegraded  StageStatus = "degraded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// RunState is the orchestrator's top-level state
type RunState string

const (
	StateReceived   RunState = "received"
	StateAnalyzing  RunState = "analyzing"
	StateGenerating RunState = "generating"
	StateValidating RunState = "validating"
	StateExecuting  RunState = "executing"
	StateReporting  RunState = "reporting"
	StateDone       RunState = "done"
	StateErrored    RunState = "errored"
)

// StageReport is one stage's outcome within a run report
type StageReport struct {
	Stage  Stage       `json:"stage"`
	Status StageStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// UsageSummary aggregates model-call cost accounting for a run
type UsageSummary struct {
	Calls        int `json:"calls"`
	FailedCalls  int `json:"failed_calls"`
	Retries      int `json:"retries"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RunReport is the orchestrator's final assembly for one run
type RunReport struct {
	RunID        uuid.UUID             `json:"run_id"`
	Trigger      Trigger               `json:"trigger"`
	State        RunState              `json:"state"`
	Silent       bool                  `json:"silent,omitempty"` // suppress external notification
	Stages       []StageReport         `json:"stages"`
	Analysis     *CodeAnalysis         `json:"analysis,omitempty"`
	Requirements *RequirementsAnalysis `json:"requirements,omitempty"`
	Dependencies *DependencyAnalysis   `json:"dependencies,omitempty"`
	Generation   *GenerationResult     `json:"generation,omitempty"`
	Execution    *ExecutionResult      `json:"execution,omitempty"`
	Coverage     *CoverageAnalysis     `json:"coverage,omitempty"`
	Insights     *LearningInsights     `json:"insights,omitempty"`
	Usage        UsageSummary          `json:"usage"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// StageFor returns the report entry for a stage, or nil if it was not run
func (r *RunReport) StageFor(stage Stage) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == stage {
			return &r.Stages[i]
		}
	}
	return nil
}
