package models

import "github.com/google/uuid"

// TriggerKind identifies what started an analysis run
type TriggerKind string

const (
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerComment     TriggerKind = "comment_command"
	TriggerSilent      TriggerKind = "silent"
	TriggerCIFailure   TriggerKind = "ci_failure"
)

// Stage identifies one independently invokable unit of the pipeline
type Stage string

const (
	StageAnalyzer     Stage = "analyzer"
	StageRequirements Stage = "requirements"
	StageDependencies Stage = "dependencies"
	StageGeneration   Stage = "generation"
	StageExecution    Stage = "execution"
	StageCoverage     Stage = "coverage"
	StageFeedback     Stage = "feedback"
	StageCIFix        Stage = "ci_fix"
)

// Trigger is the closed variant describing what started a run
type Trigger struct {
	Kind    TriggerKind `json:"kind"`
	Command string      `json:"command,omitempty"` // set for comment commands, e.g. "/qa generate-tests"
}

// PullRequest carries the PR metadata relevant to analysis
type PullRequest struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	BaseBranch  string `json:"base_branch"`
	HeadBranch  string `json:"head_branch"`
	HeadSHA     string `json:"head_sha"`
	Author      string `json:"author,omitempty"`
}

// AnalysisRequest is the immutable input for a run. The orchestrator owns it
// for the run's lifetime.
type AnalysisRequest struct {
	RunID        uuid.UUID   `json:"run_id"`
	Trigger      Trigger     `json:"trigger"`
	PullRequest  PullRequest `json:"pull_request"`
	Diff         string      `json:"diff"`
	Requirements string      `json:"requirements,omitempty"` // pre-extracted acceptance criteria, if any
	CoverageData []byte      `json:"-"`                      // raw coverage artifact, if available
	Stages       []Stage     `json:"stages,omitempty"`       // explicit stage selection for comment commands
}

// NewAnalysisRequest assigns a fresh run ID and returns the request
func NewAnalysisRequest(trigger Trigger, pr PullRequest, diff string) AnalysisRequest {
	return AnalysisRequest{
		RunID:       uuid.New(),
		Trigger:     trigger,
		PullRequest: pr,
		Diff:        diff,
	}
}
