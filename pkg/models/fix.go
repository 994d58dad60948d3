package models

import "time"

// FailureCategory classifies a CI failure signature
type FailureCategory string

const (
	FailureFlakyTest   FailureCategory = "flaky_test"
	FailureSyntax      FailureCategory = "syntax_error"
	FailureDependency  FailureCategory = "dependency_mismatch"
	FailureEnvironment FailureCategory = "environment"
	FailureUnknown     FailureCategory = "unknown"
)

// CIFailureInfo describes one failed CI job
type CIFailureInfo struct {
	JobID      int64           `json:"job_id"`
	JobName    string          `json:"job_name"`
	WorkflowID int64           `json:"workflow_id,omitempty"`
	LogExcerpt string          `json:"log_excerpt"`
	Category   FailureCategory `json:"category,omitempty"` // empty until classified
}

// FixDiagnosis is the structured classification of a CI failure
type FixDiagnosis struct {
	Title       string          `json:"title"`
	Category    FailureCategory `json:"category"`
	FilePath    string          `json:"file_path,omitempty"`
	LineNumber  int             `json:"line_number,omitempty"`
	RootCause   string          `json:"root_cause"`
	Remediation string          `json:"remediation"`
	Confidence  int             `json:"confidence"` // 0-100
}

// FixVerdict is the terminal state of an auto-fix session
type FixVerdict string

const (
	VerdictFixed         FixVerdict = "fixed"
	VerdictExhausted     FixVerdict = "exhausted"
	VerdictNotApplicable FixVerdict = "not_applicable"
)

// FixAttempt records one remediation attempt. Success is provisional until a
// follow-up CI signal arrives.
type FixAttempt struct {
	Index      int       `json:"index"`
	Action     string    `json:"action"`
	AppliedAt  time.Time `json:"applied_at"`
	Confirmed  bool      `json:"confirmed"`  // follow-up signal received
	Successful bool      `json:"successful"` // meaningless until Confirmed
}

// AutoFixResult aggregates attempts with the final verdict
type AutoFixResult struct {
	Failure   CIFailureInfo `json:"failure"`
	Diagnosis *FixDiagnosis `json:"diagnosis,omitempty"`
	Attempts  []FixAttempt  `json:"attempts"`
	Verdict   FixVerdict    `json:"verdict"`
}
