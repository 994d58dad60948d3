package models

import "github.com/google/uuid"

// TestRole is the structuring role of a generated artifact within the
// page-object-model convention
type TestRole string

const (
	RolePageObject TestRole = "page_object"
	RoleSpec       TestRole = "spec"
	RoleFixture    TestRole = "fixture"
)

// GeneratedTest is one candidate test artifact. Identity is stable across
// correction rounds so that only failing candidates are regenerated.
type GeneratedTest struct {
	ID         uuid.UUID `json:"id"`
	TargetPath string    `json:"target_path"`
	Source     string    `json:"source"`
	Role       TestRole  `json:"role"`
	Provenance string    `json:"provenance,omitempty"` // which analysis produced it
}

// Severity grades a validation finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError is one syntax problem found in a candidate
type ValidationError struct {
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ValidationResult is the outcome of validating a single candidate
type ValidationResult struct {
	TestID   uuid.UUID         `json:"test_id"`
	Passed   bool              `json:"passed"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// FixSuggestion proposes a correction for one validation error
type FixSuggestion struct {
	TestID     uuid.UUID `json:"test_id"`
	Line       int       `json:"line"`
	Suggestion string    `json:"suggestion"`
}

// BatchValidationResult aggregates per-candidate results plus derived fixes
type BatchValidationResult struct {
	Results     []ValidationResult `json:"results"`
	Suggestions []FixSuggestion    `json:"suggestions,omitempty"`
}

// AllPassed reports whether every candidate in the batch validated cleanly
func (b *BatchValidationResult) AllPassed() bool {
	for _, r := range b.Results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failing returns the results for candidates that did not validate
func (b *BatchValidationResult) Failing() []ValidationResult {
	var failing []ValidationResult
	for _, r := range b.Results {
		if !r.Passed {
			failing = append(failing, r)
		}
	}
	return failing
}

// GenerationResult is the outcome of the self-correction loop
type GenerationResult struct {
	Tests   []GeneratedTest `json:"tests"`             // validated, safe to materialize
	Dropped []GeneratedTest `json:"dropped,omitempty"` // never passed within the round budget
	Rounds  int             `json:"rounds"`
}
