package models

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is a human judgement on a past suggestion
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
	VerdictModified Verdict = "modified"
	VerdictPending  Verdict = "pending"
)

// SuggestionCategory groups suggestions for learning aggregation
type SuggestionCategory string

const (
	CategoryGeneratedTest      SuggestionCategory = "generated_test"
	CategoryRiskFinding        SuggestionCategory = "risk_finding"
	CategoryCoverageSuggestion SuggestionCategory = "coverage_suggestion"
	CategoryAutoFix            SuggestionCategory = "auto_fix"
)

// FeedbackEntry records one human verdict on a suggestion. Entries are
// append-only and persist across runs.
type FeedbackEntry struct {
	ID        uuid.UUID          `json:"id"`
	RunID     uuid.UUID          `json:"run_id"`
	Subject   string             `json:"subject"`
	Category  SuggestionCategory `json:"category"`
	Verdict   Verdict            `json:"verdict"`
	Comment   string             `json:"comment,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// CategoryStats aggregates verdicts for one suggestion category
type CategoryStats struct {
	Category SuggestionCategory `json:"category"`
	Total    int                `json:"total"`
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
	Modified int                `json:"modified"`
}

// AcceptanceRate returns accepted/(total decided), or 0 when nothing decided
func (s CategoryStats) AcceptanceRate() float64 {
	decided := s.Accepted + s.Rejected + s.Modified
	if decided == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(decided)
}

// LearningInsights is derived from feedback history on demand. It is a cache
// over the log, never a source of truth.
type LearningInsights struct {
	Stats       []CategoryStats `json:"stats"`
	Patterns    []string        `json:"patterns,omitempty"`
	SampleCount int             `json:"sample_count"`
}
