package feedback

import (
	"context"
	"math/rand"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkman-dev/pinkman/internal/observability"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

func decided(category models.SuggestionCategory, verdict models.Verdict, n int) []models.FeedbackEntry {
	entries := make([]models.FeedbackEntry, n)
	for i := range entries {
		entries[i] = models.FeedbackEntry{Category: category, Verdict: verdict}
	}
	return entries
}

func TestAggregate_Stats(t *testing.T) {
	var entries []models.FeedbackEntry
	entries = append(entries, decided(models.CategoryGeneratedTest, models.VerdictAccepted, 4)...)
	entries = append(entries, decided(models.CategoryGeneratedTest, models.VerdictRejected, 1)...)
	entries = append(entries, decided(models.CategoryRiskFinding, models.VerdictPending, 2)...)

	insights := Aggregate(entries)
	assert.Equal(t, 7, insights.SampleCount)
	require.Len(t, insights.Stats, 2)

	tests := insights.Stats[0]
	assert.Equal(t, models.CategoryGeneratedTest, tests.Category)
	assert.Equal(t, 5, tests.Total)
	assert.InDelta(t, 0.8, tests.AcceptanceRate(), 0.001)

	risks := insights.Stats[1]
	assert.Equal(t, models.CategoryRiskFinding, risks.Category)
	assert.Equal(t, 2, risks.Total)
	assert.Zero(t, risks.AcceptanceRate())
}

func TestAggregate_RejectionPattern(t *testing.T) {
	var entries []models.FeedbackEntry
	entries = append(entries, decided(models.CategoryCoverageSuggestion, models.VerdictRejected, 7)...)
	entries = append(entries, decided(models.CategoryCoverageSuggestion, models.VerdictAccepted, 1)...)

	insights := Aggregate(entries)
	require.Len(t, insights.Patterns, 1)
	assert.Contains(t, insights.Patterns[0], "usually rejected")
	assert.Contains(t, insights.Patterns[0], string(models.CategoryCoverageSuggestion))
}

func TestAggregate_SmallSampleHasNoPatterns(t *testing.T) {
	entries := decided(models.CategoryAutoFix, models.VerdictRejected, 4)
	insights := Aggregate(entries)
	assert.Empty(t, insights.Patterns)
}

func TestPromptEnhancements_FromStoredVerdicts(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store, observability.NewNop())

	var entries []models.FeedbackEntry
	entries = append(entries, decided(models.CategoryGeneratedTest, models.VerdictRejected, 6)...)
	entries = append(entries, decided(models.CategoryGeneratedTest, models.VerdictAccepted, 1)...)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at, id`)).
		WillReturnRows(entryRows(entries...))

	patterns, err := engine.PromptEnhancements(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Contains(t, patterns[0], "usually rejected")
}

func TestCollectRun_RecordsPendingSuggestions(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store, observability.NewNop())
	runID := uuid.New()

	report := &models.RunReport{
		RunID: runID,
		Generation: &models.GenerationResult{
			Tests: []models.GeneratedTest{{ID: uuid.New(), TargetPath: "tests/login.spec.ts"}},
		},
		Coverage: &models.CoverageAnalysis{
			Suggestions: []models.CoverageSuggestion{{FilePath: "src/checkout.ts", Line: 11}},
		},
	}

	insert := regexp.QuoteMeta(`INSERT INTO feedback_entries`)
	mock.ExpectQuery(insert).
		WithArgs(pgxmock.AnyArg(), runID, "tests/login.spec.ts", models.CategoryGeneratedTest,
			models.VerdictPending, "", pgxmock.AnyArg()).
		WillReturnRows(entryRows(models.FeedbackEntry{ID: uuid.New(), RunID: runID}))
	mock.ExpectQuery(insert).
		WithArgs(pgxmock.AnyArg(), runID, "src/checkout.ts:11", models.CategoryCoverageSuggestion,
			models.VerdictPending, "", pgxmock.AnyArg()).
		WillReturnRows(entryRows(models.FeedbackEntry{ID: uuid.New(), RunID: runID}))

	recorded, err := engine.CollectRun(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectRun_EmptyReport(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store, observability.NewNop())

	recorded, err := engine.CollectRun(context.Background(), &models.RunReport{RunID: uuid.New()})
	require.NoError(t, err)
	assert.Zero(t, recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregate_OrderIndependent(t *testing.T) {
	var entries []models.FeedbackEntry
	entries = append(entries, decided(models.CategoryGeneratedTest, models.VerdictAccepted, 9)...)
	entries = append(entries, decided(models.CategoryGeneratedTest, models.VerdictRejected, 1)...)
	entries = append(entries, decided(models.CategoryAutoFix, models.VerdictRejected, 6)...)

	want := Aggregate(entries)

	shuffled := make([]models.FeedbackEntry, len(entries))
	copy(shuffled, entries)
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	assert.Equal(t, want, Aggregate(shuffled))
}
