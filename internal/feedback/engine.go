package feedback

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/pkg/models"
)

// minSampleSize is the decided-entry floor below which no pattern is emitted
const minSampleSize = 5

// Engine derives learning insights from the feedback log. Insights are
// recomputed from the full log on demand, never stored.
type Engine struct {
	store  *Store
	logger *zap.Logger
}

// NewEngine creates an Engine over a store
func NewEngine(store *Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger.Named("learning")}
}

// Insights loads the full log and aggregates it
func (e *Engine) Insights(ctx context.Context) (*models.LearningInsights, error) {
	entries, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	insights := Aggregate(entries)
	e.logger.Debug("insights computed",
		zap.Int("sample_count", insights.SampleCount),
		zap.Int("patterns", len(insights.Patterns)))
	return insights, nil
}

// PromptEnhancements returns the insight patterns phrased for inclusion in
// generation prompts. Returns nil when the sample is too small to trust.
func (e *Engine) PromptEnhancements(ctx context.Context) ([]string, error) {
	insights, err := e.Insights(ctx)
	if err != nil {
		return nil, err
	}
	return insights.Patterns, nil
}

// CollectRun appends a pending entry for every suggestion a run produced,
// so reviewers can pass verdicts on them later. Returns the number recorded.
func (e *Engine) CollectRun(ctx context.Context, report *models.RunReport) (int, error) {
	var entries []models.FeedbackEntry
	if report.Generation != nil {
		for _, test := range report.Generation.Tests {
			entries = append(entries, models.FeedbackEntry{
				RunID:    report.RunID,
				Subject:  test.TargetPath,
				Category: models.CategoryGeneratedTest,
			})
		}
	}
	if report.Analysis != nil {
		for _, area := range report.Analysis.RiskAreas {
			entries = append(entries, models.FeedbackEntry{
				RunID:    report.RunID,
				Subject:  area.FilePath,
				Category: models.CategoryRiskFinding,
			})
		}
	}
	if report.Coverage != nil {
		for _, s := range report.Coverage.Suggestions {
			entries = append(entries, models.FeedbackEntry{
				RunID:    report.RunID,
				Subject:  fmt.Sprintf("%s:%d", s.FilePath, s.Line),
				Category: models.CategoryCoverageSuggestion,
			})
		}
	}
	for i, entry := range entries {
		if _, err := e.store.Record(ctx, entry); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// Aggregate computes insights from entries. The result is independent of
// entry order.
func Aggregate(entries []models.FeedbackEntry) *models.LearningInsights {
	byCategory := map[models.SuggestionCategory]*models.CategoryStats{}
	for _, entry := range entries {
		stats, ok := byCategory[entry.Category]
		if !ok {
			stats = &models.CategoryStats{Category: entry.Category}
			byCategory[entry.Category] = stats
		}
		stats.Total++
		switch entry.Verdict {
		case models.VerdictAccepted:
			stats.Accepted++
		case models.VerdictRejected:
			stats.Rejected++
		case models.VerdictModified:
			stats.Modified++
		}
	}

	insights := &models.LearningInsights{SampleCount: len(entries)}
	for _, stats := range byCategory {
		insights.Stats = append(insights.Stats, *stats)
	}
	sort.Slice(insights.Stats, func(i, j int) bool {
		return insights.Stats[i].Category < insights.Stats[j].Category
	})

	for _, stats := range insights.Stats {
		if p := patternFor(stats); p != "" {
			insights.Patterns = append(insights.Patterns, p)
		}
	}
	return insights
}

func patternFor(stats models.CategoryStats) string {
	decided := stats.Accepted + stats.Rejected + stats.Modified
	if decided < minSampleSize {
		return ""
	}
	rate := stats.AcceptanceRate()
	switch {
	case rate < 0.4:
		return fmt.Sprintf("%s suggestions are usually rejected (%.0f%% accepted); be more conservative and propose fewer of them", stats.Category, rate*100)
	case float64(stats.Modified)/float64(decided) > 0.5:
		return fmt.Sprintf("%s suggestions are usually edited before merging; reviewers rework them, so keep them minimal", stats.Category)
	case rate > 0.8:
		return fmt.Sprintf("%s suggestions are well received (%.0f%% accepted); keep the current approach", stats.Category, rate*100)
	default:
		return ""
	}
}
