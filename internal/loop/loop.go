// Package loop runs the bounded generate/validate self-correction cycle
package loop

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/generator"
	"github.com/pinkman-dev/pinkman/internal/validator"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

// Loop drives candidates to a validated state within a fixed round budget.
// Only failing candidates are regenerated between rounds; passing ones are
// never touched again.
type Loop struct {
	generator *generator.Generator
	validator *validator.Validator
	logger    *zap.Logger
	maxRounds int
}

// New creates a Loop. maxRounds bounds correction rounds after the initial
// generation; a candidate still failing after the budget is dropped.
func New(gen *generator.Generator, val *validator.Validator, logger *zap.Logger, maxRounds int) *Loop {
	return &Loop{generator: gen, validator: val, logger: logger.Named("loop"), maxRounds: maxRounds}
}

// Run generates candidates and corrects them until the batch validates or the
// round budget runs out. A gateway failure aborts the whole step; dropped
// candidates do not.
func (l *Loop) Run(ctx context.Context, req models.AnalysisRequest, analysis *models.CodeAnalysis, reqs *models.RequirementsAnalysis, enhancements []string) (*models.GenerationResult, error) {
	batch, err := l.generator.Generate(ctx, req, analysis, reqs, enhancements)
	if err != nil {
		return nil, err
	}

	verdicts := make(map[uuid.UUID]models.ValidationResult, len(batch))
	rounds := 0

	for {
		pending := unvalidated(batch, verdicts)
		if len(pending) > 0 {
			result, err := l.validator.ValidateBatch(ctx, pending)
			if err != nil {
				return nil, fmt.Errorf("validation round %d: %w", rounds, err)
			}
			for _, r := range result.Results {
				verdicts[r.TestID] = r
			}
		}
		rounds++

		failing := failingOf(batch, verdicts)
		if len(failing) == 0 || rounds > l.maxRounds {
			return l.finish(batch, verdicts, rounds), nil
		}

		results := make([]models.ValidationResult, len(failing))
		for i, t := range failing {
			results[i] = verdicts[t.ID]
		}
		corrected, err := l.generator.Regenerate(ctx, req, rounds, failing, results, suggestionsFor(results))
		if err != nil {
			return nil, err
		}

		batch = splice(batch, corrected)
		for _, t := range corrected {
			delete(verdicts, t.ID)
		}

		l.logger.Info("correction round",
			zap.Int("round", rounds),
			zap.Int("regenerated", len(corrected)))
	}
}

func (l *Loop) finish(batch []models.GeneratedTest, verdicts map[uuid.UUID]models.ValidationResult, rounds int) *models.GenerationResult {
	result := &models.GenerationResult{Rounds: rounds}
	for _, t := range batch {
		if verdicts[t.ID].Passed {
			result.Tests = append(result.Tests, t)
		} else {
			result.Dropped = append(result.Dropped, t)
		}
	}
	if len(result.Dropped) > 0 {
		l.logger.Warn("candidates dropped after round budget",
			zap.Int("dropped", len(result.Dropped)),
			zap.Int("kept", len(result.Tests)))
	}
	return result
}

func unvalidated(batch []models.GeneratedTest, verdicts map[uuid.UUID]models.ValidationResult) []models.GeneratedTest {
	var out []models.GeneratedTest
	for _, t := range batch {
		if _, ok := verdicts[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func failingOf(batch []models.GeneratedTest, verdicts map[uuid.UUID]models.ValidationResult) []models.GeneratedTest {
	var out []models.GeneratedTest
	for _, t := range batch {
		if v, ok := verdicts[t.ID]; ok && !v.Passed {
			out = append(out, t)
		}
	}
	return out
}

func suggestionsFor(results []models.ValidationResult) []models.FixSuggestion {
	var out []models.FixSuggestion
	for _, r := range results {
		for _, e := range r.Errors {
			out = append(out, models.FixSuggestion{TestID: r.TestID, Line: e.Line, Suggestion: e.Message})
		}
	}
	return out
}

// splice replaces batch entries in place by candidate ID
func splice(batch, corrected []models.GeneratedTest) []models.GeneratedTest {
	byID := make(map[uuid.UUID]models.GeneratedTest, len(corrected))
	for _, t := range corrected {
		byID[t.ID] = t
	}
	for i, t := range batch {
		if repl, ok := byID[t.ID]; ok {
			batch[i] = repl
		}
	}
	return batch
}
