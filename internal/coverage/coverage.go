// Package coverage parses coverage artifacts and ranks under-tested areas
// against the pull request's changes. The ranking is deterministic: lines
// the PR touched come first, then low-coverage files, tie-broken by path and
// line.
package coverage

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

// lowCoverageThreshold marks a file as under-tested even when untouched
const lowCoverageThreshold = 60.0

// Analyzer turns raw coverage artifacts into ranked suggestions
type Analyzer struct {
	logger *zap.Logger
}

// New creates an Analyzer
func New(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger.Named("coverage")}
}

// Analyze parses the artifact and ranks suggestions against the diff
func (a *Analyzer) Analyze(data []byte, changes *diffparse.DiffSet) (*models.CoverageAnalysis, error) {
	report, err := Parse(data)
	if err != nil {
		return nil, err
	}

	analysis := &models.CoverageAnalysis{
		Report:      report,
		Suggestions: rank(report, changes),
	}
	a.logger.Info("coverage analyzed",
		zap.String("format", string(report.Format)),
		zap.Int("files", len(report.Files)),
		zap.Int("suggestions", len(analysis.Suggestions)))
	return analysis, nil
}

func rank(report *models.CoverageReport, changes *diffparse.DiffSet) []models.CoverageSuggestion {
	var suggestions []models.CoverageSuggestion

	for path, fc := range report.Files {
		changed := changedFileFor(changes, path)
		if changed != nil {
			added := map[int]bool{}
			for _, l := range changed.AddedLines {
				added[l] = true
			}
			for _, line := range fc.UncoveredLines {
				if added[line] {
					suggestions = append(suggestions, models.CoverageSuggestion{
						FilePath:    path,
						Line:        line,
						LinePercent: fc.LinePercent,
						Touched:     true,
						Reason:      "line added by this PR is not covered",
					})
				}
			}
			continue
		}
		if fc.LinePercent < lowCoverageThreshold {
			suggestions = append(suggestions, models.CoverageSuggestion{
				FilePath:    path,
				LinePercent: fc.LinePercent,
				Reason:      fmt.Sprintf("file coverage %.0f%% is below %.0f%%", fc.LinePercent, lowCoverageThreshold),
			})
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Touched != b.Touched {
			return a.Touched
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})
	return suggestions
}

// changedFileFor matches report paths against diff paths, tolerating report
// paths that carry a build-root prefix
func changedFileFor(changes *diffparse.DiffSet, path string) *diffparse.ChangedFile {
	if changes == nil {
		return nil
	}
	if f := changes.FileFor(path); f != nil {
		return f
	}
	for i := range changes.Files {
		f := &changes.Files[i]
		if strings.HasSuffix(path, "/"+f.Path) {
			return f
		}
	}
	return nil
}
