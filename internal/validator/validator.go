// Package validator statically checks generated test candidates. Candidates
// are parsed with tree-sitter; a candidate only passes with a clean tree.
package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pinkman-dev/pinkman/pkg/models"
)

const maxErrorsPerCandidate = 25

// Validator performs batch syntax validation of generated tests
type Validator struct {
	logger *zap.Logger
}

// New creates a Validator
func New(logger *zap.Logger) *Validator {
	return &Validator{logger: logger.Named("validator")}
}

// ValidateBatch checks every candidate independently and in parallel. The
// result order matches the input order.
func (v *Validator) ValidateBatch(ctx context.Context, tests []models.GeneratedTest) (*models.BatchValidationResult, error) {
	results := make([]models.ValidationResult, len(tests))

	g, gctx := errgroup.WithContext(ctx)
	for i, test := range tests {
		i, test := i, test
		g.Go(func() error {
			r, err := v.validateOne(gctx, test)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &models.BatchValidationResult{Results: results}
	for _, r := range results {
		for _, e := range r.Errors {
			if s := suggestFix(e); s != "" {
				batch.Suggestions = append(batch.Suggestions, models.FixSuggestion{
					TestID:     r.TestID,
					Line:       e.Line,
					Suggestion: s,
				})
			}
		}
	}

	v.logger.Info("batch validated",
		zap.Int("candidates", len(tests)),
		zap.Bool("all_passed", batch.AllPassed()))
	return batch, nil
}

func (v *Validator) validateOne(ctx context.Context, test models.GeneratedTest) (models.ValidationResult, error) {
	result := models.ValidationResult{TestID: test.ID}

	lang := languageFor(test.TargetPath)
	if lang == nil {
		result.Errors = append(result.Errors, models.ValidationError{
			Line:     1,
			Message:  fmt.Sprintf("unsupported test file extension %q", filepath.Ext(test.TargetPath)),
			Severity: models.SeverityError,
		})
		return result, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(test.Source))
	if err != nil {
		return result, fmt.Errorf("parser failed on %s: %w", test.TargetPath, err)
	}
	defer tree.Close()

	collectErrors(tree.RootNode(), []byte(test.Source), &result.Errors)
	result.Warnings = lintWarnings(test.Source)
	result.Passed = len(result.Errors) == 0
	return result, nil
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts", ".tsx":
		return typescript.GetLanguage()
	case ".js", ".mjs", ".cjs", ".jsx":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// collectErrors walks the tree and records ERROR/MISSING nodes
func collectErrors(node *sitter.Node, content []byte, out *[]models.ValidationError) {
	if len(*out) >= maxErrorsPerCandidate {
		return
	}

	if node.IsError() || node.IsMissing() {
		point := node.StartPoint()
		msg := "syntax error"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %s", node.Type())
		} else if excerpt := nodeExcerpt(node, content); excerpt != "" {
			msg = fmt.Sprintf("unexpected %q", excerpt)
		}
		*out = append(*out, models.ValidationError{
			Line:     int(point.Row) + 1,
			Column:   int(point.Column),
			Message:  msg,
			Severity: models.SeverityError,
		})
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectErrors(node.Child(i), content, out)
	}
}

func nodeExcerpt(node *sitter.Node, content []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(content)) {
		end = uint32(len(content))
	}
	if end <= start || end-start > 60 {
		return ""
	}
	return strings.TrimSpace(string(content[start:end]))
}

// lintWarnings flags patterns that validate but tend to produce flaky or
// empty Playwright tests
func lintWarnings(source string) []models.ValidationError {
	var warnings []models.ValidationError
	for i, line := range strings.Split(source, "\n") {
		switch {
		case strings.Contains(line, "waitForTimeout("):
			warnings = append(warnings, models.ValidationError{
				Line:     i + 1,
				Message:  "fixed sleep; prefer a locator or event wait",
				Severity: models.SeverityWarning,
			})
		case strings.Contains(line, ".only("):
			warnings = append(warnings, models.ValidationError{
				Line:     i + 1,
				Message:  "test.only would disable the rest of the suite",
				Severity: models.SeverityWarning,
			})
		}
	}
	if strings.Contains(source, "test(") && !strings.Contains(source, "expect(") {
		warnings = append(warnings, models.ValidationError{
			Line:     1,
			Message:  "spec contains no assertions",
			Severity: models.SeverityWarning,
		})
	}
	return warnings
}

// suggestFix proposes a correction for one validation error, keyed off the
// error message shape
func suggestFix(e models.ValidationError) string {
	switch {
	case strings.HasPrefix(e.Message, "missing "):
		return fmt.Sprintf("add the %s at line %d", strings.TrimPrefix(e.Message, "missing "), e.Line)
	case strings.HasPrefix(e.Message, "unexpected "):
		return fmt.Sprintf("remove or complete the stray token at line %d", e.Line)
	default:
		return ""
	}
}
