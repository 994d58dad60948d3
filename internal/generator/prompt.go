package generator

import (
	"fmt"
	"strings"

	"github.com/pinkman-dev/pinkman/pkg/models"
)

const baseSystemPrompt = `You are a senior test automation engineer. You write Playwright
end-to-end tests in TypeScript following the page object model: page objects
encapsulate selectors and interactions, spec files hold the scenarios, fixtures
hold shared setup.

Respond with ONLY a JSON array, no prose, where each element is:
{
  "target_path": "tests/pages/login.page.ts",
  "source": "<complete file content>",
  "role": "page_object" | "spec" | "fixture",
  "provenance": "<the risk area or scenario this covers>"
}

Rules:
- Every spec file must contain at least one expect() assertion.
- Never use waitForTimeout; wait on locators or events.
- Selectors prefer data-testid, then role, then text.
- Each file must be complete and syntactically valid on its own.`

func systemPrompt(maxCandidates int, enhancements []string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	fmt.Fprintf(&b, "\n- Produce at most %d files.", maxCandidates)
	if len(enhancements) > 0 {
		b.WriteString("\n\nLearned preferences from past review feedback:\n")
		for _, e := range enhancements {
			b.WriteString("- " + e + "\n")
		}
	}
	return b.String()
}

func buildPrompt(analysis *models.CodeAnalysis, reqs *models.RequirementsAnalysis) string {
	var b strings.Builder

	b.WriteString("Write tests for a pull request with this analysis.\n\n")
	fmt.Fprintf(&b, "Change summary: %s\n", analysis.Summary)
	fmt.Fprintf(&b, "Overall risk: %s\n", analysis.OverallRisk)

	if len(analysis.RiskAreas) > 0 {
		b.WriteString("\nRisk areas:\n")
		for _, area := range analysis.RiskAreas {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", area.Level, area.FilePath, area.Description)
		}
	}
	if len(analysis.TestingFocus) > 0 {
		b.WriteString("\nTesting focus:\n")
		for _, f := range analysis.TestingFocus {
			b.WriteString("- " + f + "\n")
		}
	}
	if reqs != nil && len(reqs.Scenarios) > 0 {
		b.WriteString("\nAcceptance scenarios to cover:\n")
		for _, s := range reqs.Scenarios {
			fmt.Fprintf(&b, "- %s: given %s, when %s, then %s\n", s.Name, s.Given, s.When, s.Then)
		}
	}
	if len(analysis.ChangedFiles) > 0 {
		b.WriteString("\nChanged files:\n")
		for _, f := range analysis.ChangedFiles {
			b.WriteString("- " + f + "\n")
		}
	}
	return b.String()
}

// buildCorrectionPrompt asks for fixed versions of candidates that failed
// syntax validation. The order of failures matches the order of candidates.
func buildCorrectionPrompt(failing []models.GeneratedTest, results []models.ValidationResult, suggestions []models.FixSuggestion) string {
	var b strings.Builder
	b.WriteString("The following generated files failed syntax validation. ")
	b.WriteString("Return the SAME files, corrected, as a JSON array in the same order. ")
	b.WriteString("Keep target_path, role, and provenance unchanged; only fix the source.\n")

	byID := make(map[string][]models.FixSuggestion)
	for _, s := range suggestions {
		byID[s.TestID.String()] = append(byID[s.TestID.String()], s)
	}

	for i, test := range failing {
		fmt.Fprintf(&b, "\n--- file %d: %s (%s) ---\n", i+1, test.TargetPath, test.Role)
		b.WriteString(test.Source)
		b.WriteString("\nErrors:\n")
		for _, e := range results[i].Errors {
			fmt.Fprintf(&b, "- line %d col %d: %s\n", e.Line, e.Column, e.Message)
		}
		for _, s := range byID[test.ID.String()] {
			fmt.Fprintf(&b, "- hint: %s\n", s.Suggestion)
		}
	}
	return b.String()
}
