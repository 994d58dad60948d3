package analyzer

import (
	"fmt"
	"strings"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

const baseSystemPrompt = `You are an expert code reviewer assessing the risk of a pull request.

Consider:
1. Behavioral changes and their blast radius
2. Error handling and edge cases the diff introduces or removes
3. Concurrency, state, and lifecycle hazards
4. Which behaviors deserve new automated tests

Respond in JSON with exactly this structure:
{
  "summary": "One-paragraph assessment of the change",
  "overall_risk": "low|medium|high|critical",
  "risk_areas": [
    {"file_path": "path", "description": "what is risky", "level": "low|medium|high|critical"}
  ],
  "testing_focus": ["behavior worth testing"],
  "quality_issues": ["optional concrete quality problem"]
}

Be concise. Do not invent files that are not in the diff.`

const maxDiffBytes = 60000

func systemPrompt(enhancements []string) string {
	if len(enhancements) == 0 {
		return baseSystemPrompt
	}
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)
	sb.WriteString("\n\nLearned preferences from past review feedback:\n")
	for _, e := range enhancements {
		sb.WriteString("- " + e + "\n")
	}
	return sb.String()
}

// BuildPrompt creates the analysis prompt from the request and parsed diff
func BuildPrompt(req models.AnalysisRequest, changes *diffparse.DiffSet) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Pull Request\n- Title: %s\n- Branch: %s -> %s\n",
		req.PullRequest.Title, req.PullRequest.HeadBranch, req.PullRequest.BaseBranch)
	if req.PullRequest.Description != "" {
		fmt.Fprintf(&sb, "- Description: %s\n", truncate(req.PullRequest.Description, 2000))
	}

	sb.WriteString("\n## Changed Files\n")
	for _, f := range changes.Files {
		state := "modified"
		if f.Added {
			state = "added"
		} else if f.Deleted {
			state = "deleted"
		}
		fmt.Fprintf(&sb, "- %s (%s, %d hunks)\n", f.Path, state, f.HunkCount)
	}

	sb.WriteString("\n## Diff\n```diff\n")
	sb.WriteString(truncate(req.Diff, maxDiffBytes))
	sb.WriteString("\n```\n")

	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
