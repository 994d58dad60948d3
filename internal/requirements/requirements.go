// Package requirements derives test scenarios from natural-language
// requirements and acceptance criteria.
package requirements

import (
	"fmt"
	"strings"

	"context"

	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

const reqSystemPrompt = `You map software requirements to concrete, testable scenarios.

Given the requirements (when present) and the pull request description, produce
scenarios in given/when/then form, note requirement areas the change does not
cover, and call out delivery risks.

Respond in JSON with exactly this structure:
{
  "scenarios": [
    {"name": "short name", "given": "precondition", "when": "action", "then": "expected outcome", "acceptance_refs": ["criterion id or quote"]}
  ],
  "gaps": ["requirement with no corresponding change"],
  "risks": ["risk to requirement delivery"]
}`

// Analyzer turns requirements text into structured scenarios
type Analyzer struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// New creates a requirements Analyzer
func New(gw *gateway.Gateway, logger *zap.Logger) *Analyzer {
	return &Analyzer{gw: gw, logger: logger.Named("requirements")}
}

// Analyze grounds scenarios in the attached requirements document when one is
// present; otherwise it works from the diff and PR description alone.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.RequirementsAnalysis, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Pull Request\n- Title: %s\n", req.PullRequest.Title)
	if req.PullRequest.Description != "" {
		fmt.Fprintf(&sb, "- Description: %s\n", req.PullRequest.Description)
	}

	if req.Requirements != "" {
		sb.WriteString("\n## Requirements Document\n")
		sb.WriteString(truncate(req.Requirements, 40000))
		sb.WriteString("\n")
	} else {
		sb.WriteString("\nNo requirements document is attached; derive scenarios from the change itself.\n")
	}

	sb.WriteString("\n## Diff\n```diff\n")
	sb.WriteString(truncate(req.Diff, 40000))
	sb.WriteString("\n```\n")

	var result models.RequirementsAnalysis
	err := a.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageRequirements,
		Label:  "analyze_requirements",
		System: reqSystemPrompt,
		User:   sb.String(),
	}, &result)
	if err != nil {
		return nil, err
	}

	if len(result.Scenarios) == 0 {
		return nil, qaerrors.Malformed(fmt.Errorf("requirements analysis produced no scenarios"))
	}
	for _, s := range result.Scenarios {
		if s.When == "" || s.Then == "" {
			return nil, qaerrors.Malformed(fmt.Errorf("scenario %q missing when/then", s.Name))
		}
	}

	a.logger.Info("requirements analyzed",
		zap.Int("scenarios", len(result.Scenarios)),
		zap.Int("gaps", len(result.Gaps)))
	return &result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
