// Package depscan assesses the risk of dependency changes in a PR diff.
package depscan

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

const depSystemPrompt = `You assess the risk of dependency changes in a pull request.

Consider major-version jumps, abandoned or typosquatting-prone package names,
lockfile drift, and transitive blast radius.

Respond in JSON with exactly this structure:
{
  "changes": [
    {"name": "package", "manifest": "path", "old_version": "x", "new_version": "y", "added": false, "removed": false}
  ],
  "overall_risk": "low|medium|high|critical",
  "concerns": ["specific concern"]
}`

// Scanner analyzes manifest-level dependency changes
type Scanner struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// New creates a Scanner
func New(gw *gateway.Gateway, logger *zap.Logger) *Scanner {
	return &Scanner{gw: gw, logger: logger.Named("depscan")}
}

// Analyze inspects manifest hunks in the diff. When no manifest changed it
// returns a low-risk result without calling the gateway.
func (s *Scanner) Analyze(ctx context.Context, req models.AnalysisRequest, changes *diffparse.DiffSet) (*models.DependencyAnalysis, error) {
	manifests := changes.ManifestFiles()
	if len(manifests) == 0 {
		return &models.DependencyAnalysis{OverallRisk: models.RiskLow}, nil
	}

	var sb strings.Builder
	sb.WriteString("## Changed Dependency Manifests\n")
	for _, m := range manifests {
		fmt.Fprintf(&sb, "- %s\n", m.Path)
	}
	sb.WriteString("\n## Diff (manifest portions are authoritative)\n```diff\n")
	sb.WriteString(manifestDiff(req.Diff, manifests))
	sb.WriteString("\n```\n")

	var result models.DependencyAnalysis
	err := s.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageDependencies,
		Label:  "analyze_dependencies",
		System: depSystemPrompt,
		User:   sb.String(),
	}, &result)
	if err != nil {
		return nil, err
	}

	switch result.OverallRisk {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
	default:
		return nil, qaerrors.Malformed(fmt.Errorf("unknown risk level %q", result.OverallRisk))
	}

	s.logger.Info("dependencies analyzed",
		zap.Int("changes", len(result.Changes)),
		zap.String("risk", string(result.OverallRisk)))
	return &result, nil
}

// manifestDiff extracts only the per-file sections of the diff that touch
// manifests, to keep the prompt small on large PRs.
func manifestDiff(diff string, manifests []diffparse.ChangedFile) string {
	wanted := make(map[string]bool, len(manifests))
	for _, m := range manifests {
		wanted[m.Path] = true
	}

	var sb strings.Builder
	include := false
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			include = false
			for path := range wanted {
				if strings.Contains(line, " b/"+path) || strings.HasSuffix(line, "/"+path) {
					include = true
					break
				}
			}
		}
		if include {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	if sb.Len() == 0 {
		return diff
	}
	return sb.String()
}
