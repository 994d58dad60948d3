// Package analyzer turns a PR diff into a structured risk assessment.
package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// Analyzer performs AI-powered risk analysis of a PR diff
type Analyzer struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// New creates an Analyzer
func New(gw *gateway.Gateway, logger *zap.Logger) *Analyzer {
	return &Analyzer{gw: gw, logger: logger.Named("analyzer")}
}

// Analyze runs one gateway call and validates the output shape before
// returning. Enhancements are learned prompt biases from past feedback.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalysisRequest, changes *diffparse.DiffSet, enhancements []string) (*models.CodeAnalysis, error) {
	prompt := BuildPrompt(req, changes)

	var result models.CodeAnalysis
	err := a.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageAnalyzer,
		Label:  "analyze_diff",
		System: systemPrompt(enhancements),
		User:   prompt,
		Options: gateway.CallOptions{
			CacheKey: fmt.Sprintf("analyze:%s:%s", req.PullRequest.HeadSHA, req.RunID),
		},
	}, &result)
	if err != nil {
		return nil, err
	}

	if err := validate(&result); err != nil {
		return nil, err
	}

	// Ground the changed-file list in the diff, not in model output
	result.ChangedFiles = changes.ChangedPaths()

	a.logger.Info("diff analyzed",
		zap.String("risk", string(result.OverallRisk)),
		zap.Int("risk_areas", len(result.RiskAreas)))
	return &result, nil
}

func validate(result *models.CodeAnalysis) error {
	if result.Summary == "" {
		return qaerrors.Malformed(fmt.Errorf("analysis missing summary"))
	}
	switch result.OverallRisk {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
	default:
		return qaerrors.Malformed(fmt.Errorf("unknown risk level %q", result.OverallRisk))
	}
	for i := range result.RiskAreas {
		switch result.RiskAreas[i].Level {
		case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
		default:
			result.RiskAreas[i].Level = models.RiskMedium
		}
	}
	return nil
}
