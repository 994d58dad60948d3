// Package generator turns pull-request analysis into Playwright test
// candidates via the model gateway
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// Generator produces and repairs test candidates
type Generator struct {
	gw            *gateway.Gateway
	logger        *zap.Logger
	maxCandidates int
}

// New creates a Generator. maxCandidates caps the batch size per run.
func New(gw *gateway.Gateway, logger *zap.Logger, maxCandidates int) *Generator {
	return &Generator{gw: gw, logger: logger.Named("generator"), maxCandidates: maxCandidates}
}

type candidateWire struct {
	TargetPath string `json:"target_path"`
	Source     string `json:"source"`
	Role       string `json:"role"`
	Provenance string `json:"provenance"`
}

// Generate produces an initial candidate batch from the analyses. Candidates
// beyond the cap are discarded, keeping the earliest, which the model orders
// by importance.
func (g *Generator) Generate(ctx context.Context, req models.AnalysisRequest, analysis *models.CodeAnalysis, reqs *models.RequirementsAnalysis, enhancements []string) ([]models.GeneratedTest, error) {
	var wire []candidateWire
	err := g.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageGeneration,
		Label:  "generate",
		System: systemPrompt(g.maxCandidates, enhancements),
		User:   buildPrompt(analysis, reqs),
	}, &wire)
	if err != nil {
		return nil, fmt.Errorf("test generation: %w", err)
	}

	tests, err := g.fromWire(wire, nil)
	if err != nil {
		return nil, err
	}
	if len(tests) > g.maxCandidates {
		tests = tests[:g.maxCandidates]
	}

	g.logger.Info("generated candidates",
		zap.Int("count", len(tests)),
		zap.String("run_id", req.RunID.String()))
	return tests, nil
}

// Regenerate asks for corrected versions of failing candidates. Identity is
// preserved: the returned tests carry the same IDs as the inputs, so callers
// can splice them back into the batch.
func (g *Generator) Regenerate(ctx context.Context, req models.AnalysisRequest, round int, failing []models.GeneratedTest, results []models.ValidationResult, suggestions []models.FixSuggestion) ([]models.GeneratedTest, error) {
	if len(failing) != len(results) {
		return nil, fmt.Errorf("regenerate: %d candidates but %d validation results", len(failing), len(results))
	}

	var wire []candidateWire
	err := g.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageGeneration,
		Label:  "regenerate",
		Round:  round,
		System: systemPrompt(len(failing), nil),
		User:   buildCorrectionPrompt(failing, results, suggestions),
	}, &wire)
	if err != nil {
		return nil, fmt.Errorf("test regeneration round %d: %w", round, err)
	}
	if len(wire) != len(failing) {
		return nil, qaerrors.Malformed(fmt.Errorf("expected %d corrected files, got %d", len(failing), len(wire)))
	}

	return g.fromWire(wire, failing)
}

// fromWire validates the model output shape and assigns identity. When prior
// is non-nil the i-th wire entry inherits the i-th prior candidate's ID.
func (g *Generator) fromWire(wire []candidateWire, prior []models.GeneratedTest) ([]models.GeneratedTest, error) {
	if len(wire) == 0 {
		return nil, qaerrors.Malformed(fmt.Errorf("model returned no test candidates"))
	}

	tests := make([]models.GeneratedTest, 0, len(wire))
	for i, w := range wire {
		if strings.TrimSpace(w.TargetPath) == "" || strings.TrimSpace(w.Source) == "" {
			return nil, qaerrors.Malformed(fmt.Errorf("candidate %d missing target_path or source", i))
		}
		role := models.TestRole(w.Role)
		switch role {
		case models.RolePageObject, models.RoleSpec, models.RoleFixture:
		default:
			role = models.RoleSpec
		}

		id := uuid.New()
		provenance := w.Provenance
		if prior != nil {
			id = prior[i].ID
			provenance = prior[i].Provenance
		}
		tests = append(tests, models.GeneratedTest{
			ID:         id,
			TargetPath: w.TargetPath,
			Source:     w.Source,
			Role:       role,
			Provenance: provenance,
		})
	}
	return tests, nil
}
