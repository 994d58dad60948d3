// Package cifixer diagnoses CI failures and attempts bounded remediation.
//
// A session moves through diagnosing, attempting, and verifying. Success is
// provisional until a follow-up CI signal arrives through RecordOutcome; the
// attempt budget is spent regardless of outcome.
package cifixer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// minConfidence is the diagnosis confidence floor below which no fix is
// attempted
const minConfidence = 40

// Applier materializes fix actions. Satisfied by executor.Executor.
type Applier interface {
	Apply(ctx context.Context, actions []models.ProposedAction) (*models.ExecutionResult, error)
}

// Checker syntax-checks proposed sources before they are applied. Satisfied
// by validator.Validator.
type Checker interface {
	ValidateBatch(ctx context.Context, tests []models.GeneratedTest) (*models.BatchValidationResult, error)
}

// Fixer runs auto-fix sessions
type Fixer struct {
	gw          *gateway.Gateway
	applier     Applier
	checker     Checker
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

// New creates a Fixer. maxAttempts bounds remediation attempts per failure.
func New(gw *gateway.Gateway, applier Applier, checker Checker, logger *zap.Logger, maxAttempts int) *Fixer {
	return &Fixer{
		gw:          gw,
		applier:     applier,
		checker:     checker,
		logger:      logger.Named("cifixer"),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

type diagnosisWire struct {
	models.FixDiagnosis
	Actions []models.ProposedAction `json:"actions"`
}

// Fix diagnoses the failure and applies one remediation attempt. Callers
// re-run CI, report the result via RecordOutcome, and call Fix again while
// the verdict stays empty.
func (f *Fixer) Fix(ctx context.Context, session *models.AutoFixResult) error {
	if session.Verdict != "" {
		return fmt.Errorf("session already closed with verdict %q", session.Verdict)
	}
	if len(session.Attempts) >= f.maxAttempts {
		session.Verdict = models.VerdictExhausted
		return qaerrors.ErrExhausted
	}

	if session.Diagnosis == nil {
		diagnosis, actions, err := f.diagnose(ctx, session.Failure)
		if err != nil {
			return err
		}
		session.Failure.Category = diagnosis.Category
		session.Diagnosis = diagnosis

		if !fixable(diagnosis) {
			session.Verdict = models.VerdictNotApplicable
			f.logger.Info("failure not auto-fixable",
				zap.String("category", string(diagnosis.Category)),
				zap.Int("confidence", diagnosis.Confidence))
			return nil
		}
		return f.attempt(ctx, session, actions)
	}

	actions, err := f.retryActions(ctx, session)
	if err != nil {
		return err
	}
	return f.attempt(ctx, session, actions)
}

// RecordOutcome finalizes the latest attempt with the follow-up CI signal.
// A failing signal with no budget left closes the session as exhausted.
func (f *Fixer) RecordOutcome(session *models.AutoFixResult, passed bool) {
	if len(session.Attempts) == 0 {
		return
	}
	last := &session.Attempts[len(session.Attempts)-1]
	last.Confirmed = true
	last.Successful = passed

	switch {
	case passed:
		session.Verdict = models.VerdictFixed
	case len(session.Attempts) >= f.maxAttempts:
		session.Verdict = models.VerdictExhausted
	}

	f.logger.Info("attempt outcome recorded",
		zap.Int("attempt", last.Index),
		zap.Bool("passed", passed),
		zap.String("verdict", string(session.Verdict)))
}

func (f *Fixer) diagnose(ctx context.Context, failure models.CIFailureInfo) (*models.FixDiagnosis, []models.ProposedAction, error) {
	var wire diagnosisWire
	err := f.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageCIFix,
		Label:  "diagnose",
		System: diagnoseSystemPrompt,
		User:   buildDiagnosisPrompt(failure),
	}, &wire)
	if err != nil {
		return nil, nil, fmt.Errorf("diagnose job %q: %w", failure.JobName, err)
	}

	switch wire.Category {
	case models.FailureFlakyTest, models.FailureSyntax, models.FailureDependency,
		models.FailureEnvironment, models.FailureUnknown:
	default:
		return nil, nil, qaerrors.Malformed(fmt.Errorf("unknown failure category %q", wire.Category))
	}
	if wire.RootCause == "" || wire.Title == "" {
		return nil, nil, qaerrors.Malformed(fmt.Errorf("diagnosis missing title or root cause"))
	}
	for i := range wire.Actions {
		wire.Actions[i].Origin = models.StageCIFix
	}
	return &wire.FixDiagnosis, wire.Actions, nil
}

func (f *Fixer) retryActions(ctx context.Context, session *models.AutoFixResult) ([]models.ProposedAction, error) {
	var wire struct {
		Actions []models.ProposedAction `json:"actions"`
	}
	err := f.gw.CallJSON(ctx, gateway.Request{
		Stage:  models.StageCIFix,
		Label:  "refix",
		Round:  len(session.Attempts),
		System: refixSystemPrompt,
		User:   buildRetryPrompt(session),
	}, &wire)
	if err != nil {
		return nil, fmt.Errorf("retry fix for job %q: %w", session.Failure.JobName, err)
	}
	if len(wire.Actions) == 0 {
		return nil, qaerrors.Malformed(fmt.Errorf("retry produced no actions"))
	}
	for i := range wire.Actions {
		wire.Actions[i].Origin = models.StageCIFix
	}
	return wire.Actions, nil
}

// attempt syntax-checks and applies the actions, recording a provisional
// attempt. A fix that fails the check spends the budget like a failed apply.
func (f *Fixer) attempt(ctx context.Context, session *models.AutoFixResult, actions []models.ProposedAction) error {
	if len(actions) == 0 {
		session.Verdict = models.VerdictNotApplicable
		return nil
	}

	if err := f.precheck(ctx, actions); err != nil {
		session.Attempts = append(session.Attempts, models.FixAttempt{
			Index:     len(session.Attempts) + 1,
			Action:    session.Diagnosis.Remediation,
			AppliedAt: f.now(),
		})
		f.RecordOutcome(session, false)
		return fmt.Errorf("check fix actions: %w", err)
	}

	_, applyErr := f.applier.Apply(ctx, actions)
	attempt := models.FixAttempt{
		Index:     len(session.Attempts) + 1,
		Action:    session.Diagnosis.Remediation,
		AppliedAt: f.now(),
	}
	session.Attempts = append(session.Attempts, attempt)

	if applyErr != nil {
		f.RecordOutcome(session, false)
		return fmt.Errorf("apply fix actions: %w", applyErr)
	}

	f.logger.Info("fix applied, awaiting CI signal",
		zap.Int("attempt", attempt.Index),
		zap.String("category", string(session.Diagnosis.Category)))
	return nil
}

// precheck runs proposed script sources through the checker. Only files the
// checker has a grammar for are checked; manifests and configs pass through.
func (f *Fixer) precheck(ctx context.Context, actions []models.ProposedAction) error {
	if f.checker == nil {
		return nil
	}
	var candidates []models.GeneratedTest
	for _, a := range actions {
		if a.Kind != models.ActionWriteFile || !scriptPath(a.Path) {
			continue
		}
		candidates = append(candidates, models.GeneratedTest{
			ID:         uuid.New(),
			TargetPath: a.Path,
			Source:     a.Content,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	batch, err := f.checker.ValidateBatch(ctx, candidates)
	if err != nil {
		return err
	}
	if failing := batch.Failing(); len(failing) > 0 {
		return fmt.Errorf("%w: %d of %d proposed files have syntax errors",
			qaerrors.ErrValidationFailed, len(failing), len(candidates))
	}
	return nil
}

func scriptPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs":
		return true
	default:
		return false
	}
}

func fixable(d *models.FixDiagnosis) bool {
	if d.Confidence < minConfidence {
		return false
	}
	switch d.Category {
	case models.FailureFlakyTest, models.FailureSyntax, models.FailureDependency:
		return true
	default:
		return false
	}
}
