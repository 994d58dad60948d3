package generator

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkman-dev/pinkman/internal/gatewaytest"
	"github.com/pinkman-dev/pinkman/internal/observability"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

func testRequest() models.AnalysisRequest {
	return models.NewAnalysisRequest(models.Trigger{Kind: models.TriggerPullRequest}, models.PullRequest{Number: 7, HeadSHA: "abc123"}, "")
}

func testAnalysis() *models.CodeAnalysis {
	return &models.CodeAnalysis{
		Summary:      "adds login form validation",
		OverallRisk:  models.RiskMedium,
		TestingFocus: []string{"login error states"},
		ChangedFiles: []string{"src/login.ts"},
	}
}

const generateResponse = `[
  {"target_path": "tests/pages/login.page.ts", "source": "export class LoginPage {}", "role": "page_object", "provenance": "login form"},
  {"target_path": "tests/login.spec.ts", "source": "import { test, expect } from '@playwright/test';", "role": "spec", "provenance": "login error states"}
]`

func TestGenerate_ProducesCandidates(t *testing.T) {
	gen := New(gatewaytest.New(t, generateResponse), observability.NewNop(), 5)

	tests, err := gen.Generate(context.Background(), testRequest(), testAnalysis(), nil, nil)
	require.NoError(t, err)
	require.Len(t, tests, 2)

	assert.Equal(t, "tests/pages/login.page.ts", tests[0].TargetPath)
	assert.Equal(t, models.RolePageObject, tests[0].Role)
	assert.Equal(t, models.RoleSpec, tests[1].Role)
	assert.NotEqual(t, uuid.Nil, tests[0].ID)
	assert.NotEqual(t, tests[0].ID, tests[1].ID)
}

func TestGenerate_CapsAtMaxCandidates(t *testing.T) {
	gen := New(gatewaytest.New(t, generateResponse), observability.NewNop(), 1)

	tests, err := gen.Generate(context.Background(), testRequest(), testAnalysis(), nil, nil)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "tests/pages/login.page.ts", tests[0].TargetPath)
}

func TestGenerate_UnknownRoleDefaultsToSpec(t *testing.T) {
	gen := New(gatewaytest.New(t, `[{"target_path": "tests/x.spec.ts", "source": "x", "role": "helper"}]`), observability.NewNop(), 5)

	tests, err := gen.Generate(context.Background(), testRequest(), testAnalysis(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSpec, tests[0].Role)
}

func TestGenerate_EmptyBatchIsMalformed(t *testing.T) {
	gen := New(gatewaytest.New(t, `[]`), observability.NewNop(), 5)

	_, err := gen.Generate(context.Background(), testRequest(), testAnalysis(), nil, nil)
	require.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestGenerate_MissingSourceIsMalformed(t *testing.T) {
	gen := New(gatewaytest.New(t, `[{"target_path": "tests/x.spec.ts", "source": "", "role": "spec"}]`), observability.NewNop(), 5)

	_, err := gen.Generate(context.Background(), testRequest(), testAnalysis(), nil, nil)
	require.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestRegenerate_PreservesIdentity(t *testing.T) {
	gen := New(gatewaytest.New(t, `[{"target_path": "tests/login.spec.ts", "source": "corrected source", "role": "spec"}]`), observability.NewNop(), 5)

	failing := []models.GeneratedTest{{
		ID:         uuid.New(),
		TargetPath: "tests/login.spec.ts",
		Source:     "const x = ;",
		Role:       models.RoleSpec,
		Provenance: "login error states",
	}}
	results := []models.ValidationResult{{
		TestID: failing[0].ID,
		Errors: []models.ValidationError{{Line: 1, Message: "syntax error", Severity: models.SeverityError}},
	}}

	corrected, err := gen.Regenerate(context.Background(), testRequest(), 1, failing, results, nil)
	require.NoError(t, err)
	require.Len(t, corrected, 1)
	assert.Equal(t, failing[0].ID, corrected[0].ID)
	assert.Equal(t, "corrected source", corrected[0].Source)
	assert.Equal(t, "login error states", corrected[0].Provenance)
}

func TestRegenerate_CountMismatchIsMalformed(t *testing.T) {
	gen := New(gatewaytest.New(t, `[]`), observability.NewNop(), 5)

	failing := []models.GeneratedTest{{ID: uuid.New(), TargetPath: "tests/a.spec.ts", Source: "x", Role: models.RoleSpec}}
	results := []models.ValidationResult{{TestID: failing[0].ID}}

	_, err := gen.Regenerate(context.Background(), testRequest(), 1, failing, results, nil)
	require.ErrorIs(t, err, qaerrors.ErrMalformedResponse)
}

func TestSystemPrompt_IncludesEnhancements(t *testing.T) {
	prompt := systemPrompt(5, []string{"prefer data-testid selectors"})
	assert.Contains(t, prompt, "Learned preferences")
	assert.Contains(t, prompt, "prefer data-testid selectors")
	assert.Contains(t, prompt, "at most 5 files")
}
