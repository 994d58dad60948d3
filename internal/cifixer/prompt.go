package cifixer

import (
	"fmt"
	"strings"

	"github.com/pinkman-dev/pinkman/pkg/models"
)

const maxLogBytes = 40000

const diagnoseSystemPrompt = `You are a CI failure analyst. Given a failed job log, classify the
failure and, when it is safely auto-fixable, propose concrete repository edits.

Respond with ONLY valid JSON:
{
  "title": "<short failure title>",
  "category": "flaky_test" | "syntax_error" | "dependency_mismatch" | "environment" | "unknown",
  "file_path": "<file most implicated, if identifiable>",
  "line_number": <line, or 0>,
  "root_cause": "<one or two sentences>",
  "remediation": "<what the actions below do>",
  "confidence": <0-100>,
  "actions": [
    {"kind": "write_file", "path": "...", "content": "..."},
    {"kind": "apply_patch", "path": "...", "content": "<unified diff>"},
    {"kind": "commit", "message": "..."}
  ]
}

Leave actions empty for environment or unknown failures; those are not safe
to fix by editing the repository.`

const refixSystemPrompt = `You are a CI failure analyst. A previous fix attempt did not make the
job pass. Propose a different set of repository edits.

Respond with ONLY valid JSON: {"actions": [...]} using the same action shapes
as before (write_file, apply_patch, commit).`

func buildDiagnosisPrompt(failure models.CIFailureInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %q (id %d) failed.\n\nLog excerpt:\n", failure.JobName, failure.JobID)
	b.WriteString(truncate(failure.LogExcerpt, maxLogBytes))
	return b.String()
}

func buildRetryPrompt(session *models.AutoFixResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %q is still failing after %d fix attempt(s).\n\n", session.Failure.JobName, len(session.Attempts))
	fmt.Fprintf(&b, "Original diagnosis: %s\nRoot cause: %s\nPrevious remediation: %s\n",
		session.Diagnosis.Title, session.Diagnosis.RootCause, session.Diagnosis.Remediation)
	b.WriteString("\nLog excerpt:\n")
	b.WriteString(truncate(session.Failure.LogExcerpt, maxLogBytes))
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}
