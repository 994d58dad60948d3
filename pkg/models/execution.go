package models

// ActionKind enumerates the operations the executor is allowed to perform
type ActionKind string

const (
	ActionWriteFile  ActionKind = "write_file"
	ActionApplyPatch ActionKind = "apply_patch"
	ActionCommit     ActionKind = "commit"
)

// ProposedAction is one side-effecting operation requested by a stage
type ProposedAction struct {
	Kind    ActionKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	Content string     `json:"content,omitempty"` // file body or unified diff
	Message string     `json:"message,omitempty"` // commit message
	Origin  Stage      `json:"origin"`
}

// ActionResult records one action's outcome. Actions execute independently;
// one failure never blocks the rest.
type ActionResult struct {
	Action  ProposedAction `json:"action"`
	Applied bool           `json:"applied"`
	DryRun  bool           `json:"dry_run,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ExecutionResult aggregates per-action outcomes for a run
type ExecutionResult struct {
	Results      []ActionResult `json:"results"`
	FilesWritten int            `json:"files_written"`
	BytesWritten int64          `json:"bytes_written"`
}

// AllApplied reports whether every action succeeded. Callers use this to
// decide whether to proceed, e.g. skip committing after a failed write.
func (e *ExecutionResult) AllApplied() bool {
	for _, r := range e.Results {
		if !r.Applied {
			return false
		}
	}
	return true
}

// PartialFailure reports whether some but not all actions failed
func (e *ExecutionResult) PartialFailure() bool {
	var ok, failed int
	for _, r := range e.Results {
		if r.Applied {
			ok++
		} else {
			failed++
		}
	}
	return ok > 0 && failed > 0
}
