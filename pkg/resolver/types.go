package resolver

import (
	"github.com/matzehuels/stackfix/pkg/suggest"
	"github.com/matzehuels/stackfix/pkg/workspace"
)

// Defaults.
const (
	DefaultMaxAttempts = 200
	LogTailLines       = 40
	// TranscriptWindow bounds the conversation carried between attempts.
	// The reasoning chain is re-sent in every prompt, so older turns add
	// nothing.
	TranscriptWindow = 6
)

// DependencyUpdate is a requested or applied version change.
type DependencyUpdate struct {
	Name          string `json:"name"`
	TargetVersion string `json:"target_version"`
	IsDev         bool   `json:"is_dev,omitempty"`
	Reason        string `json:"reason,omitempty"`
	FromVersion   string `json:"from_version,omitempty"`
}

// Request describes one resolution run. Resolve does not modify it.
type Request struct {
	RepoPath string
	Updates  []DependencyUpdate
	// MaxAttempts bounds install attempts; <= 0 means DefaultMaxAttempts.
	MaxAttempts int
}

func (r Request) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

// Outcome is the user-facing verdict of a run.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeSuccessCopyWarning Outcome = "success_with_copy_warning"
	OutcomeFailure            Outcome = "failure"
)

// outcomeOf combines install success with copy-back status.
func outcomeOf(success bool, cb workspace.CopyBackStatus) Outcome {
	switch {
	case !success:
		return OutcomeFailure
	case cb == workspace.CopyBackOK:
		return OutcomeSuccess
	}
	return OutcomeSuccessCopyWarning
}

// Result is the outcome of Resolve.
type Result struct {
	RunID            string                   `json:"run_id"`
	Success          bool                     `json:"success"`
	AttemptsUsed     int                      `json:"attempts_used"`
	MaxAttempts      int                      `json:"max_attempts"`
	LastError        string                   `json:"last_error,omitempty"`
	CopyBack         workspace.CopyBackStatus `json:"copy_back,omitempty"`
	AppliedUpdates   []DependencyUpdate       `json:"applied_updates,omitempty"`
	Reasoning        []suggest.ReasoningEntry `json:"reasoning,omitempty"`
	Checkpoints      []workspace.Checkpoint   `json:"checkpoints,omitempty"`
	InstallLogTail   string                   `json:"install_log_tail,omitempty"`
	Outcome          Outcome                  `json:"outcome"`
	ValidationErrors []string                 `json:"validation_errors,omitempty"`
}
