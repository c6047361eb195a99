package resolver

import (
	"fmt"
	"strings"
)

// ToolUpdate is one requested update in the tool-call format.
type ToolUpdate struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	IsDev       bool   `json:"isDev,omitempty"`
	Reason      string `json:"reason,omitempty"`
	FromVersion string `json:"fromVersion,omitempty"`
}

// ToolInput is the tool-call payload accepted by the CLI and the HTTP API.
type ToolInput struct {
	RepoPath           string       `json:"repo_path"`
	UpdateDependencies []ToolUpdate `json:"update_dependencies"`
	MaxAttempts        int          `json:"maxAttempts,omitempty"`
}

// Request converts the payload. A missing maxAttempts selects
// [DefaultMaxAttempts].
func (in ToolInput) Request() Request {
	req := Request{RepoPath: in.RepoPath, MaxAttempts: in.MaxAttempts}
	for _, u := range in.UpdateDependencies {
		req.Updates = append(req.Updates, DependencyUpdate{
			Name:          u.Name,
			TargetVersion: u.Version,
			IsDev:         u.IsDev,
			Reason:        u.Reason,
			FromVersion:   u.FromVersion,
		})
	}
	return req
}

// Report renders res as plain text for tool callers.
func Report(res *Result) string {
	if res == nil {
		return "no result\n"
	}
	var b strings.Builder

	fmt.Fprintf(&b, "Outcome: %s\n", headline(res))
	fmt.Fprintf(&b, "Attempts used: %d of %d\n", res.AttemptsUsed, res.MaxAttempts)
	if res.CopyBack != "" {
		fmt.Fprintf(&b, "Copy-back: %s\n", res.CopyBack)
	}
	if res.LastError != "" && !res.Success {
		fmt.Fprintf(&b, "Last error: %s\n", res.LastError)
	}

	if len(res.ValidationErrors) > 0 {
		b.WriteString("\nValidation errors:\n")
		for _, e := range res.ValidationErrors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	if len(res.AppliedUpdates) > 0 {
		b.WriteString("\nApplied updates:\n")
		for _, u := range res.AppliedUpdates {
			fmt.Fprintf(&b, "  - %s", u.Name)
			if u.FromVersion != "" {
				fmt.Fprintf(&b, " %s ->", u.FromVersion)
			}
			fmt.Fprintf(&b, " %s", u.TargetVersion)
			if u.IsDev {
				b.WriteString(" (dev)")
			}
			if u.Reason != "" {
				fmt.Fprintf(&b, ": %s", u.Reason)
			}
			b.WriteByte('\n')
		}
	}

	if len(res.Reasoning) > 0 {
		b.WriteString("\nReasoning:\n")
		for _, e := range res.Reasoning {
			fmt.Fprintf(&b, "  - %s (rank %d): %s -> %s because of %s (rank %d)\n",
				e.Package.Name, e.Package.Rank, e.FromVersion, e.ToVersion, e.Reason.Name, e.Reason.Rank)
		}
	}

	if res.InstallLogTail != "" {
		fmt.Fprintf(&b, "\nInstall log (last %d lines):\n%s\n", LogTailLines, res.InstallLogTail)
	}
	return b.String()
}

func headline(res *Result) string {
	switch res.Outcome {
	case OutcomeSuccess:
		return "dependencies resolved"
	case OutcomeSuccessCopyWarning:
		return fmt.Sprintf("dependencies resolved, but copy-back was %s", res.CopyBack)
	}
	if len(res.ValidationErrors) > 0 {
		return "requested updates are invalid"
	}
	return "resolution failed"
}
