package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/resolver"
	"github.com/matzehuels/stackfix/pkg/workspace"
)

// printResult prints a styled summary of a finished run.
func printResult(res *resolver.Result) {
	printNewline()
	switch res.Outcome {
	case resolver.OutcomeSuccess:
		printSuccess("Dependencies resolved in %s of %d attempts", StyleNumber.Render(strconv.Itoa(res.AttemptsUsed)), res.MaxAttempts)
	case resolver.OutcomeSuccessCopyWarning:
		printWarning("Dependencies resolved, but copy-back was %s", res.CopyBack)
	default:
		if len(res.ValidationErrors) > 0 {
			printError("Requested updates are invalid")
		} else {
			printError("Resolution failed after %d of %d attempts", res.AttemptsUsed, res.MaxAttempts)
		}
	}

	if res.RunID != "" {
		printKeyValue("Run", res.RunID)
	}
	if res.CopyBack != "" {
		printKeyValue("Copy-back", string(res.CopyBack))
	}
	if len(res.Checkpoints) > 0 {
		printKeyValue("Commits", strconv.Itoa(len(res.Checkpoints)))
	}
	if !res.Success && res.LastError != "" {
		printKeyValue("Last error", res.LastError)
	}

	for _, e := range res.ValidationErrors {
		printDetail("%s", e)
	}

	if len(res.AppliedUpdates) > 0 {
		printNewline()
		printTitle("Applied updates")
		rows := make([][]string, 0, len(res.AppliedUpdates))
		for _, u := range res.AppliedUpdates {
			dev := ""
			if u.IsDev {
				dev = "dev"
			}
			rows = append(rows, []string{u.Name, orDash(u.FromVersion), u.TargetVersion, dev, u.Reason})
		}
		emit(renderTable([]string{"Package", "From", "To", "", "Reason"}, rows))
	}

	if len(res.Reasoning) > 0 {
		printNewline()
		printTitle("Reasoning")
		rows := make([][]string, 0, len(res.Reasoning))
		for _, e := range res.Reasoning {
			rows = append(rows, []string{
				e.Package.Name,
				strconv.Itoa(e.Package.Rank),
				orDash(e.FromVersion) + " " + iconArrow + " " + e.ToVersion,
				fmt.Sprintf("%s (rank %d)", e.Reason.Name, e.Reason.Rank),
			})
		}
		emit(renderTable([]string{"Package", "Rank", "Change", "Because of"}, rows))
	}

	if !res.Success && res.InstallLogTail != "" {
		printNewline()
		printTitle(fmt.Sprintf("Install log (last %d lines)", resolver.LogTailLines))
		for _, line := range strings.Split(strings.TrimRight(res.InstallLogTail, "\n"), "\n") {
			emit("  " + StyleDim.Render(line))
		}
	}

	if res.RunID != "" {
		printNewline()
		printNextStep("Inspect this run", appName+" history show "+shortRunID(res.RunID))
	}
}

// recordResult converts a stored run back into a result for display.
func recordResult(rec *history.Record) *resolver.Result {
	res := &resolver.Result{
		RunID:            rec.ID,
		Success:          rec.Success,
		AttemptsUsed:     rec.AttemptsUsed,
		MaxAttempts:      rec.MaxAttempts,
		LastError:        rec.LastError,
		CopyBack:         workspace.CopyBackStatus(rec.CopyBack),
		Reasoning:        rec.Reasoning,
		Checkpoints:      rec.Checkpoints,
		InstallLogTail:   rec.LogTail,
		Outcome:          resolver.Outcome(rec.Outcome),
		ValidationErrors: rec.ValidationErrors,
	}
	for _, u := range rec.Applied {
		res.AppliedUpdates = append(res.AppliedUpdates, resolver.DependencyUpdate{
			Name:          u.Name,
			TargetVersion: u.Version,
			IsDev:         u.IsDev,
			Reason:        u.Reason,
			FromVersion:   u.FromVersion,
		})
	}
	return res
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
