package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackfix/pkg/history"
)

// runIDCompletionLimit bounds how many recent runs are offered when
// completing a run argument.
const runIDCompletionLimit = 20

func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Print a shell completion script",
		Long: `Print a completion script for your shell. Besides commands and flags it
completes run IDs for "stackfix history show" and "stackfix history graph"
from the configured run history.

  bash        source <(stackfix completion bash)
  zsh         stackfix completion zsh > "${fpath[1]}/_stackfix"
  fish        stackfix completion fish > ~/.config/fish/completions/stackfix.fish
  powershell  stackfix completion powershell | Out-String | Invoke-Expression

Start a new shell afterwards.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			default:
				return root.GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}

// completeRunIDs offers recent run IDs with their outcome and repository.
// Completion does not run the root pre-run hook, so the config is loaded
// here and any failure just yields no suggestions.
func (c *CLI) completeRunIDs(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if c.cfg == nil {
		if err := c.loadConfig(cmd, args); err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
	}
	store, err := newHistory(cmd.Context(), c.config())
	if err != nil || store == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), history.ListOptions{Limit: runIDCompletionLimit})
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return runCompletions(runs), cobra.ShellCompDirectiveNoFileComp
}

// runCompletions formats runs as "id<TAB>description" candidates.
func runCompletions(runs []*history.Record) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, fmt.Sprintf("%s\t%s %s", r.ID, r.Outcome, r.RepoPath))
	}
	return out
}
