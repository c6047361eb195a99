package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackfix/pkg/chart"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/history"
)

// historyCommand creates the history command group.
func (c *CLI) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"runs"},
		Short:   "Inspect past resolution runs",
	}

	cmd.AddCommand(c.historyListCommand())
	cmd.AddCommand(c.historyShowCommand())
	cmd.AddCommand(c.historyGraphCommand())
	cmd.AddCommand(c.historyBrowseCommand())

	return cmd
}

func (c *CLI) historyListCommand() *cobra.Command {
	var (
		opts    history.ListOptions
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireHistory(cmd.Context(), c.config())
			if err != nil {
				return err
			}
			defer store.Close()

			if opts.RepoPath != "" {
				if abs, err := filepath.Abs(opts.RepoPath); err == nil {
					opts.RepoPath = abs
				}
			}
			runs, err := store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				printInfo("No runs recorded yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Started", "Repository", "Outcome", "Attempts", "Took"},
				runRows(runs, time.Now()),
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "l", history.DefaultListLimit, "maximum number of runs")
	cmd.Flags().StringVar(&opts.RepoPath, "repo", "", "only runs against this repository")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print runs as JSON")
	return cmd
}

func (c *CLI) historyShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:               "show <run>",
		Short:             "Show one run; a unique ID prefix is enough",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireHistory(cmd.Context(), c.config())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := findRun(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			printRecord(rec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the run as JSON")
	return cmd
}

func (c *CLI) historyGraphCommand() *cobra.Command {
	var (
		output    string
		dotOnly   bool
		hideRanks bool
	)
	cmd := &cobra.Command{
		Use:   "graph <run>",
		Short: "Render the run's change chain as SVG or DOT",
		Long: `Render which package changes were made because of which others. Every
suggested change points from the package that caused it to the package that
moved.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireHistory(cmd.Context(), c.config())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := findRun(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}

			prog := newProgress(loggerFromContext(cmd.Context()))
			dot := chart.ToDOT(rec, chart.Options{HideRanks: hideRanks})
			data := []byte(dot)
			if !dotOnly && filepath.Ext(output) != ".dot" {
				if data, err = chart.RenderSVG(cmd.Context(), dot); err != nil {
					return err
				}
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", output)
			}
			prog.done("Rendered run graph")
			printFile(output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file; a .dot extension writes DOT (default stdout)")
	cmd.Flags().BoolVar(&dotOnly, "dot", false, "emit Graphviz DOT instead of SVG")
	cmd.Flags().BoolVar(&hideRanks, "hide-ranks", false, "omit ranks from node labels")
	return cmd
}

func (c *CLI) historyBrowseCommand() *cobra.Command {
	var repo string
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Pick a run interactively and show it",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireHistory(cmd.Context(), c.config())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), history.ListOptions{RepoPath: repo, Limit: 500})
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printInfo("No runs recorded yet")
				return nil
			}

			final, err := tea.NewProgram(NewRunListModel(runs), tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return err
			}
			if m, ok := final.(RunListModel); ok && m.Selected != nil {
				printRecord(m.Selected)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "only runs against this repository")
	return cmd
}

// findRun looks a run up by ID, falling back to a unique prefix among
// recent runs.
func findRun(ctx context.Context, store history.Store, id string) (*history.Record, error) {
	rec, err := store.Get(ctx, id)
	if err == nil || !errors.Is(err, errors.ErrCodeRunNotFound) {
		return rec, err
	}

	runs, listErr := store.List(ctx, history.ListOptions{Limit: 1000})
	if listErr != nil {
		return nil, err
	}
	var matches []*history.Record
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, err
	case 1:
		return matches[0], nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "run prefix %q is ambiguous", id).WithDetails(ids...)
}

// printRecord prints a stored run with its request and timing.
func printRecord(rec *history.Record) {
	printTitle("Run " + rec.ID)
	printKeyValue("Repository", rec.RepoPath)
	printKeyValue("Started", rec.StartedAt.Local().Format(time.DateTime))
	printKeyValue("Took", rec.Duration().Round(time.Second).String())
	if len(rec.Targets) > 0 {
		targets := make([]string, len(rec.Targets))
		for i, t := range rec.Targets {
			targets[i] = t.Name + "@" + t.Version
			if t.IsDev {
				targets[i] += " (dev)"
			}
		}
		printKeyValue("Requested", strings.Join(targets, ", "))
	}
	printResult(recordResult(rec))
}

func runRows(runs []*history.Record, now time.Time) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortRunID(r.ID),
			formatRelativeTime(r.StartedAt, now),
			r.RepoPath,
			outcomeStyle(r.Outcome).Render(r.Outcome),
			strconv.Itoa(r.AttemptsUsed) + "/" + strconv.Itoa(r.MaxAttempts),
			r.Duration().Round(time.Second).String(),
		})
	}
	return rows
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
