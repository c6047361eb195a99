package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/observability"
	"github.com/matzehuels/stackfix/pkg/resolver"
)

// resolveOptions holds flags for the resolve command.
type resolveOptions struct {
	updates     []string
	devUpdates  []string
	maxAttempts int
	input       string
	jsonOut     bool
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve [repo]",
		Short: "Apply dependency updates and repair install conflicts",
		Long: `Apply the requested dependency updates to an npm project and iterate on
install failures until npm install succeeds or the attempt budget runs out.

Updates are given as name@version. Scoped packages keep their leading @.`,
		Example: `  stackfix resolve . --update react@18.2.0 --update react-dom@18.2.0
  stackfix resolve ./web --dev-update typescript@5.4.5 --max-attempts 20
  stackfix resolve --input payload.json --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args, opts, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if req.MaxAttempts == 0 {
				req.MaxAttempts = c.config().MaxAttempts
			}
			return c.runResolve(cmd.Context(), req, opts.jsonOut, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringArrayVarP(&opts.updates, "update", "u", nil, "dependency update as name@version (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.devUpdates, "dev-update", "d", nil, "devDependency update as name@version (repeatable)")
	cmd.Flags().IntVarP(&opts.maxAttempts, "max-attempts", "n", 0, "install attempt budget (default from config)")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "read a tool-call payload from a JSON file (- for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("input", "update")
	cmd.MarkFlagsMutuallyExclusive("input", "dev-update")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, req resolver.Request, jsonOut bool, out, status io.Writer) error {
	svc, err := c.newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	var spinner *Spinner
	if !jsonOut && c.Logger.GetLevel() > log.DebugLevel {
		// The spinner replaces info-level progress lines.
		level := c.Logger.GetLevel()
		c.Logger.SetLevel(log.WarnLevel)
		defer c.Logger.SetLevel(level)

		spinner = newSpinner(ctx, status, "Preparing workspace...")
		observability.SetResolutionHooks(&spinnerHooks{logHooks: logHooks{logger: c.Logger}, spinner: spinner})
		spinner.Start()
	}

	res, err := svc.resolver.Resolve(ctx, req)
	if spinner != nil {
		spinner.Stop()
	}

	if jsonOut {
		if encErr := writeJSON(out, res); encErr != nil {
			return encErr
		}
	} else if res != nil {
		printResult(res)
	}

	switch {
	case err != nil:
		return err
	case res != nil && !res.Success:
		return ErrUnresolved
	}
	return nil
}

// buildRequest assembles a request from either a tool-call payload or the
// positional repo and update flags.
func buildRequest(args []string, opts resolveOptions, stdin io.Reader) (resolver.Request, error) {
	if opts.input != "" {
		if len(args) > 0 {
			return resolver.Request{}, errors.New(errors.ErrCodeInvalidInput, "--input cannot be combined with a repo argument")
		}
		in, err := readToolInput(opts.input, stdin)
		if err != nil {
			return resolver.Request{}, err
		}
		req := in.Request()
		if opts.maxAttempts > 0 {
			req.MaxAttempts = opts.maxAttempts
		}
		return req, nil
	}

	repo := "."
	if len(args) == 1 {
		repo = args[0]
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return resolver.Request{}, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", repo)
	}
	req := resolver.Request{RepoPath: abs, MaxAttempts: opts.maxAttempts}

	var bad []string
	for _, group := range []struct {
		specs []string
		dev   bool
	}{{opts.updates, false}, {opts.devUpdates, true}} {
		for _, spec := range group.specs {
			u, err := parseUpdate(spec)
			if err != nil {
				bad = append(bad, errors.UserMessage(err))
				continue
			}
			u.IsDev = group.dev
			req.Updates = append(req.Updates, u)
		}
	}
	if len(bad) > 0 {
		return resolver.Request{}, errors.New(errors.ErrCodeInvalidInput, "%d malformed update(s)", len(bad)).WithDetails(bad...)
	}
	return req, nil
}

// parseUpdate splits name@version. The version separator is the last @ so
// scoped names such as @types/node@20.11.0 parse.
func parseUpdate(spec string) (resolver.DependencyUpdate, error) {
	i := strings.LastIndex(spec, "@")
	if i <= 0 || i == len(spec)-1 {
		return resolver.DependencyUpdate{}, errors.New(errors.ErrCodeInvalidInput, "expected name@version, got %q", spec)
	}
	return resolver.DependencyUpdate{Name: spec[:i], TargetVersion: spec[i+1:]}, nil
}

func readToolInput(path string, stdin io.Reader) (resolver.ToolInput, error) {
	var in resolver.ToolInput
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return in, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode tool input")
	}
	if in.RepoPath == "" {
		return in, errors.New(errors.ErrCodeInvalidInput, "tool input has no repo_path")
	}
	return in, nil
}

// spinnerHooks keeps the spinner message in step with the run. Attempt
// results go to the spinner instead of the log so lines do not interleave.
type spinnerHooks struct {
	logHooks
	spinner  *Spinner
	attempts int
}

func (h *spinnerHooks) OnState(ctx context.Context, runID, from, to string) {
	h.logHooks.OnState(ctx, runID, from, to)
	switch to {
	case resolver.StateApplyTargetUpdates.String():
		h.spinner.SetMessage("Applying requested updates...")
	case resolver.StateAttemptInstall.String():
		h.attempts++
		h.spinner.SetMessage(fmt.Sprintf("Running install (attempt %d)...", h.attempts))
	case resolver.StateAnalyzeAndSuggest.String():
		h.spinner.SetMessage("Analyzing install failure...")
	case resolver.StateFinalize.String():
		h.spinner.SetMessage("Copying results back...")
	}
}

func (h *spinnerHooks) OnAttempt(ctx context.Context, runID string, attempt, max int, success bool, d time.Duration) {
	if !success {
		h.spinner.SetMessage(fmt.Sprintf("Attempt %d of %d failed", attempt, max))
	}
}
