// Package resolver drives a resolution run: it validates the requested
// updates, opens a workspace, and alternates install attempts with conflict
// analysis and suggestion rounds until the install succeeds, the attempt
// budget runs out, or a fatal error ends the run.
//
// Every run finalizes exactly once. The workspace is copied back and
// removed, hooks fire, and the result is persisted to the configured
// history store, whichever way the loop ended.
package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/stackfix/pkg/cache"
	"github.com/matzehuels/stackfix/pkg/conflict"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/installer"
	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/manifest"
	"github.com/matzehuels/stackfix/pkg/observability"
	"github.com/matzehuels/stackfix/pkg/ranking"
	"github.com/matzehuels/stackfix/pkg/reasoning"
	"github.com/matzehuels/stackfix/pkg/suggest"
	"github.com/matzehuels/stackfix/pkg/workspace"
)

// Registry is the npm registry surface a run needs.
type Registry interface {
	ranking.Registry
	conflict.Registry
	suggest.VersionChecker
}

// Resolver runs resolutions. It holds no per-run state, so one Resolver
// can serve concurrent runs against different repositories.
type Resolver struct {
	Registry  Registry
	Installer installer.Runner
	Engine    reasoning.Engine
	// EngineOptions apply to every reasoning call.
	EngineOptions reasoning.Options
	// Cache backs package ranking. Nil disables caching.
	Cache cache.Cache
	// Policy overrides the default ranking policy.
	Policy *ranking.Policy
	// History persists finished runs. Optional.
	History history.Store
	// TempRoot is the parent of workspace directories.
	TempRoot string
	// SuggestionRounds overrides the corrective retry budget.
	SuggestionRounds int
	Logger           *log.Logger
	// NewRunID generates run identifiers; defaults to random UUIDs.
	NewRunID func() string
}

// New creates a resolver with the required collaborators.
func New(registry Registry, runner installer.Runner, engine reasoning.Engine, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		Registry:  registry,
		Installer: runner,
		Engine:    engine,
		Logger:    logger,
	}
}

func (r *Resolver) check() error {
	switch {
	case r.Registry == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "resolver has no registry")
	case r.Installer == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "resolver has no installer")
	case r.Engine == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "resolver has no reasoning engine")
	}
	return nil
}

// Resolve runs one resolution. The result is never nil. The error is
// non-nil when the run ended in FATAL: invalid targets (INVALID_TARGET with
// the misses as details), NO_SUITABLE_VERSION, workspace or installer
// failures, or cancellation. An exhausted attempt budget is reported through
// the result alone.
func (r *Resolver) Resolve(ctx context.Context, req Request) (_ *Result, err error) {
	rn := r.newRun(req)
	defer func() { rn.finalize(ctx, err) }()

	if err := r.check(); err != nil {
		rn.transition(ctx, StateFatal)
		return rn.res, err
	}
	return rn.res, rn.execute(ctx)
}

// run is the state of one Resolve call.
type run struct {
	r       *Resolver
	req     Request
	res     *Result
	state   State
	started time.Time
	logger  *log.Logger

	ws         *workspace.Workspace
	analyzer   *conflict.Analyzer
	generator  *suggest.Generator
	targets    []suggest.Target
	transcript reasoning.Transcript

	// index caches the lockfile for the current attempt.
	index *lockfile.Index
}

func (r *Resolver) newRun(req Request) *run {
	id := ""
	if r.NewRunID != nil {
		id = r.NewRunID()
	}
	if id == "" {
		id = uuid.NewString()
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	targets := make([]suggest.Target, len(req.Updates))
	for i, u := range req.Updates {
		targets[i] = suggest.Target{Name: u.Name, Version: u.TargetVersion, IsDev: u.IsDev}
	}
	return &run{
		r:   r,
		req: req,
		res: &Result{
			RunID:       id,
			MaxAttempts: req.maxAttempts(),
			Outcome:     OutcomeFailure,
		},
		state:   StateInit,
		started: time.Now(),
		logger:  logger.With("run", shortID(id)),
		targets: targets,
	}
}

func (rn *run) transition(ctx context.Context, to State) {
	from := rn.state
	rn.state = to
	rn.logger.Debug("state", "from", from, "to", to)
	observability.Resolution().OnState(ctx, rn.res.RunID, from.String(), to.String())
}

func (rn *run) fail(ctx context.Context, err error) error {
	rn.transition(ctx, StateFatal)
	rn.res.LastError = err.Error()
	return err
}

func (rn *run) execute(ctx context.Context) error {
	rn.transition(ctx, StateValidateTargets)
	if err := rn.validateTargets(ctx); err != nil {
		return rn.fail(ctx, err)
	}

	rn.transition(ctx, StatePrepareWorkspace)
	mgr := workspace.Manager{
		Installer: rn.r.Installer,
		Logger:    rn.logger,
		TempRoot:  rn.r.TempRoot,
		RunID:     rn.res.RunID,
	}
	ws, err := mgr.Open(ctx, rn.req.RepoPath)
	if err != nil {
		return rn.fail(ctx, err)
	}
	rn.ws = ws
	rn.wire()

	rn.transition(ctx, StateApplyTargetUpdates)
	if err := rn.applyTargets(ctx); err != nil {
		return rn.fail(ctx, err)
	}

	limit := rn.req.maxAttempts()
	for {
		rn.transition(ctx, StateAttemptInstall)
		ok, output, err := rn.attempt(ctx)
		if err != nil {
			return rn.fail(ctx, err)
		}
		if ok {
			rn.res.Success = true
			rn.res.LastError = ""
			rn.transition(ctx, StateSuccess)
			rn.logger.Info("install succeeded", "attempt", rn.res.AttemptsUsed)
			return nil
		}
		if rn.res.AttemptsUsed >= limit {
			rn.transition(ctx, StateExhausted)
			rn.logger.Warn("attempt budget exhausted", "attempts", rn.res.AttemptsUsed)
			return nil
		}

		rn.transition(ctx, StateAnalyzeAndSuggest)
		if err := rn.analyzeAndSuggest(ctx, output); err != nil {
			return rn.fail(ctx, err)
		}
	}
}

// wire builds the per-run analysis and suggestion pipeline. The ranker
// treats the workspace project as root and counts dependents in the
// lockfile of the current attempt.
func (rn *run) wire() {
	r := rn.r
	opts := []ranking.Option{
		ranking.WithRoot(rn.ws.Manifest().Name),
		ranking.WithLogger(rn.logger),
		ranking.WithDependents(func(name string) int {
			return ranking.DependentsFromIndex(rn.installed())(name)
		}),
	}
	if r.Policy != nil {
		opts = append(opts, ranking.WithPolicy(*r.Policy))
	}
	ranker := ranking.NewRanker(r.Cache, r.Registry, opts...)

	rn.analyzer = &conflict.Analyzer{
		Registry: r.Registry,
		Ranker:   ranker,
		Assisted: &conflict.AssistedExtractor{
			Engine:  r.Engine,
			Options: r.EngineOptions,
			Logger:  rn.logger,
		},
		Installed: rn.installed,
		Logger:    rn.logger,
	}
	if vf, ok := r.Registry.(conflict.VersionFetcher); ok {
		rn.analyzer.Versions = vf
	}
	rn.generator = &suggest.Generator{
		Engine:    r.Engine,
		Options:   r.EngineOptions,
		Registry:  r.Registry,
		Ranker:    ranker,
		Installed: rn.installed,
		MaxRounds: r.SuggestionRounds,
		Logger:    rn.logger,
	}
}

func (rn *run) installed() *lockfile.Index {
	if rn.index == nil {
		rn.index = rn.ws.Lockfile()
	}
	return rn.index
}

// validateTargets checks every requested update and reports all misses
// together.
func (rn *run) validateTargets(ctx context.Context) error {
	var misses []string
	for _, u := range rn.req.Updates {
		if err := errors.ValidateNpmPackageName(u.Name); err != nil {
			misses = append(misses, errors.UserMessage(err))
			continue
		}
		if err := errors.ValidateExactVersion(u.TargetVersion); err != nil {
			misses = append(misses, fmt.Sprintf("%s: %s", u.Name, errors.UserMessage(err)))
			continue
		}
		ok, err := rn.r.Registry.VersionExists(ctx, u.Name, u.TargetVersion)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			misses = append(misses, fmt.Sprintf("%s@%s could not be verified: %v", u.Name, u.TargetVersion, err))
		case !ok:
			misses = append(misses, fmt.Sprintf("%s@%s is not published in the npm registry", u.Name, u.TargetVersion))
		}
	}
	if len(misses) == 0 {
		return nil
	}
	rn.res.ValidationErrors = misses
	return errors.New(errors.ErrCodeInvalidTarget, "%d requested update(s) failed validation", len(misses)).
		WithDetails(misses...)
}

func (rn *run) applyTargets(ctx context.Context) error {
	m := rn.ws.Manifest()
	updates := make([]workspace.Update, len(rn.req.Updates))
	for i, u := range rn.req.Updates {
		updates[i] = workspace.Update{Name: u.Name, Version: u.TargetVersion, IsDev: u.IsDev, Reason: u.Reason}
		applied := u
		if applied.FromVersion == "" {
			applied.FromVersion, _, _ = m.Dependency(u.Name)
		}
		rn.res.AppliedUpdates = append(rn.res.AppliedUpdates, applied)
	}
	_, err := rn.ws.ApplyTargets(ctx, updates)
	return err
}

// attempt runs one install. It reports whether the install succeeded and
// the installer output. The error is reserved for failures that end the
// run; a timeout is an ordinary failed attempt.
func (rn *run) attempt(ctx context.Context) (bool, string, error) {
	rn.index = nil
	rn.res.AttemptsUsed++
	n := rn.res.AttemptsUsed
	rn.logger.Info("installing", "attempt", n, "of", rn.req.maxAttempts())

	start := time.Now()
	res, err := rn.ws.Install(ctx)
	if ctx.Err() != nil {
		return false, "", ctx.Err()
	}
	var output string
	if res != nil {
		output = res.Output()
		rn.res.InstallLogTail = installer.Tail(output, LogTailLines)
	}
	ok := err == nil && res != nil && res.Success
	observability.Resolution().OnAttempt(ctx, rn.res.RunID, n, rn.req.maxAttempts(), ok, time.Since(start))

	switch {
	case ok:
		return true, output, nil
	case errors.Is(err, errors.ErrCodeTimeout):
		rn.logger.Warn("install timed out", "attempt", n)
		rn.res.LastError = err.Error()
		return false, output, nil
	case err != nil:
		return false, "", err
	}
	rn.res.LastError = fmt.Sprintf("install failed with exit code %d", res.ExitCode)
	rn.logger.Warn("install failed", "attempt", n, "exit", res.ExitCode)
	return false, output, nil
}

// analyzeAndSuggest turns a failed attempt into the next manifest edit.
// Exhausted suggestion rounds leave the manifest as is; the next attempt
// reinstalls it.
func (rn *run) analyzeAndSuggest(ctx context.Context, output string) error {
	n := rn.res.AttemptsUsed
	// Load the lockfile before hydration fans out.
	rn.installed()
	analysis, err := rn.analyzer.Analyze(ctx, output, rn.ws.Manifest())
	if err != nil {
		return err
	}
	rn.logger.Info("analyzed failure", "conflicts", len(analysis.Conflicts), "source", analysis.Source)

	out, err := rn.generator.Suggest(ctx, suggest.Input{
		Analysis:    analysis,
		History:     rn.res.Reasoning,
		Attempt:     n,
		MaxAttempts: rn.req.maxAttempts(),
		Targets:     rn.targets,
		Manifest:    rn.ws.Manifest(),
		Transcript:  rn.transcript,
	})
	rounds := 0
	if out != nil {
		rounds = out.Rounds
	}
	observability.Resolution().OnSuggestion(ctx, rn.res.RunID, n, rounds, err)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errors.ErrCodeSuggestionExhausted):
		rn.logger.Warn("no acceptable suggestion this attempt", "error", err)
		rn.res.LastError = err.Error()
		return nil
	default:
		return err
	}
	rn.transcript = out.Transcript.Window(TranscriptWindow)

	before := rn.ws.Manifest()
	_, err = rn.ws.ApplySuggestion(ctx, workspace.SuggestionRound{
		Suggestions:  out.Suggestions,
		Reasoning:    out.Reasoning,
		ErrorContext: output,
		Attempt:      n,
	})
	switch {
	case stderrors.Is(err, workspace.ErrNothingToCommit):
		rn.logger.Warn("suggestion left the manifest unchanged", "attempt", n)
		return nil
	case err != nil:
		return err
	}

	for _, s := range out.Suggestions {
		rn.res.AppliedUpdates = append(rn.res.AppliedUpdates, DependencyUpdate{
			Name:          s.Name,
			TargetVersion: s.Version,
			IsDev:         s.IsDev,
			Reason:        s.Reason,
			FromVersion:   fromVersion(before, out.Reasoning, s.Name),
		})
		rn.logger.Info("applied suggestion", "package", s.Name, "version", s.Version)
	}
	rn.res.Reasoning = append(rn.res.Reasoning, out.Reasoning...)
	return nil
}

// finalize copies the workspace back, fires the final hook and persists the
// record. It runs once per Resolve, after every exit path.
func (rn *run) finalize(ctx context.Context, err error) {
	rn.transition(ctx, StateFinalize)
	if rn.ws != nil {
		rn.res.Checkpoints = rn.ws.Checkpoints()
		rn.res.CopyBack = rn.ws.Finalize(ctx)
		if rn.res.CopyBack != workspace.CopyBackOK {
			rn.logger.Warn("copy-back incomplete", "status", rn.res.CopyBack)
		}
	}
	if err != nil && rn.res.LastError == "" {
		rn.res.LastError = err.Error()
	}
	rn.res.Outcome = outcomeOf(rn.res.Success, rn.res.CopyBack)
	observability.Resolution().OnFinalize(ctx, rn.res.RunID, string(rn.res.Outcome), string(rn.res.CopyBack), time.Since(rn.started))

	if rn.r.History != nil {
		if err := rn.r.History.Save(context.WithoutCancel(ctx), rn.record()); err != nil {
			rn.logger.Warn("failed to save run history", "error", err)
		}
	}
	rn.transition(ctx, StateDone)
}

func (rn *run) record() *history.Record {
	rec := &history.Record{
		ID:               rn.res.RunID,
		RepoPath:         rn.req.RepoPath,
		StartedAt:        rn.started,
		FinishedAt:       time.Now(),
		Outcome:          string(rn.res.Outcome),
		Success:          rn.res.Success,
		AttemptsUsed:     rn.res.AttemptsUsed,
		MaxAttempts:      rn.res.MaxAttempts,
		CopyBack:         string(rn.res.CopyBack),
		LastError:        rn.res.LastError,
		Reasoning:        rn.res.Reasoning,
		Checkpoints:      rn.res.Checkpoints,
		ValidationErrors: rn.res.ValidationErrors,
		LogTail:          rn.res.InstallLogTail,
	}
	for _, u := range rn.req.Updates {
		rec.Targets = append(rec.Targets, historyUpdate(u))
	}
	for _, u := range rn.res.AppliedUpdates {
		rec.Applied = append(rec.Applied, historyUpdate(u))
	}
	return rec
}

func historyUpdate(u DependencyUpdate) history.Update {
	return history.Update{
		Name:        u.Name,
		Version:     u.TargetVersion,
		FromVersion: u.FromVersion,
		IsDev:       u.IsDev,
		Reason:      u.Reason,
	}
}

// fromVersion prefers the engine's own account of the change and falls back
// to the declared range before the round.
func fromVersion(before *manifest.Manifest, entries []suggest.ReasoningEntry, name string) string {
	for _, e := range entries {
		if e.Package.Name == name && e.FromVersion != "" {
			return e.FromVersion
		}
	}
	rng, _, _ := before.Dependency(name)
	return rng
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
