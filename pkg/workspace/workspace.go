// Package workspace owns the isolated copy of a repository that a
// resolution mutates.
//
// [Manager.Open] copies package.json and package-lock.json into a temporary
// directory, puts it under git and commits an integrity baseline. Every
// later mutation is committed as a [Checkpoint] whose message records what
// changed and why. The caller's repository is written only by
// [Workspace.Finalize], which copies the results back and always removes the
// temporary directory.
package workspace

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/installer"
	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/manifest"
	"github.com/matzehuels/stackfix/pkg/observability"
	"github.com/matzehuels/stackfix/pkg/suggest"
	"github.com/matzehuels/stackfix/pkg/vcs"
)

// MaxErrorExcerpt bounds the installer output embedded in a checkpoint
// message.
const MaxErrorExcerpt = 1500

// HistoryDir is where the workspace git history is copied in the caller's
// repository.
const HistoryDir = ".stackfix/history"

// Ignore lists the .gitignore entries of a workspace.
var Ignore = []string{"node_modules/", "*.log", "npm-debug.log*"}

// ErrNothingToCommit is returned when a round leaves the workspace unchanged.
var ErrNothingToCommit = vcs.ErrNothingToCommit

// CheckpointKind tells what produced a checkpoint.
type CheckpointKind string

const (
	KindBaseline   CheckpointKind = "baseline"
	KindTargets    CheckpointKind = "targets"
	KindSuggestion CheckpointKind = "suggestion"
)

// DiffStat summarizes the change a checkpoint introduced.
type DiffStat struct {
	Files   int      `json:"files"`
	Added   int      `json:"added"`
	Deleted int      `json:"deleted"`
	Paths   []string `json:"paths,omitempty"`
}

// Checkpoint is a committed workspace state.
type Checkpoint struct {
	Index     int            `json:"index"`
	Hash      string         `json:"hash"`
	Message   string         `json:"message"`
	Kind      CheckpointKind `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
	Diff      DiffStat       `json:"diff"`
}

// CopyBackStatus reports how finalize fared.
type CopyBackStatus string

const (
	CopyBackOK      CopyBackStatus = "ok"
	CopyBackPartial CopyBackStatus = "partial"
	CopyBackFailed  CopyBackStatus = "failed"
)

// Update is a version change to write into the manifest.
type Update struct {
	Name    string
	Version string
	IsDev   bool
	Reason  string
}

// SuggestionRound is an accepted suggestion to apply and record.
type SuggestionRound struct {
	Suggestions  []suggest.Suggestion
	Reasoning    []suggest.ReasoningEntry
	ErrorContext string
	Attempt      int
}

// Manager opens workspaces.
type Manager struct {
	Installer installer.Runner
	Logger    *log.Logger
	// TempRoot is the parent of workspace directories; empty uses the
	// system temp dir.
	TempRoot string
	// RunID tags checkpoint hooks. Optional.
	RunID string
}

// Workspace is an isolated, version-controlled copy of a repository.
// Methods other than Finalize must not be called concurrently.
type Workspace struct {
	source    string
	dir       string
	repo      *vcs.Repo
	installer installer.Runner
	logger    *log.Logger
	runID     string

	manifest    *manifest.Manifest
	checkpoints []Checkpoint

	once   sync.Once
	status CopyBackStatus
}

// Open prepares a workspace for repoPath and commits checkpoint 0. A failed
// baseline install is logged and does not fail Open. On error nothing is
// left behind.
func (m *Manager) Open(ctx context.Context, repoPath string) (_ *Workspace, err error) {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	if err := errors.ValidateRepoPath(repoPath); err != nil {
		return nil, err
	}
	if m.Installer == nil {
		return nil, errors.New(errors.ErrCodeWorkspace, "no installer configured")
	}

	dir, err := os.MkdirTemp(m.TempRoot, "stackfix-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspace, err, "create workspace")
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	if err := copyFile(filepath.Join(repoPath, manifest.Filename), filepath.Join(dir, manifest.Filename)); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspace, err, "copy %s", manifest.Filename)
	}
	lockSrc := filepath.Join(repoPath, lockfile.Filename)
	if _, statErr := os.Stat(lockSrc); statErr == nil {
		if err := copyFile(lockSrc, filepath.Join(dir, lockfile.Filename)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeWorkspace, err, "copy %s", lockfile.Filename)
		}
	}

	mf, err := manifest.Read(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", manifest.Filename)
	}

	repo, err := vcs.Init(ctx, dir, Ignore)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspace, err, "initialize history")
	}

	ws := &Workspace{
		source:    repoPath,
		dir:       dir,
		repo:      repo,
		installer: m.Installer,
		logger:    logger,
		runID:     m.RunID,
		manifest:  mf,
	}
	logger.Debug("workspace created", "dir", dir, "source", repoPath)

	res, err := ws.Install(ctx)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		logger.Warn("baseline install did not complete", "error", err)
	case !res.Success:
		logger.Warn("baseline install failed", "exit", res.ExitCode)
	}

	if _, err := ws.commit(ctx, KindBaseline, "checkpoint 0: integrity baseline", true); err != nil {
		return nil, err
	}
	return ws, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Source returns the repository the workspace was copied from.
func (w *Workspace) Source() string { return w.source }

// Manifest returns the current manifest. Callers must not modify it.
func (w *Workspace) Manifest() *manifest.Manifest { return w.manifest }

// Lockfile returns the index of the workspace lockfile, empty when there is
// none or it cannot be read.
func (w *Workspace) Lockfile() *lockfile.Index {
	idx, err := lockfile.Read(w.dir)
	if err != nil {
		if !stderrors.Is(err, os.ErrNotExist) {
			w.logger.Debug("lockfile unreadable", "error", err)
		}
		return lockfile.Empty()
	}
	return idx
}

// Checkpoints returns the committed checkpoints, oldest first.
func (w *Workspace) Checkpoints() []Checkpoint {
	return append([]Checkpoint(nil), w.checkpoints...)
}

// Install runs the installer in the workspace.
func (w *Workspace) Install(ctx context.Context) (*installer.Result, error) {
	return w.installer.Run(ctx, w.dir)
}

// ApplyTargets writes the requested versions and commits checkpoint 1.
func (w *Workspace) ApplyTargets(ctx context.Context, updates []Update) (Checkpoint, error) {
	next := w.manifest.Clone()
	var b strings.Builder
	for _, u := range updates {
		next.UpdateDependency(u.Name, u.Version, u.IsDev)
		fmt.Fprintf(&b, "- %s@%s%s", u.Name, u.Version, sectionLabel(u.IsDev))
		if u.Reason != "" {
			fmt.Fprintf(&b, ": %s", u.Reason)
		}
		b.WriteByte('\n')
	}
	if err := w.writeManifest(next); err != nil {
		return Checkpoint{}, err
	}
	msg := fmt.Sprintf("checkpoint %d: apply target updates\n\n%s", len(w.checkpoints), b.String())
	return w.commit(ctx, KindTargets, msg, true)
}

// ApplySuggestion writes an accepted round and commits it. A round that
// changes nothing on disk returns [ErrNothingToCommit].
func (w *Workspace) ApplySuggestion(ctx context.Context, round SuggestionRound) (Checkpoint, error) {
	next := w.manifest.Clone()
	for _, s := range round.Suggestions {
		next.UpdateDependency(s.Name, s.Version, s.IsDev)
	}
	if next.Equal(w.manifest) {
		return Checkpoint{}, ErrNothingToCommit
	}
	if err := w.writeManifest(next); err != nil {
		return Checkpoint{}, err
	}
	return w.commit(ctx, KindSuggestion, suggestionMessage(len(w.checkpoints), round), false)
}

func (w *Workspace) writeManifest(next *manifest.Manifest) error {
	if err := manifest.Write(w.dir, next); err != nil {
		return errors.Wrap(errors.ErrCodeWorkspace, err, "write %s", manifest.Filename)
	}
	w.manifest = next
	return nil
}

func (w *Workspace) commit(ctx context.Context, kind CheckpointKind, msg string, allowEmpty bool) (Checkpoint, error) {
	if err := w.repo.AddAll(ctx); err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrCodeWorkspace, err, "stage checkpoint")
	}
	hash, err := w.repo.Commit(ctx, msg, allowEmpty)
	if err != nil {
		if stderrors.Is(err, vcs.ErrNothingToCommit) {
			return Checkpoint{}, ErrNothingToCommit
		}
		return Checkpoint{}, errors.Wrap(errors.ErrCodeWorkspace, err, "commit checkpoint")
	}

	cp := Checkpoint{
		Index:     len(w.checkpoints),
		Hash:      hash,
		Message:   msg,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	base := vcs.EmptyTree
	if n := len(w.checkpoints); n > 0 {
		base = w.checkpoints[n-1].Hash
	}
	if ds, err := w.repo.Diff(ctx, base, hash); err == nil {
		cp.Diff = diffStat(ds)
	} else {
		w.logger.Debug("checkpoint diff unavailable", "error", err)
	}

	w.checkpoints = append(w.checkpoints, cp)
	observability.Resolution().OnCheckpoint(ctx, w.runID, cp.Index, hash)
	w.logger.Debug("checkpoint", "index", cp.Index, "hash", shortHash(hash), "files", cp.Diff.Files)
	return cp, nil
}

func diffStat(ds *vcs.DiffSet) DiffStat {
	files, added, deleted := ds.Stats()
	st := DiffStat{Files: files, Added: added, Deleted: deleted}
	for _, f := range ds.Files {
		st.Paths = append(st.Paths, f.Name())
	}
	return st
}

func suggestionMessage(index int, round SuggestionRound) string {
	var b strings.Builder
	names := make([]string, 0, len(round.Suggestions))
	for _, s := range round.Suggestions {
		names = append(names, s.Name+"@"+s.Version)
	}
	fmt.Fprintf(&b, "checkpoint %d: attempt %d: %s\n", index, round.Attempt, strings.Join(names, ", "))

	b.WriteString("\nSuggestions:\n")
	for _, s := range round.Suggestions {
		fmt.Fprintf(&b, "- %s@%s%s: %s\n", s.Name, s.Version, sectionLabel(s.IsDev), s.Reason)
	}
	if len(round.Reasoning) > 0 {
		b.WriteString("\nReasoning:\n")
		for _, e := range round.Reasoning {
			fmt.Fprintf(&b, "- %s (rank %d) %s -> %s because of %s (rank %d)\n",
				e.Package.Name, e.Package.Rank, e.FromVersion, e.ToVersion, e.Reason.Name, e.Reason.Rank)
		}
	}
	if excerpt := strings.TrimSpace(round.ErrorContext); excerpt != "" {
		if len(excerpt) > MaxErrorExcerpt {
			excerpt = excerpt[:MaxErrorExcerpt] + "\n[truncated]"
		}
		b.WriteString("\nError context:\n")
		b.WriteString(excerpt)
		b.WriteByte('\n')
	}
	return b.String()
}

func sectionLabel(dev bool) string {
	if dev {
		return " (dev)"
	}
	return ""
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
