// Package history persists the results of resolution runs.
//
// A [Record] is written once when a run finalizes. [FileStore] keeps one
// JSON file per run for the CLI; [MongoStore] shares runs between the HTTP
// service and its clients.
package history

import (
	"context"
	"time"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/suggest"
	"github.com/matzehuels/stackfix/pkg/workspace"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Update is a dependency change requested or applied during a run.
type Update struct {
	Name        string `json:"name" bson:"name"`
	Version     string `json:"version" bson:"version"`
	FromVersion string `json:"from_version,omitempty" bson:"from_version,omitempty"`
	IsDev       bool   `json:"is_dev,omitempty" bson:"is_dev,omitempty"`
	Reason      string `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Record is the stored outcome of one run.
type Record struct {
	ID               string                   `json:"id" bson:"_id"`
	RepoPath         string                   `json:"repo_path" bson:"repo_path"`
	StartedAt        time.Time                `json:"started_at" bson:"started_at"`
	FinishedAt       time.Time                `json:"finished_at" bson:"finished_at"`
	Outcome          string                   `json:"outcome" bson:"outcome"`
	Success          bool                     `json:"success" bson:"success"`
	AttemptsUsed     int                      `json:"attempts_used" bson:"attempts_used"`
	MaxAttempts      int                      `json:"max_attempts" bson:"max_attempts"`
	CopyBack         string                   `json:"copy_back,omitempty" bson:"copy_back,omitempty"`
	LastError        string                   `json:"last_error,omitempty" bson:"last_error,omitempty"`
	Targets          []Update                 `json:"targets" bson:"targets"`
	Applied          []Update                 `json:"applied,omitempty" bson:"applied,omitempty"`
	Reasoning        []suggest.ReasoningEntry `json:"reasoning,omitempty" bson:"reasoning,omitempty"`
	Checkpoints      []workspace.Checkpoint   `json:"checkpoints,omitempty" bson:"checkpoints,omitempty"`
	ValidationErrors []string                 `json:"validation_errors,omitempty" bson:"validation_errors,omitempty"`
	LogTail          string                   `json:"log_tail,omitempty" bson:"log_tail,omitempty"`
}

// Duration returns how long the run took.
func (r *Record) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// ListOptions filters List.
type ListOptions struct {
	// Limit caps the result; zero means [DefaultListLimit].
	Limit int
	// RepoPath restricts results to one repository when set.
	RepoPath string
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Store persists run records.
type Store interface {
	// Save writes rec, replacing a record with the same ID.
	Save(ctx context.Context, rec *Record) error
	// Get returns the record with id, or an error with code RUN_NOT_FOUND.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	Close() error
}

func notFound(id string) error {
	return errors.New(errors.ErrCodeRunNotFound, "run %s not found", id)
}
