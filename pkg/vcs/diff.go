package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// FileDiff summarizes the change to one file.
type FileDiff struct {
	OldName      string `json:"old_name,omitempty"`
	NewName      string `json:"new_name,omitempty"`
	IsNew        bool   `json:"is_new,omitempty"`
	IsDeleted    bool   `json:"is_deleted,omitempty"`
	IsBinary     bool   `json:"is_binary,omitempty"`
	AddedLines   int    `json:"added"`
	DeletedLines int    `json:"deleted"`
}

// Name returns the display name for the file.
func (f *FileDiff) Name() string {
	if f.NewName != "" && !f.IsDeleted {
		return f.NewName
	}
	return f.OldName
}

// DiffSet holds the parsed diff for all files.
type DiffSet struct {
	Files []*FileDiff
	Raw   string // the raw unified diff text
}

// Stats returns aggregate statistics.
func (ds *DiffSet) Stats() (files, added, deleted int) {
	files = len(ds.Files)
	for _, f := range ds.Files {
		added += f.AddedLines
		deleted += f.DeletedLines
	}
	return
}

// ParseDiff reads a unified diff string and returns a DiffSet.
func ParseDiff(raw string) (*DiffSet, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	ds := &DiffSet{Raw: raw}
	for _, f := range parsed {
		fd := &FileDiff{
			OldName:   f.OldName,
			NewName:   f.NewName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsBinary:  f.IsBinary,
		}
		for _, frag := range f.TextFragments {
			fd.AddedLines += int(frag.LinesAdded)
			fd.DeletedLines += int(frag.LinesDeleted)
		}
		ds.Files = append(ds.Files, fd)
	}
	return ds, nil
}

// Diff returns the parsed diff between two revisions.
func (r *Repo) Diff(ctx context.Context, from, to string) (*DiffSet, error) {
	raw, err := r.RawDiff(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return ParseDiff(raw)
}
