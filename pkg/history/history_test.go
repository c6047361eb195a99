package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/suggest"
)

func record(id, repo string, started time.Time) *Record {
	return &Record{
		ID:           id,
		RepoPath:     repo,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
		Outcome:      "success",
		Success:      true,
		AttemptsUsed: 2,
		Targets:      []Update{{Name: "react", Version: "18.2.0"}},
		Reasoning: []suggest.ReasoningEntry{{
			Package:   suggest.RankRef{Name: "react-dom", Rank: 1100},
			ToVersion: "18.2.0",
			Reason:    suggest.RankRef{Name: "react", Rank: 1200},
		}},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := record("run-1", "/src/app", start)
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RepoPath != want.RepoPath || !got.StartedAt.Equal(want.StartedAt) || len(got.Reasoning) != 1 {
		t.Errorf("got %+v", got)
	}
	if got.Duration() != 90*time.Second {
		t.Errorf("duration = %s", got.Duration())
	}
	if got.Reasoning[0].Reason.Rank != 1200 {
		t.Errorf("reasoning = %+v", got.Reasoning)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"nope", "", "../etc/passwd"} {
		_, err := s.Get(context.Background(), id)
		if !errors.Is(err, errors.ErrCodeRunNotFound) {
			t.Errorf("Get(%q) err = %v, want RUN_NOT_FOUND", id, err)
		}
	}
}

func TestFileStoreRejectsBadID(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), &Record{ID: "../escape"}); err == nil {
		t.Error("expected error for path-like id")
	}
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		repo := "/src/a"
		if i%2 == 1 {
			repo = "/src/b"
		}
		if err := s.Save(ctx, record(fmt.Sprintf("run-%d", i), repo, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"all newest first", ListOptions{}, []string{"run-4", "run-3", "run-2", "run-1", "run-0"}},
		{"limit", ListOptions{Limit: 2}, []string{"run-4", "run-3"}},
		{"by repo", ListOptions{RepoPath: "/src/b"}, []string{"run-3", "run-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}
