//go:build integration

package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/stackfix/pkg/errors"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("STACKFIX_MONGO_URI")
	if uri == "" {
		t.Skip("STACKFIX_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Collection: "runs_test_" + uuid.NewString()[:8]})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = s.coll.Drop(ctx)
		_ = s.Close()
	}()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Save(ctx, record("a", "/src/a", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, record("b", "/src/a", now.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.RepoPath != "/src/a" || len(got.Targets) != 1 {
		t.Errorf("got %+v", got)
	}

	recs, err := s.List(ctx, ListOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID != "b" {
		t.Errorf("list = %+v", recs)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, errors.ErrCodeRunNotFound) {
		t.Errorf("err = %v, want RUN_NOT_FOUND", err)
	}
}
