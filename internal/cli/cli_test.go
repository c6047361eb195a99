package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackfix/pkg/config"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/observability"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvAPIKey, config.EnvRedisAddr, config.EnvMongoURI, config.EnvRegistryURL} {
		t.Setenv(k, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(observability.Reset)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := New(&bytes.Buffer{}, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	report := captureStdout(t)
	err := root.ExecuteContext(t.Context())
	return out.String() + report.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()
	for _, name := range []string{"resolve", "history", "cache", "serve", "completion"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestHistoryShowJSON(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	store, err := history.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(t.Context(), &history.Record{ID: "8f2c1e00-aaaa", RepoPath: "/work/app", Outcome: "failure"}); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, "[history]\ndir = \""+filepath.ToSlash(dir)+"\"\n\n[cache]\nbackend = \"none\"\n")

	out, err := execute(t, "--config", cfg, "history", "show", "8f2c", "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var rec history.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not a record: %v\n%s", err, out)
	}
	if rec.ID != "8f2c1e00-aaaa" || rec.Outcome != "failure" {
		t.Errorf("record = %+v", rec)
	}
}

func TestCachePath(t *testing.T) {
	clearEnv(t)
	cfg := writeConfig(t, "[cache]\ndir = \"/var/cache/stackfix\"\n")
	out, err := execute(t, "--config", cfg, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "/var/cache/stackfix" {
		t.Errorf("cache path = %q", out)
	}
}

func TestCacheClear(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "entry.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, "[cache]\ndir = \""+filepath.ToSlash(dir)+"\"\n")
	if _, err := execute(t, "--config", cfg, "cache", "clear"); err != nil {
		t.Fatal(err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("cache dir still has %d entries", len(entries))
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	clearEnv(t)
	cfg := writeConfig(t, "max_attempts = 0\n\n[cache]\nbackend = \"memcached\"\n")
	_, err := execute(t, "--config", cfg, "cache", "path")
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("error = %v, want INVALID_CONFIG", err)
	}
	msg := FormatError(err)
	for _, want := range []string{"max_attempts", "cache.backend", "INVALID_CONFIG"} {
		if !strings.Contains(msg, want) {
			t.Errorf("FormatError() missing %q:\n%s", want, msg)
		}
	}
}

func TestResolveWithoutAPIKey(t *testing.T) {
	clearEnv(t)
	cfg := writeConfig(t, "[cache]\nbackend = \"none\"\n\n[history]\nbackend = \"none\"\n")
	_, err := execute(t, "--config", cfg, "resolve", t.TempDir(), "--update", "react@18.2.0")
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("error = %v, want INVALID_CONFIG", err)
	}
}

func TestCompletion(t *testing.T) {
	clearEnv(t)
	out, err := execute(t, "completion", "bash")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, appName) {
		t.Error("bash completion should mention the command name")
	}
}

func TestCompleteRunIDs(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	store, err := history.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(t.Context(), &history.Record{ID: "8f2c1e00-aaaa", RepoPath: "/work/app", Outcome: "success"}); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, "[history]\ndir = \""+filepath.ToSlash(dir)+"\"\n")

	for _, sub := range []string{"show", "graph"} {
		out, err := execute(t, "--config", cfg, "__complete", "history", sub, "")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "8f2c1e00-aaaa\tsuccess /work/app") {
			t.Errorf("history %s completions = %q", sub, out)
		}
	}
}

func TestRunCompletions(t *testing.T) {
	got := runCompletions([]*history.Record{
		{ID: "a1", Outcome: "failure", RepoPath: "/x"},
		{ID: "b2", Outcome: "success", RepoPath: "/y"},
	})
	want := []string{"a1\tfailure /x", "b2\tsuccess /y"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("runCompletions() = %q, want %q", got, want)
	}
}
