package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/resolver"
)

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		spec    string
		name    string
		version string
		wantErr bool
	}{
		{spec: "react@18.2.0", name: "react", version: "18.2.0"},
		{spec: "@types/node@20.11.0", name: "@types/node", version: "20.11.0"},
		{spec: "react", wantErr: true},
		{spec: "react@", wantErr: true},
		{spec: "@types/node", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			u, err := parseUpdate(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseUpdate(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if u.Name != tt.name || u.TargetVersion != tt.version {
				t.Errorf("parseUpdate(%q) = %s@%s", tt.spec, u.Name, u.TargetVersion)
			}
		})
	}
}

func TestBuildRequestFromFlags(t *testing.T) {
	dir := t.TempDir()
	req, err := buildRequest([]string{dir}, resolveOptions{
		updates:     []string{"react@18.2.0"},
		devUpdates:  []string{"typescript@5.4.5"},
		maxAttempts: 7,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if req.RepoPath != dir || req.MaxAttempts != 7 {
		t.Errorf("request = %+v", req)
	}
	want := []resolver.DependencyUpdate{
		{Name: "react", TargetVersion: "18.2.0"},
		{Name: "typescript", TargetVersion: "5.4.5", IsDev: true},
	}
	if len(req.Updates) != len(want) {
		t.Fatalf("updates = %+v", req.Updates)
	}
	for i := range want {
		if req.Updates[i] != want[i] {
			t.Errorf("update %d = %+v, want %+v", i, req.Updates[i], want[i])
		}
	}
}

func TestBuildRequestCollectsMalformedUpdates(t *testing.T) {
	_, err := buildRequest(nil, resolveOptions{updates: []string{"react", "vue@"}}, nil)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("error = %v, want INVALID_INPUT", err)
	}
	if got := len(errors.GetDetails(err)); got != 2 {
		t.Errorf("details = %d, want 2", got)
	}
}

func TestBuildRequestFromInput(t *testing.T) {
	payload := `{"repo_path":"/work/app","update_dependencies":[{"name":"eslint","version":"9.0.0","isDev":true,"reason":"flat config"}],"maxAttempts":12}`

	t.Run("stdin", func(t *testing.T) {
		req, err := buildRequest(nil, resolveOptions{input: "-"}, strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		if req.RepoPath != "/work/app" || req.MaxAttempts != 12 {
			t.Errorf("request = %+v", req)
		}
		if u := req.Updates[0]; !u.IsDev || u.Reason != "flat config" {
			t.Errorf("update = %+v", u)
		}
	})

	t.Run("file with override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payload.json")
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			t.Fatal(err)
		}
		req, err := buildRequest(nil, resolveOptions{input: path, maxAttempts: 3}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if req.MaxAttempts != 3 {
			t.Errorf("MaxAttempts = %d, want flag override 3", req.MaxAttempts)
		}
	})

	t.Run("rejects repo argument", func(t *testing.T) {
		if _, err := buildRequest([]string{"."}, resolveOptions{input: "-"}, strings.NewReader(payload)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rejects missing repo", func(t *testing.T) {
		if _, err := buildRequest(nil, resolveOptions{input: "-"}, strings.NewReader(`{"update_dependencies":[]}`)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		if _, err := buildRequest(nil, resolveOptions{input: "-"}, strings.NewReader(`{"repo_path":"/x","repo":"y"}`)); err == nil {
			t.Error("expected error")
		}
	})
}
