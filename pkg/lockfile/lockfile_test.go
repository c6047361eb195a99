package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const lockV3 = `{
  "name": "demo-app",
  "version": "1.0.0",
  "lockfileVersion": 3,
  "packages": {
    "": {
      "name": "demo-app",
      "dependencies": {"react": "^17.0.2", "react-dom": "^17.0.2", "@mui/material": "^5.0.0"},
      "devDependencies": {"jest": "^29.0.0"}
    },
    "node_modules/react": {"version": "17.0.2"},
    "node_modules/react-dom": {
      "version": "17.0.2",
      "dependencies": {"scheduler": "^0.20.2"},
      "peerDependencies": {"react": "17.0.2"}
    },
    "node_modules/scheduler": {"version": "0.20.2"},
    "node_modules/@mui/material": {
      "version": "5.15.0",
      "peerDependencies": {"react": "^17.0.0 || ^18.0.0"}
    },
    "node_modules/jest": {"version": "29.7.0", "dev": true},
    "node_modules/legacy": {
      "version": "1.0.0",
      "dependencies": {"scheduler": "^0.19.0"}
    },
    "node_modules/legacy/node_modules/scheduler": {"version": "0.19.1"}
  }
}`

func TestParseV3(t *testing.T) {
	ix, err := Parse([]byte(lockV3))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if ix.LockfileVersion() != 3 || ix.RootName() != "demo-app" {
		t.Errorf("version/root = %d/%q", ix.LockfileVersion(), ix.RootName())
	}
	if ix.Len() != 7 {
		t.Errorf("Len() = %d, want 7", ix.Len())
	}

	if v, ok := ix.InstalledVersion("scheduler"); !ok || v != "0.20.2" {
		t.Errorf("InstalledVersion(scheduler) = %q, %v; want hoisted 0.20.2", v, ok)
	}
	if _, ok := ix.InstalledVersion("vue"); ok {
		t.Error("vue is not installed")
	}
}

func TestGetDependents(t *testing.T) {
	ix, _ := Parse([]byte(lockV3))

	deps := ix.GetDependents("react")
	if len(deps) != 3 {
		t.Fatalf("GetDependents(react) = %+v, want 3 entries", deps)
	}
	want := []Dependent{
		{Name: "@mui/material", Version: "5.15.0", Range: "^17.0.0 || ^18.0.0", Kind: EdgePeer},
		{Name: ProjectRoot, Range: "^17.0.2", Kind: EdgeProd},
		{Name: "react-dom", Version: "17.0.2", Range: "17.0.2", Kind: EdgePeer},
	}
	for i, w := range want {
		if deps[i] != w {
			t.Errorf("dependent[%d] = %+v, want %+v", i, deps[i], w)
		}
	}

	peers := ix.PeerRequirements("react")
	if len(peers) != 2 {
		t.Errorf("PeerRequirements(react) = %+v", peers)
	}

	// The nested copy is resolved from legacy's own node_modules
	sched := ix.GetDependents("scheduler")
	if len(sched) != 2 {
		t.Fatalf("GetDependents(scheduler) = %+v", sched)
	}
	if sched[0].Name != "legacy" || sched[0].Range != "^0.19.0" {
		t.Errorf("legacy edge = %+v", sched[0])
	}

	if got := ix.GetDependents("jest"); len(got) != 1 || got[0].Kind != EdgeDev {
		t.Errorf("GetDependents(jest) = %+v", got)
	}
	if got := ix.GetDependents("nothing"); len(got) != 0 {
		t.Errorf("GetDependents(nothing) = %+v", got)
	}
}

func TestParseV1(t *testing.T) {
	data := `{
  "name": "old-app",
  "lockfileVersion": 1,
  "dependencies": {
    "express": {
      "version": "4.17.1",
      "requires": {"debug": "2.6.9"},
      "dependencies": {"debug": {"version": "2.6.9"}}
    },
    "debug": {"version": "4.3.4"},
    "mocha": {"version": "10.0.0", "dev": true}
  }
}`
	ix, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if v, _ := ix.InstalledVersion("debug"); v != "4.3.4" {
		t.Errorf("hoisted debug = %q", v)
	}
	deps := ix.GetDependents("debug")
	found := false
	for _, d := range deps {
		if d.Name == "express" && d.Range == "2.6.9" {
			found = true
		}
	}
	if !found {
		t.Errorf("express should depend on its nested debug: %+v", deps)
	}
	if got := ix.GetDependents("mocha"); len(got) != 1 || got[0].Kind != EdgeDev {
		t.Errorf("GetDependents(mocha) = %+v", got)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	if _, err := Read(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read(missing) error = %v, want ErrNotExist", err)
	}
	os.WriteFile(filepath.Join(dir, Filename), []byte(lockV3), 0o644)
	ix, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !ix.Has("react-dom") {
		t.Error("react-dom should be indexed")
	}
}

func TestEmpty(t *testing.T) {
	ix := Empty()
	if ix.Len() != 0 || ix.Has("react") {
		t.Error("Empty() should index nothing")
	}
}

func TestGraphErrors(t *testing.T) {
	g := newGraph()
	if err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("AddNode(empty) = %v", err)
	}
	_ = g.AddNode(Node{ID: "a"})
	if err := g.AddNode(Node{ID: "a"}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("AddNode(dup) = %v", err)
	}
	if err := g.AddEdge(Edge{From: "x", To: "a"}); !errors.Is(err, ErrUnknownSourceNode) {
		t.Errorf("AddEdge(unknown from) = %v", err)
	}
	if err := g.AddEdge(Edge{From: "a", To: "x"}); !errors.Is(err, ErrUnknownTargetNode) {
		t.Errorf("AddEdge(unknown to) = %v", err)
	}
}
