// Package lockfile indexes package-lock.json so the resolver can ask which
// version of a package is installed and which packages depend on it.
//
// Lockfile versions 1, 2 and 3 are supported. For v2 and v3 the flat
// "packages" map is authoritative; v1 files are walked through their nested
// "dependencies" tree.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Filename is the lockfile name.
const Filename = "package-lock.json"

// ProjectRoot is the node ID of the enclosing project.
const ProjectRoot = "__project__"

// Dependent is a package that declares a requirement on another.
type Dependent struct {
	Name    string
	Version string
	Range   string
	Kind    EdgeKind
}

// Index answers reverse-dependency queries over one lockfile.
type Index struct {
	graph   *Graph
	root    string
	version int
}

// Empty returns an index with no packages.
func Empty() *Index {
	g := newGraph()
	_ = g.AddNode(Node{ID: ProjectRoot, Name: ProjectRoot})
	return &Index{graph: g}
}

// Read indexes dir/package-lock.json.
func Read(dir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse indexes lockfile content.
func Parse(data []byte) (*Index, error) {
	var lf lockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", Filename, err)
	}

	ix := Empty()
	ix.root = lf.Name
	ix.version = lf.LockfileVersion

	if len(lf.Packages) > 0 {
		ix.indexPackages(lf.Packages)
	} else {
		ix.indexNested("", lf.Dependencies)
		ix.linkNested("", lf.Dependencies)
	}
	return ix, nil
}

// Graph exposes the underlying dependency graph.
func (ix *Index) Graph() *Graph { return ix.graph }

// RootName returns the project name recorded in the lockfile.
func (ix *Index) RootName() string { return ix.root }

// LockfileVersion returns the lockfileVersion field.
func (ix *Index) LockfileVersion() int { return ix.version }

// Len returns the number of installed package instances.
func (ix *Index) Len() int { return ix.graph.NodeCount() - 1 }

// InstalledVersion returns the version hoisted to the top-level
// node_modules, falling back to the shallowest nested instance.
func (ix *Index) InstalledVersion(name string) (string, bool) {
	if n, ok := ix.graph.Node("node_modules/" + name); ok {
		return n.Version, true
	}
	if nodes := ix.graph.NodesNamed(name); len(nodes) > 0 {
		return nodes[0].Version, true
	}
	return "", false
}

// Has reports whether any instance of name is installed.
func (ix *Index) Has(name string) bool {
	return len(ix.graph.NodesNamed(name)) > 0
}

// GetDependents returns the packages that declare a requirement on name,
// sorted by name then version. The project itself appears as [ProjectRoot].
func (ix *Index) GetDependents(name string) []Dependent {
	seen := make(map[Dependent]bool)
	var out []Dependent
	for _, n := range ix.graph.NodesNamed(name) {
		for _, e := range ix.graph.InEdges(n.ID) {
			from, _ := ix.graph.Node(e.From)
			d := Dependent{Name: from.Name, Version: from.Version, Range: e.Range, Kind: e.Kind}
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	slices.SortFunc(out, func(a, b Dependent) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return out
}

// PeerRequirements returns the peer ranges declared on name by installed
// packages.
func (ix *Index) PeerRequirements(name string) []Dependent {
	var out []Dependent
	for _, d := range ix.GetDependents(name) {
		if d.Kind == EdgePeer {
			out = append(out, d)
		}
	}
	return out
}

func (ix *Index) indexPackages(pkgs map[string]lockPackage) {
	for path, p := range pkgs {
		if path == "" {
			continue
		}
		name := p.Name
		if name == "" {
			name = nameFromPath(path)
		}
		_ = ix.graph.AddNode(Node{ID: path, Name: name, Version: p.Version, Dev: p.Dev, Peer: p.Peer})
	}

	for path, p := range pkgs {
		from := path
		if path == "" {
			from = ProjectRoot
		}
		link := func(deps map[string]string, kind EdgeKind) {
			for dep, rng := range deps {
				if to, ok := ix.resolve(path, dep); ok {
					_ = ix.graph.AddEdge(Edge{From: from, To: to, Range: rng, Kind: kind})
				}
			}
		}
		link(p.Dependencies, EdgeProd)
		link(p.OptionalDependencies, EdgeOptional)
		link(p.PeerDependencies, EdgePeer)
		if path == "" {
			link(p.DevDependencies, EdgeDev)
		}
	}
}

// resolve finds the install path node.js would load name from when required
// by the package at path.
func (ix *Index) resolve(path, name string) (string, bool) {
	dir := path
	for {
		candidate := "node_modules/" + name
		if dir != "" {
			candidate = dir + "/node_modules/" + name
		}
		if _, ok := ix.graph.Node(candidate); ok {
			return candidate, true
		}
		if dir == "" {
			return "", false
		}
		i := strings.LastIndex(dir, "/node_modules/")
		if i < 0 {
			dir = ""
		} else {
			dir = dir[:i]
		}
	}
}

func (ix *Index) indexNested(prefix string, deps map[string]nestedDep) {
	for name, d := range deps {
		path := prefix + "node_modules/" + name
		_ = ix.graph.AddNode(Node{ID: path, Name: name, Version: d.Version, Dev: d.Dev})
		ix.indexNested(path+"/", d.Dependencies)
	}
}

func (ix *Index) linkNested(prefix string, deps map[string]nestedDep) {
	for name, d := range deps {
		path := prefix + "node_modules/" + name
		for dep, rng := range d.Requires {
			if to, ok := ix.resolve(path, dep); ok {
				_ = ix.graph.AddEdge(Edge{From: path, To: to, Range: rng, Kind: EdgeProd})
			}
		}
		if prefix == "" {
			kind := EdgeProd
			if d.Dev {
				kind = EdgeDev
			}
			_ = ix.graph.AddEdge(Edge{From: ProjectRoot, To: path, Kind: kind})
		}
		ix.linkNested(path+"/", d.Dependencies)
	}
}

// nameFromPath extracts the package name from an install path, keeping
// the scope of scoped packages.
func nameFromPath(path string) string {
	i := strings.LastIndex(path, "node_modules/")
	if i < 0 {
		return path
	}
	return path[i+len("node_modules/"):]
}

type lockFile struct {
	Name            string                 `json:"name"`
	Version         string                 `json:"version"`
	LockfileVersion int                    `json:"lockfileVersion"`
	Packages        map[string]lockPackage `json:"packages"`
	Dependencies    map[string]nestedDep   `json:"dependencies"`
}

type lockPackage struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dev                  bool              `json:"dev"`
	Peer                 bool              `json:"peer"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

type nestedDep struct {
	Version      string               `json:"version"`
	Dev          bool                 `json:"dev"`
	Requires     map[string]string    `json:"requires"`
	Dependencies map[string]nestedDep `json:"dependencies"`
}
