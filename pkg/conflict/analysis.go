// Package conflict turns raw installer output into a structured model of
// dependency conflicts.
//
// [Parse] recognizes the shapes npm prints for ERESOLVE failures, unmet peer
// dependencies and missing versions. When nothing matches, the [Analyzer]
// falls back to an [AssistedExtractor] that asks the reasoning engine for the
// same structure. The analyzer then hydrates every mentioned package with
// newer registry versions and its rank.
package conflict

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/ranking"
	"github.com/matzehuels/stackfix/pkg/semver"
)

// Kind describes how a requirement arose.
type Kind string

const (
	KindPeer            Kind = "peer"
	KindDirect          Kind = "direct"
	KindConflict        Kind = "conflict"
	KindVersionMismatch Kind = "version-mismatch"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPeer, KindDirect, KindConflict, KindVersionMismatch:
		return true
	}
	return false
}

// Severity grades how hard a requirement is to satisfy.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Source records which extractor produced an analysis.
type Source string

const (
	SourcePattern  Source = "pattern"
	SourceAssisted Source = "assisted"
)

// RootDependent names the project being resolved when it is the dependent.
const RootDependent = lockfile.ProjectRoot

// Requirement is one constraint a dependent places on a package.
type Requirement struct {
	Dependent        string   `json:"dependent"`
	DependentVersion string   `json:"dependentVersion,omitempty"`
	Range            string   `json:"range"`
	Kind             Kind     `json:"kind"`
	Satisfied        bool     `json:"satisfied"`
	Severity         Severity `json:"severity,omitempty"`
}

// Record groups the requirements placed on one package.
type Record struct {
	Package        string        `json:"package"`
	CurrentVersion string        `json:"currentVersion,omitempty"`
	RequiredBy     []Requirement `json:"requiredBy"`
}

// PackageInfo is the hydrated view of a package mentioned in a conflict.
type PackageInfo struct {
	Name              string       `json:"name"`
	CurrentVersion    string       `json:"currentVersion,omitempty"`
	Rank              int          `json:"rank"`
	Tier              ranking.Tier `json:"tier"`
	AvailableVersions []string     `json:"availableVersions"`
	NewestPeers       *PeerSet     `json:"newestPeerDependencies,omitempty"`
	IsRoot            bool         `json:"isRoot,omitempty"`
}

// PeerSet is the peer requirements of one published version.
type PeerSet struct {
	Version  string            `json:"version"`
	Requires map[string]string `json:"requires"`
}

// Analysis is the conflict model of one failed install.
type Analysis struct {
	Conflicts []Record                `json:"conflicts"`
	Packages  map[string]*PackageInfo `json:"packages"`
	RawError  string                  `json:"-"`
	Source    Source                  `json:"source"`
}

func newAnalysis(raw string, src Source) *Analysis {
	return &Analysis{Packages: make(map[string]*PackageInfo), RawError: raw, Source: src}
}

// Empty reports whether no conflict was extracted.
func (a *Analysis) Empty() bool { return a == nil || len(a.Conflicts) == 0 }

// Record returns the record for pkg, or nil.
func (a *Analysis) Record(pkg string) *Record {
	for i := range a.Conflicts {
		if a.Conflicts[i].Package == pkg {
			return &a.Conflicts[i]
		}
	}
	return nil
}

// Names returns every mentioned package, sorted.
func (a *Analysis) Names() []string {
	names := make([]string, 0, len(a.Packages))
	for n := range a.Packages {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// add merges req into the record for pkg. Requirements are unique by
// (package, range, dependent).
func (a *Analysis) add(pkg, current string, req Requirement) {
	if pkg == "" {
		return
	}
	if req.Severity == "" {
		req.Severity = Assess(req.Range)
	}
	rec := a.Record(pkg)
	if rec == nil {
		a.Conflicts = append(a.Conflicts, Record{Package: pkg})
		rec = &a.Conflicts[len(a.Conflicts)-1]
	}
	if rec.CurrentVersion == "" {
		rec.CurrentVersion = current
	}
	for _, r := range rec.RequiredBy {
		if r.Range == req.Range && r.Dependent == req.Dependent {
			return
		}
	}
	rec.RequiredBy = append(rec.RequiredBy, req)
}

// setCurrent records the installed version of pkg if one is not known yet.
func (a *Analysis) setCurrent(pkg, version string) {
	if rec := a.Record(pkg); rec != nil && rec.CurrentVersion == "" {
		rec.CurrentVersion = version
	}
	if info, ok := a.Packages[pkg]; ok && info.CurrentVersion == "" {
		info.CurrentVersion = version
	}
}

// ensureMentioned adds a Packages entry for every package and dependent
// named by a record.
func (a *Analysis) ensureMentioned() {
	if a.Packages == nil {
		a.Packages = make(map[string]*PackageInfo)
	}
	mention := func(name, version string) {
		if name == "" {
			return
		}
		if info, ok := a.Packages[name]; ok {
			if info.CurrentVersion == "" {
				info.CurrentVersion = version
			}
			return
		}
		a.Packages[name] = &PackageInfo{
			Name:           name,
			CurrentVersion: version,
			Rank:           ranking.UnrankedRank,
			Tier:           ranking.TierUnranked,
			IsRoot:         name == RootDependent,
		}
	}
	for _, rec := range a.Conflicts {
		mention(rec.Package, rec.CurrentVersion)
		for _, req := range rec.RequiredBy {
			mention(req.Dependent, req.DependentVersion)
		}
	}
}

// evaluate recomputes Satisfied for every requirement whose package version
// is known.
func (a *Analysis) evaluate() {
	for i := range a.Conflicts {
		rec := &a.Conflicts[i]
		for j := range rec.RequiredBy {
			req := &rec.RequiredBy[j]
			if rec.CurrentVersion == "" {
				req.Satisfied = false
				continue
			}
			ok, err := semver.Satisfies(rec.CurrentVersion, req.Range)
			req.Satisfied = err == nil && ok
		}
	}
}

// Assess grades a version range. An empty range is informational. An upper
// bound without a lower bound, or an exact pin, is blocking. Anything else is
// a warning.
func Assess(rng string) Severity {
	r := strings.TrimSpace(rng)
	if r == "" {
		return SeverityInfo
	}
	if strings.Contains(r, "<") && !strings.Contains(r, ">=") {
		return SeverityBlocking
	}
	if strings.ContainsAny(r, "^~>") || strings.Contains(r, " - ") || hasWildcard(r) {
		return SeverityWarning
	}
	return SeverityBlocking
}

func hasWildcard(r string) bool {
	for _, part := range strings.FieldsFunc(r, func(c rune) bool { return c == '.' || c == ' ' || c == '|' }) {
		if part == "x" || part == "X" || part == "*" {
			return true
		}
	}
	return false
}

// Equal reports whether a and b hold the same conflict records, ignoring
// order.
func Equal(a, b *Analysis) bool {
	ka, kb := recordKeys(a), recordKeys(b)
	return slices.Equal(ka, kb)
}

func recordKeys(a *Analysis) []string {
	if a == nil {
		return nil
	}
	var keys []string
	for _, rec := range a.Conflicts {
		for _, req := range rec.RequiredBy {
			keys = append(keys, fmt.Sprintf("%s@%s|%s@%s|%s|%s",
				rec.Package, rec.CurrentVersion, req.Dependent, req.DependentVersion, req.Range, req.Kind))
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
