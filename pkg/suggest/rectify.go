package suggest

import (
	"context"

	"github.com/matzehuels/stackfix/pkg/ranking"
)

// Rectify replaces claims in an engine response with computed facts:
//   - ranks come from the analysis, or from the ranker for packages the
//     analysis does not mention
//   - fromVersion is the version the manifest currently declares
//   - toVersion matches the suggestion for the same package
//   - isDev follows the manifest when the package is already declared
//
// Suggestions for packages that nothing installed depends on and the
// manifest does not declare are kept but logged as orphaned. Every
// correction is logged.
func (g *Generator) Rectify(ctx context.Context, in Input, sugg []Suggestion, entries []ReasoningEntry) ([]Suggestion, []ReasoningEntry) {
	logger := g.logger()
	ranks := make(map[string]int)
	rankOf := func(name string) int {
		if r, ok := ranks[name]; ok {
			return r
		}
		r := ranking.UnrankedRank
		if in.Analysis != nil {
			if info, ok := in.Analysis.Packages[name]; ok {
				r = info.Rank
				ranks[name] = r
				return r
			}
		}
		if g.Ranker != nil {
			if info, err := g.Ranker.Rank(ctx, name); err == nil {
				r = info.Rank
			} else {
				logger.Debug("rank lookup failed during rectification", "package", name, "error", err)
			}
		}
		ranks[name] = r
		return r
	}

	outSugg := make([]Suggestion, len(sugg))
	byName := make(map[string]Suggestion, len(sugg))
	for i, s := range sugg {
		if in.Manifest.Has(s.Name) {
			if dev := in.Manifest.IsDevDependency(s.Name); dev != s.IsDev {
				logger.Info("rectified isDev", "package", s.Name, "claimed", s.IsDev, "actual", dev)
				s.IsDev = dev
			}
		} else if !g.hasDependents(s.Name) {
			logger.Warn("orphaned suggestion", "package", s.Name, "version", s.Version)
		}
		outSugg[i] = s
		byName[s.Name] = s
	}

	outEntries := make([]ReasoningEntry, len(entries))
	for i, e := range entries {
		if r := rankOf(e.Package.Name); r != e.Package.Rank {
			logger.Info("rectified rank", "package", e.Package.Name, "claimed", e.Package.Rank, "actual", r)
			e.Package.Rank = r
		}
		if e.Reason.Name != "" {
			if r := rankOf(e.Reason.Name); r != e.Reason.Rank {
				logger.Info("rectified rank", "package", e.Reason.Name, "claimed", e.Reason.Rank, "actual", r)
				e.Reason.Rank = r
			}
		}
		if from := g.currentVersion(in, e.Package.Name); from != "" && from != e.FromVersion {
			logger.Info("rectified fromVersion", "package", e.Package.Name, "claimed", e.FromVersion, "actual", from)
			e.FromVersion = from
		}
		if s, ok := byName[e.Package.Name]; ok && s.Version != e.ToVersion {
			logger.Info("rectified toVersion", "package", e.Package.Name, "claimed", e.ToVersion, "actual", s.Version)
			e.ToVersion = s.Version
		}
		outEntries[i] = e
	}
	return outSugg, outEntries
}

// currentVersion returns what the manifest declares for name, falling back
// to the analysed version.
func (g *Generator) currentVersion(in Input, name string) string {
	if rng, _, ok := in.Manifest.Dependency(name); ok {
		return rng
	}
	if in.Analysis != nil {
		if info, ok := in.Analysis.Packages[name]; ok {
			return info.CurrentVersion
		}
	}
	return ""
}

func (g *Generator) hasDependents(name string) bool {
	if g.Installed == nil {
		return true
	}
	idx := g.Installed()
	if idx == nil {
		return true
	}
	return len(idx.GetDependents(name)) > 0
}
