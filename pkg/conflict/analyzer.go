package conflict

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackfix/pkg/integrations/npm"
	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/manifest"
	"github.com/matzehuels/stackfix/pkg/ranking"
	"github.com/matzehuels/stackfix/pkg/semver"
)

// Hydration limits.
const (
	MaxConcurrency       = 8
	MaxAvailableVersions = 25
)

// Registry lists the published versions of a package.
type Registry interface {
	Versions(ctx context.Context, name string) ([]string, error)
}

// VersionFetcher returns the dependency data of one published version.
type VersionFetcher interface {
	FetchVersion(ctx context.Context, name, version string) (*npm.VersionInfo, error)
}

// Ranker scores packages.
type Ranker interface {
	Rank(ctx context.Context, name string) (ranking.Info, error)
	IsRoot(name string) bool
}

// Analyzer runs the analysis pipeline for one failed install: pattern
// extraction, assisted extraction when patterns find nothing, then registry
// and ranking hydration.
type Analyzer struct {
	Registry Registry
	Ranker   Ranker
	// Versions, when set, adds the peer requirements of each package's
	// newest candidate version.
	Versions VersionFetcher
	// Assisted is optional; without it unrecognized output yields an empty
	// analysis.
	Assisted *AssistedExtractor
	// Installed returns the current lockfile index. Optional.
	Installed func() *lockfile.Index
	Logger    *log.Logger
}

func (an *Analyzer) logger() *log.Logger {
	if an.Logger == nil {
		return log.Default()
	}
	return an.Logger
}

// Analyze builds a hydrated analysis of raw installer output. m supplies
// versions for packages the lockfile does not know. The only error
// returned is context cancellation; extraction and lookup failures degrade
// the analysis and are logged.
func (an *Analyzer) Analyze(ctx context.Context, raw string, m *manifest.Manifest) (*Analysis, error) {
	a := Parse(raw)
	if a.Empty() && an.Assisted != nil {
		an.logger().Info("no known conflict pattern, asking reasoning engine")
		assisted, err := an.Assisted.Extract(ctx, raw)
		switch {
		case err == nil:
			a = assisted
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			an.logger().Warn("assisted extraction failed", "error", err)
		}
	}

	an.fillCurrentVersions(a, m)
	a.evaluate()

	if err := an.HydrateWithRegistry(ctx, a); err != nil {
		return nil, err
	}
	if err := an.HydrateWithPeers(ctx, a); err != nil {
		return nil, err
	}
	if err := an.HydrateWithRanking(ctx, a); err != nil {
		return nil, err
	}
	an.logger().Debug("analysis ready", "source", a.Source, "conflicts", len(a.Conflicts), "packages", len(a.Packages))
	return a, nil
}

// fillCurrentVersions sets missing versions from the lockfile, then from
// the lowest version the manifest range admits.
func (an *Analyzer) fillCurrentVersions(a *Analysis, m *manifest.Manifest) {
	var idx *lockfile.Index
	if an.Installed != nil {
		idx = an.Installed()
	}
	for name, info := range a.Packages {
		if info.IsRoot {
			if m != nil && info.CurrentVersion == "" {
				info.CurrentVersion = m.Version
			}
			continue
		}
		if info.CurrentVersion != "" {
			continue
		}
		if idx != nil {
			if v, ok := idx.InstalledVersion(name); ok {
				a.setCurrent(name, v)
				continue
			}
		}
		if m != nil {
			if rng, _, ok := m.Dependency(name); ok {
				if v := semver.MinVersion(rng); v != "" {
					a.setCurrent(name, v)
				}
			}
		}
	}
	for i := range a.Conflicts {
		rec := &a.Conflicts[i]
		if rec.CurrentVersion == "" {
			if info, ok := a.Packages[rec.Package]; ok {
				rec.CurrentVersion = info.CurrentVersion
			}
		}
	}
}

// HydrateWithRegistry fills AvailableVersions for every non-root package:
// versions strictly newer than the current one, ascending, at most
// [MaxAvailableVersions] of the newest. Lookups run concurrently; a failed
// lookup leaves the list empty.
func (an *Analyzer) HydrateWithRegistry(ctx context.Context, a *Analysis) error {
	if an.Registry == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)
	for _, info := range a.Packages {
		if info.IsRoot {
			info.AvailableVersions = nil
			continue
		}
		g.Go(func() error {
			versions, err := an.Registry.Versions(gctx, info.Name)
			if err != nil {
				an.logger().Warn("registry lookup failed", "package", info.Name, "error", err)
				info.AvailableVersions = []string{}
				return nil
			}
			newer := semver.NewerThan(versions, info.CurrentVersion)
			if len(newer) > MaxAvailableVersions {
				newer = newer[len(newer)-MaxAvailableVersions:]
			}
			if newer == nil {
				newer = []string{}
			}
			info.AvailableVersions = newer
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// HydrateWithPeers records the peer requirements of the newest available
// version of every package, so the engine can see what an upgrade would
// pull in. A failed lookup leaves the package without peer data.
func (an *Analyzer) HydrateWithPeers(ctx context.Context, a *Analysis) error {
	if an.Versions == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)
	for _, info := range a.Packages {
		if info.IsRoot || len(info.AvailableVersions) == 0 {
			continue
		}
		newest := info.AvailableVersions[len(info.AvailableVersions)-1]
		g.Go(func() error {
			v, err := an.Versions.FetchVersion(gctx, info.Name, newest)
			if err != nil {
				an.logger().Warn("version lookup failed", "package", info.Name, "version", newest, "error", err)
				return nil
			}
			if len(v.PeerDependencies) > 0 {
				info.NewestPeers = &PeerSet{Version: newest, Requires: v.PeerDependencies}
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// HydrateWithRanking fills Rank and Tier for every package concurrently.
// The root project always ranks as ROOT; a failed lookup ranks UNRANKED.
func (an *Analyzer) HydrateWithRanking(ctx context.Context, a *Analysis) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)
	for _, info := range a.Packages {
		if info.IsRoot || (an.Ranker != nil && an.Ranker.IsRoot(info.Name)) {
			info.IsRoot = true
			info.Rank, info.Tier = ranking.RootRank, ranking.TierRoot
			continue
		}
		if an.Ranker == nil {
			info.Rank, info.Tier = ranking.UnrankedRank, ranking.TierUnranked
			continue
		}
		g.Go(func() error {
			r, err := an.Ranker.Rank(gctx, info.Name)
			if err != nil {
				an.logger().Warn("ranking failed", "package", info.Name, "error", err)
				r = ranking.Unranked(info.Name)
			}
			info.Rank, info.Tier = r.Rank, r.Tier
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
