package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackfix/pkg/cache"
	"github.com/matzehuels/stackfix/pkg/integrations/npm"
	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/observability"
)

// Registry is the subset of the npm client the ranker reads.
type Registry interface {
	FetchPackage(ctx context.Context, name string, refresh bool) (*npm.PackageInfo, error)
	FetchDownloads(ctx context.Context, name string) (int, error)
}

// DependentCounter reports how many installed packages depend on name.
type DependentCounter func(name string) int

// Ranker computes package importance through a read-through cache. It is
// safe for concurrent use; concurrent misses for one name may both fetch.
type Ranker struct {
	cache      cache.Cache
	registry   Registry
	policy     Policy
	root       string
	dependents DependentCounter
	clock      cache.Clock
	logger     *log.Logger
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithPolicy replaces the default scoring policy.
func WithPolicy(p Policy) Option { return func(r *Ranker) { r.policy = p } }

// WithRoot names the enclosing project, which always ranks as [TierRoot].
func WithRoot(name string) Option { return func(r *Ranker) { r.root = name } }

// WithDependents sets the dependents source, usually a lockfile index.
func WithDependents(fn DependentCounter) Option { return func(r *Ranker) { r.dependents = fn } }

// WithClock overrides the time source for maintenance recency.
func WithClock(c cache.Clock) Option { return func(r *Ranker) { r.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(r *Ranker) { r.logger = l } }

// NewRanker creates a ranker. A nil cache disables caching.
func NewRanker(c cache.Cache, registry Registry, opts ...Option) *Ranker {
	if c == nil {
		c = cache.NewNullCache()
	}
	r := &Ranker{
		cache:    c,
		registry: registry,
		policy:   DefaultPolicy(),
		clock:    cache.SystemClock{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DependentsFromIndex counts dependents recorded in a lockfile index.
func DependentsFromIndex(idx *lockfile.Index) DependentCounter {
	return func(name string) int { return len(idx.GetDependents(name)) }
}

// Policy returns the active scoring policy.
func (r *Ranker) Policy() Policy { return r.policy }

// IsRoot reports whether name is the enclosing project.
func (r *Ranker) IsRoot(name string) bool {
	return name == lockfile.ProjectRoot || (r.root != "" && name == r.root)
}

// Rank returns the importance of name. Root entries bypass cache and
// registry. On lookup failure it returns the UNRANKED sentinel with the error.
//
// The cached value is repository-independent. The dependents modifier
// comes from this ranker's own lockfile and is added on every call.
func (r *Ranker) Rank(ctx context.Context, name string) (Info, error) {
	if r.IsRoot(name) {
		return Root(name), nil
	}
	info, err := r.shared(ctx, name)
	if err != nil {
		return info, err
	}
	if r.dependents != nil {
		info.Rank += r.policy.DependentsBonus(r.dependents(name))
	}
	return info, nil
}

// shared returns the cached registry-only score, computing it on a miss.
func (r *Ranker) shared(ctx context.Context, name string) (Info, error) {
	key := cache.RankingKey(name)
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var info Info
		if json.Unmarshal(data, &info) == nil {
			observability.Cache().OnCacheHit(ctx, "ranking")
			return info, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "ranking")

	info, err := r.compute(ctx, name)
	if err != nil {
		return Unranked(name), err
	}

	if data, err := json.Marshal(info); err == nil {
		if err := r.cache.Set(ctx, key, data, cache.TTLRanking); err != nil {
			r.logger.Debug("ranking cache write failed", "package", name, "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "ranking", len(data))
		}
	}
	return info, nil
}

func (r *Ranker) compute(ctx context.Context, name string) (Info, error) {
	if r.registry == nil {
		return Info{}, fmt.Errorf("rank %s: no registry configured", name)
	}
	pkg, err := r.registry.FetchPackage(ctx, name, false)
	if err != nil {
		return Info{}, fmt.Errorf("rank %s: %w", name, err)
	}

	downloads, err := r.registry.FetchDownloads(ctx, name)
	if err != nil {
		r.logger.Debug("download count unavailable", "package", name, "error", err)
		downloads = 0
	}

	s := Signals{
		WeeklyDownloads: downloads,
		Modified:        pkg.Modified,
		Deprecated:      pkg.Deprecated != "",
		ReadmeLength:    len(pkg.Readme),
		Maintainers:     pkg.Maintainers,
	}

	info := r.policy.Score(name, s, r.now())
	r.logger.Debug("ranked", "package", name, "rank", info.Rank, "tier", info.Tier)
	return info, nil
}

func (r *Ranker) now() time.Time { return r.clock.Now() }
