package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/stackfix/pkg/cache"
	"github.com/matzehuels/stackfix/pkg/integrations/npm"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type fakeRegistry struct {
	mu        sync.Mutex
	packages  map[string]*npm.PackageInfo
	downloads map[string]int
	calls     int
}

func (f *fakeRegistry) FetchPackage(_ context.Context, name string, _ bool) (*npm.PackageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.packages[name]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return p, nil
}

func (f *fakeRegistry) FetchDownloads(_ context.Context, name string) (int, error) {
	if n, ok := f.downloads[name]; ok {
		return n, nil
	}
	return 0, errors.New("no downloads")
}

func TestClassify(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name string
		sig  Signals
		want Tier
	}{
		{"react", Signals{}, TierCritical},
		{"@angular/core", Signals{}, TierCritical},
		{"@angular/forms", Signals{}, TierOfficial},
		{"react-router-dom", Signals{}, TierOfficial},
		{"lodash", Signals{}, TierPopular},
		{"some-lib", Signals{WeeklyDownloads: 6_000_000}, TierPopular},
		{"some-lib", Signals{WeeklyDownloads: 200_000}, TierSpecialized},
		{"some-lib", Signals{WeeklyDownloads: 50}, TierNiche},
		{"request", Signals{WeeklyDownloads: 10_000_000}, TierProblematic},
		{"react", Signals{Deprecated: true}, TierProblematic},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.name, tt.sig.WeeklyDownloads), func(t *testing.T) {
			if got := p.Classify(tt.name, tt.sig); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestScoreOrdering(t *testing.T) {
	p := DefaultPolicy()
	react := p.Score("react", Signals{WeeklyDownloads: 20_000_000, Modified: testNow, ReadmeLength: 5000}, testNow)
	router := p.Score("react-router", Signals{WeeklyDownloads: 10_000_000, Modified: testNow, ReadmeLength: 5000}, testNow)
	niche := p.Score("tiny-thing", Signals{WeeklyDownloads: 300}, testNow)
	old := p.Score("request", Signals{WeeklyDownloads: 10_000_000, Deprecated: true}, testNow)

	if !(react.Rank > router.Rank && router.Rank > niche.Rank && niche.Rank > old.Rank) {
		t.Errorf("unexpected ordering: react=%d router=%d niche=%d request=%d",
			react.Rank, router.Rank, niche.Rank, old.Rank)
	}
	if react.Rank < 1000 {
		t.Errorf("critical package ranked %d, below its band", react.Rank)
	}
}

func TestScoreModifiers(t *testing.T) {
	p := DefaultPolicy()
	base := Signals{WeeklyDownloads: 1000, ReadmeLength: 500}
	baseRank := p.Score("some-lib", base, testNow).Rank

	tests := []struct {
		name  string
		pkg   string
		sig   Signals
		delta int
	}{
		{"recent", "some-lib", Signals{WeeklyDownloads: 1000, ReadmeLength: 500, Modified: testNow.Add(-24 * time.Hour)}, p.MaintenanceBonus},
		{"stale", "some-lib", Signals{WeeklyDownloads: 1000, ReadmeLength: 500, Modified: testNow.AddDate(-3, 0, 0)}, -p.MaintenancePenalty},
		{"dependents", "some-lib", Signals{WeeklyDownloads: 1000, ReadmeLength: 500, Dependents: 3}, 3 * p.DependentsWeight},
		{"dependents capped", "some-lib", Signals{WeeklyDownloads: 1000, ReadmeLength: 500, Dependents: 1000}, p.DependentsCap},
		{"rich readme", "some-lib", Signals{WeeklyDownloads: 1000, ReadmeLength: 4000}, p.DocumentationBonus},
		{"no readme", "some-lib", Signals{WeeklyDownloads: 1000}, -p.DocumentationMalus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Score(tt.pkg, tt.sig, testNow).Rank - baseRank
			if got != tt.delta {
				t.Errorf("delta = %d, want %d", got, tt.delta)
			}
		})
	}
}

func TestPriorityScopes(t *testing.T) {
	p := DefaultPolicy()
	sig := Signals{WeeklyDownloads: 1000, ReadmeLength: 500}
	before := p.Score("@acme/ui", sig, testNow).Rank
	p.PriorityScopes = []string{"@acme"}
	after := p.Score("@acme/ui", sig, testNow).Rank
	if after-before != p.PriorityBonus {
		t.Errorf("priority bonus = %d, want %d", after-before, p.PriorityBonus)
	}
}

func TestRankerRoot(t *testing.T) {
	reg := &fakeRegistry{}
	r := NewRanker(nil, reg, WithRoot("my-app"))
	for _, name := range []string{"my-app", "__project__"} {
		info, err := r.Rank(context.Background(), name)
		if err != nil {
			t.Fatal(err)
		}
		if info.Rank != RootRank || info.Tier != TierRoot {
			t.Errorf("Rank(%q) = %+v, want root sentinel", name, info)
		}
	}
	if reg.calls != 0 {
		t.Errorf("root lookups hit the registry %d times", reg.calls)
	}
}

func TestRankerReadThrough(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{
		packages:  map[string]*npm.PackageInfo{"lodash": {Name: "lodash", Readme: "docs", Modified: testNow}},
		downloads: map[string]int{"lodash": 40_000_000},
	}
	c := cache.NewMemoryCache(nil)
	r := NewRanker(c, reg, WithClock(fixedClock{}))

	first, err := r.Rank(ctx, "lodash")
	if err != nil {
		t.Fatal(err)
	}
	if first.Tier != TierPopular {
		t.Errorf("tier = %s, want %s", first.Tier, TierPopular)
	}
	second, err := r.Rank(ctx, "lodash")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("cached rank %+v differs from computed %+v", second, first)
	}
	if reg.calls != 1 {
		t.Errorf("registry calls = %d, want 1", reg.calls)
	}

	data, ok, _ := c.Get(ctx, cache.RankingKey("lodash"))
	if !ok {
		t.Fatal("ranking not stored under ranking key")
	}
	var stored Info
	if err := json.Unmarshal(data, &stored); err != nil || stored != first {
		t.Errorf("stored = %+v (%v), want %+v", stored, err, first)
	}
}

func TestRankerFailure(t *testing.T) {
	r := NewRanker(nil, &fakeRegistry{})
	info, err := r.Rank(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if info.Rank != UnrankedRank || info.Tier != TierUnranked {
		t.Errorf("info = %+v, want unranked sentinel", info)
	}
}

func TestRankerDependents(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*npm.PackageInfo{"x": {Name: "x"}}}
	plain := NewRanker(nil, reg, WithClock(fixedClock{}))
	counted := NewRanker(nil, reg, WithClock(fixedClock{}), WithDependents(func(string) int { return 2 }))

	a, _ := plain.Rank(context.Background(), "x")
	b, _ := counted.Rank(context.Background(), "x")
	if b.Rank-a.Rank != 2*DefaultPolicy().DependentsWeight {
		t.Errorf("dependents delta = %d", b.Rank-a.Rank)
	}
}

func TestRankerSharedCacheExcludesDependents(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{packages: map[string]*npm.PackageInfo{"x": {Name: "x"}}}
	shared := cache.NewMemoryCache(nil)

	busy := NewRanker(shared, reg, WithClock(fixedClock{}), WithDependents(func(string) int { return 5 }))
	quiet := NewRanker(shared, reg, WithClock(fixedClock{}), WithDependents(func(string) int { return 0 }))

	a, err := busy.Rank(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	b, err := quiet.Rank(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if reg.calls != 1 {
		t.Errorf("registry calls = %d, want 1 (second ranker reads the cache)", reg.calls)
	}
	if a.Rank-b.Rank != 5*DefaultPolicy().DependentsWeight {
		t.Errorf("rank delta = %d, want only this repository's dependents to count", a.Rank-b.Rank)
	}

	data, _, _ := shared.Get(ctx, cache.RankingKey("x"))
	var stored Info
	if err := json.Unmarshal(data, &stored); err != nil || stored.Rank != b.Rank {
		t.Errorf("stored = %+v, want the dependents-free rank %d", stored, b.Rank)
	}
}

func TestDependentsBonus(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct{ n, want int }{
		{0, 0},
		{-3, 0},
		{2, 2 * p.DependentsWeight},
		{1000, p.DependentsCap},
	}
	for _, tt := range tests {
		if got := p.DependentsBonus(tt.n); got != tt.want {
			t.Errorf("DependentsBonus(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
