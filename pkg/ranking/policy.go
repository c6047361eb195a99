package ranking

import (
	"math"
	"slices"
	"strings"
	"time"
)

// Signals are the registry and lockfile facts a policy scores.
type Signals struct {
	WeeklyDownloads int
	Modified        time.Time
	Deprecated      bool
	Dependents      int
	ReadmeLength    int
	Maintainers     int
}

// Policy turns signals into a rank. Each field is a tunable weight or
// classification list; [DefaultPolicy] returns the shipped values.
type Policy struct {
	Bands map[Tier]Band

	// Classification lists. Scopes are matched with their leading "@".
	CriticalPackages    []string
	OfficialScopes      []string
	OfficialPackages    []string
	PopularPackages     []string
	ProblematicPackages []string

	// PriorityScopes are organization scopes that outrank their tier.
	PriorityScopes []string
	PriorityBonus  int

	// PopularityWeight is added per decade of weekly downloads.
	PopularityWeight float64
	// PopularThreshold and SpecializedThreshold classify unlisted packages
	// by weekly downloads.
	PopularThreshold     int
	SpecializedThreshold int

	// Maintenance recency: bonus within RecentWindow, penalty beyond StaleWindow.
	RecentWindow       time.Duration
	StaleWindow        time.Duration
	MaintenanceBonus   int
	MaintenancePenalty int

	DeprecationPenalty int

	// DependentsWeight is added per dependent in the lockfile, capped.
	DependentsWeight int
	DependentsCap    int

	// Documentation: bonus above RichReadme characters, penalty when empty.
	RichReadme         int
	DocumentationBonus int
	DocumentationMalus int

	// EcosystemBonus rewards packages in the family of a critical package
	// ("react-router" next to "react", "@babel/preset-env" next to "@babel/core").
	EcosystemBonus int
}

// DefaultPolicy returns the shipped weights.
func DefaultPolicy() Policy {
	return Policy{
		Bands: map[Tier]Band{
			TierCritical:    {1000, 1200},
			TierOfficial:    {700, 900},
			TierPopular:     {500, 650},
			TierSpecialized: {300, 450},
			TierNiche:       {150, 250},
			TierProblematic: {50, 100},
		},
		CriticalPackages: []string{
			"react", "react-dom", "vue", "@angular/core", "svelte", "next", "nuxt",
			"typescript", "webpack", "vite", "esbuild", "rollup", "@babel/core",
			"@types/node", "react-native", "electron", "express",
		},
		OfficialScopes: []string{
			"@angular", "@babel", "@vue", "@nestjs", "@mui", "@emotion", "@reduxjs",
			"@tanstack", "@sveltejs", "@vitejs", "@nuxt", "@types", "@testing-library",
			"@typescript-eslint", "@storybook",
		},
		OfficialPackages: []string{
			"react-router", "react-router-dom", "vue-router", "pinia", "redux",
			"react-redux", "vuex", "eslint", "prettier", "postcss", "tailwindcss",
		},
		PopularPackages: []string{
			"lodash", "axios", "moment", "dayjs", "date-fns", "uuid", "chalk",
			"jest", "mocha", "vitest", "webpack-cli", "ts-node", "nodemon",
			"styled-components", "classnames", "rxjs", "zod", "yup", "commander",
		},
		ProblematicPackages: []string{"request", "node-sass", "left-pad", "tslint"},

		PriorityBonus:        150,
		PopularityWeight:     15,
		PopularThreshold:     5_000_000,
		SpecializedThreshold: 100_000,

		RecentWindow:       180 * 24 * time.Hour,
		StaleWindow:        2 * 365 * 24 * time.Hour,
		MaintenanceBonus:   40,
		MaintenancePenalty: 40,

		DeprecationPenalty: 200,

		DependentsWeight: 10,
		DependentsCap:    100,

		RichReadme:         2000,
		DocumentationBonus: 20,
		DocumentationMalus: 20,

		EcosystemBonus: 30,
	}
}

// Classify assigns a tier from the lists, then from signals.
func (p Policy) Classify(name string, s Signals) Tier {
	switch {
	case slices.Contains(p.ProblematicPackages, name) || s.Deprecated:
		return TierProblematic
	case slices.Contains(p.CriticalPackages, name):
		return TierCritical
	case slices.Contains(p.OfficialPackages, name) || slices.Contains(p.OfficialScopes, scope(name)):
		return TierOfficial
	case slices.Contains(p.PopularPackages, name) || s.WeeklyDownloads >= p.PopularThreshold:
		return TierPopular
	case s.WeeklyDownloads >= p.SpecializedThreshold:
		return TierSpecialized
	}
	return TierNiche
}

// Score computes the final rank: the tier's base, placed inside its band
// by popularity, plus additive modifiers.
func (p Policy) Score(name string, s Signals, now time.Time) Info {
	tier := p.Classify(name, s)
	band := p.Bands[tier]

	popularity := 0.0
	if s.WeeklyDownloads > 0 {
		popularity = math.Log10(float64(s.WeeklyDownloads))
	}
	// 10^8 weekly downloads reaches the top of the band.
	frac := math.Min(popularity/8, 1)
	rank := band.Min + int(frac*float64(band.Max-band.Min))

	rank += int(popularity * p.PopularityWeight)

	if slices.Contains(p.PriorityScopes, scope(name)) || slices.Contains(p.PriorityScopes, name) {
		rank += p.PriorityBonus
	}

	if !s.Modified.IsZero() {
		age := now.Sub(s.Modified)
		switch {
		case age <= p.RecentWindow:
			rank += p.MaintenanceBonus
		case age >= p.StaleWindow:
			rank -= p.MaintenancePenalty
		}
	}

	if s.Deprecated {
		rank -= p.DeprecationPenalty
	}

	rank += p.DependentsBonus(s.Dependents)

	switch {
	case s.ReadmeLength >= p.RichReadme:
		rank += p.DocumentationBonus
	case s.ReadmeLength == 0:
		rank -= p.DocumentationMalus
	}

	if tier != TierCritical && p.inCriticalFamily(name) {
		rank += p.EcosystemBonus
	}

	return Info{Name: name, Rank: max(rank, 0), Tier: tier}
}

// DependentsBonus is the capped modifier for n installed dependents.
func (p Policy) DependentsBonus(n int) int {
	return min(max(n, 0)*p.DependentsWeight, p.DependentsCap)
}

func (p Policy) inCriticalFamily(name string) bool {
	fam := family(name)
	if fam == "" {
		return false
	}
	for _, c := range p.CriticalPackages {
		if family(c) == fam || c == fam {
			return true
		}
	}
	return false
}

// scope returns "@org" for "@org/pkg", else "".
func scope(name string) string {
	if strings.HasPrefix(name, "@") {
		if i := strings.IndexByte(name, '/'); i > 0 {
			return name[:i]
		}
	}
	return ""
}

// family returns the scope of a scoped package or the prefix before the
// first dash ("react" for "react-router").
func family(name string) string {
	if s := scope(name); s != "" {
		return s
	}
	if i := strings.IndexByte(name, '-'); i > 0 {
		return name[:i]
	}
	return ""
}
