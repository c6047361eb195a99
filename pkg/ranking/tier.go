package ranking

// Tier classifies how central a package is to a project. Higher tiers are
// kept stable; lower tiers are the first candidates for upgrades.
type Tier string

const (
	TierCritical    Tier = "CRITICAL_INFRASTRUCTURE"
	TierOfficial    Tier = "OFFICIAL_ECOSYSTEM"
	TierPopular     Tier = "POPULAR_UTILITIES"
	TierSpecialized Tier = "SPECIALIZED"
	TierNiche       Tier = "LIGHTWEIGHT_NICHE"
	TierProblematic Tier = "PROBLEMATIC"
	TierRoot        Tier = "ROOT"
	TierUnranked    Tier = "UNRANKED"
)

// Sentinel ranks.
const (
	RootRank     = 999999
	UnrankedRank = -1
)

// Tiers lists the scored tiers from highest to lowest.
var Tiers = []Tier{TierCritical, TierOfficial, TierPopular, TierSpecialized, TierNiche, TierProblematic}

// Band is the inclusive base-score range of a tier.
type Band struct{ Min, Max int }

// Info is the computed importance of a package.
type Info struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
	Tier Tier   `json:"tier"`
}

// Root returns the sentinel for the enclosing project.
func Root(name string) Info { return Info{Name: name, Rank: RootRank, Tier: TierRoot} }

// Unranked returns the sentinel for a failed lookup.
func Unranked(name string) Info { return Info{Name: name, Rank: UnrankedRank, Tier: TierUnranked} }
