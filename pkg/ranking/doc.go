// Package ranking scores npm packages by how central they are to a project.
//
// A [Policy] first classifies a package into a [Tier] from curated lists and
// download counts, then places it inside the tier's band and adds modifiers
// for popularity, maintenance recency, deprecation, dependents in the
// lockfile, documentation and ecosystem membership. The resolver prefers to
// upgrade low-ranked packages and keep high-ranked ones stable.
//
// [Ranker] reads through a [cache.Cache] under "ranking:<name>" keys with a
// 24 hour TTL. The enclosing project is never looked up: it always ranks as
// [TierRoot] with [RootRank].
package ranking
