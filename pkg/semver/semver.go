// Package semver orders npm versions and evaluates npm range expressions.
//
// Ordering is delegated to golang.org/x/mod/semver, which expects a leading
// "v"; this package accepts npm's bare form ("1.2.3") everywhere and adds the
// prefix internally. Range evaluation supports the npm grammar used in
// package.json and peer requirements: caret, tilde, x-ranges, hyphen ranges,
// primitive comparators, and "||" alternatives.
package semver

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// Canonical returns the "vMAJOR.MINOR.PATCH[-pre]" form of v, or "" when v
// is not a valid version. Build metadata is dropped.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "=")
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// IsValid reports whether v is a complete semantic version.
func IsValid(v string) bool {
	v = strings.TrimSpace(v)
	return fullVersion.MatchString(v) && Canonical(v) != ""
}

var fullVersion = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Compare returns -1, 0 or +1. Invalid versions sort before valid ones.
func Compare(a, b string) int {
	return semver.Compare(Canonical(a), Canonical(b))
}

// IsPrerelease reports whether v carries a prerelease suffix.
func IsPrerelease(v string) bool {
	return semver.Prerelease(Canonical(v)) != ""
}

// Sort orders versions ascending in place.
func Sort(versions []string) {
	slices.SortStableFunc(versions, Compare)
}

// Max returns the highest valid version, or "".
func Max(versions []string) string {
	best := ""
	for _, v := range versions {
		if !IsValid(v) {
			continue
		}
		if best == "" || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

// NewerThan returns the versions strictly greater than current, sorted
// ascending. Prereleases are excluded unless current is itself a prerelease.
// When current is empty or invalid every valid stable version is returned.
func NewerThan(versions []string, current string) []string {
	allowPre := current != "" && IsPrerelease(current)
	hasCurrent := IsValid(current)

	var out []string
	for _, v := range versions {
		if !IsValid(v) {
			continue
		}
		if IsPrerelease(v) && !allowPre {
			continue
		}
		if hasCurrent && Compare(v, current) <= 0 {
			continue
		}
		out = append(out, v)
	}
	Sort(out)
	return out
}

// Contains reports whether versions holds v, comparing canonical forms.
func Contains(versions []string, v string) bool {
	c := Canonical(v)
	if c == "" {
		return slices.Contains(versions, v)
	}
	for _, candidate := range versions {
		if Canonical(candidate) == c {
			return true
		}
	}
	return false
}

func trimV(v string) string { return strings.TrimPrefix(v, "v") }
