package conflict

import (
	"regexp"
	"strings"
)

const namePat = `((?:@[\w.~-]+/)?[\w.~-]+)`

var (
	reNoMatch     = regexp.MustCompile(`No matching version found for ` + namePat + `@(\S+?)\.?$`)
	reMismatch    = regexp.MustCompile(`^` + namePat + `@(\S+?):? version mismatch,? required (?:range )?(.+)$`)
	reFound       = regexp.MustCompile(`^Found: ` + namePat + `@(\S+)$`)
	reResolve     = regexp.MustCompile(`^(?:Could not resolve dependency|Conflicting peer dependency)`)
	reFrom        = regexp.MustCompile(`^(peer |peerOptional |dev |optional )?` + namePat + `@"?([^"]*?)"? from (the root project|\S+)$`)
	reRequiresOf  = regexp.MustCompile(namePat + `@(\S+) requires a peer of ` + namePat + `@(.+?) but none (?:is|was) installed`)
	reHasUnmet    = regexp.MustCompile(`(?i)"?` + namePat + `@([^"\s]+)"? has (?:an )?unmet peer dependency "?` + namePat + `@([^"]+?)"?\.?$`)
	reUnmet       = regexp.MustCompile(`(?i)unmet peer dependency "?` + namePat + `@([^"]+?)"?\.?$`)
	reLinePrefix  = regexp.MustCompile(`^(?:npm (?:ERR!|error|WARN|warn)|yarn (?:warning|error)|warning|error)\s?`)
)

type block int

const (
	blockNone block = iota
	blockFound
	blockResolve
)

// Parse extracts conflicts from installer output with pattern matching.
// The result may be empty; it is never nil.
func Parse(raw string) *Analysis {
	a := newAnalysis(raw, SourcePattern)

	state := blockNone
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(reLinePrefix.ReplaceAllString(strings.TrimRight(line, "\r"), ""), " ")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			state = blockNone
			continue
		}

		if m := reNoMatch.FindStringSubmatch(trimmed); m != nil {
			a.add(m[1], "", Requirement{Dependent: RootDependent, Range: m[2], Kind: KindDirect})
			continue
		}
		if m := reMismatch.FindStringSubmatch(trimmed); m != nil {
			a.add(m[1], m[2], Requirement{Dependent: RootDependent, Range: strings.TrimSpace(m[3]), Kind: KindVersionMismatch})
			continue
		}
		if m := reFound.FindStringSubmatch(trimmed); m != nil {
			state = blockFound
			a.setCurrent(m[1], m[2])
			if a.Record(m[1]) == nil {
				a.Conflicts = append(a.Conflicts, Record{Package: m[1], CurrentVersion: m[2]})
			}
			continue
		}
		if reResolve.MatchString(trimmed) {
			state = blockResolve
			continue
		}
		if m := reRequiresOf.FindStringSubmatch(trimmed); m != nil {
			a.add(m[3], "", Requirement{Dependent: m[1], DependentVersion: m[2], Range: strings.Trim(m[4], `"`), Kind: KindPeer})
			continue
		}
		if m := reHasUnmet.FindStringSubmatch(trimmed); m != nil {
			a.add(m[3], "", Requirement{Dependent: m[1], DependentVersion: m[2], Range: m[4], Kind: KindPeer})
			continue
		}
		if m := reUnmet.FindStringSubmatch(trimmed); m != nil {
			a.add(m[1], "", Requirement{Dependent: RootDependent, Range: m[2], Kind: KindPeer})
			continue
		}
		if m := reFrom.FindStringSubmatch(trimmed); m != nil {
			prefix, pkg, rng := strings.TrimSpace(m[1]), m[2], m[3]
			dep, depVer := splitDependent(m[4])
			a.add(pkg, "", Requirement{
				Dependent:        dep,
				DependentVersion: depVer,
				Range:            rng,
				Kind:             fromKind(prefix, dep, state),
			})
			continue
		}
	}

	// A Found line alone is not a conflict.
	a.Conflicts = dropEmpty(a.Conflicts)
	a.ensureMentioned()
	a.evaluate()
	return a
}

func fromKind(prefix, dep string, state block) Kind {
	if strings.HasPrefix(prefix, "peer") {
		if state == blockResolve {
			return KindConflict
		}
		return KindPeer
	}
	if dep == RootDependent {
		return KindDirect
	}
	return KindConflict
}

// splitDependent splits "name@1.2.3" into its parts. The root project maps
// to [RootDependent].
func splitDependent(s string) (name, version string) {
	if s == "the root project" {
		return RootDependent, ""
	}
	if i := strings.LastIndexByte(s, '@'); i > 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func dropEmpty(recs []Record) []Record {
	out := recs[:0]
	for _, r := range recs {
		if len(r.RequiredBy) > 0 {
			out = append(out, r)
		}
	}
	return out
}
