package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Range is a parsed npm range: a disjunction of comparator sets.
type Range struct {
	raw  string
	sets [][]comparator
}

type comparator struct {
	op string // one of ">=", ">", "<=", "<", "="
	v  string // canonical form
}

var (
	opSpace    = regexp.MustCompile(`(<=|>=|<|>|=|\^|~>?)\s+`)
	hyphenForm = regexp.MustCompile(`^(\S+)\s+-\s+(\S+)$`)
	opPrefix   = regexp.MustCompile(`^(<=|>=|<|>|=|\^|~>|~)?(.*)$`)
)

// ParseRange parses an npm range expression. The empty string and "*" match
// every stable release.
func ParseRange(expr string) (*Range, error) {
	r := &Range{raw: expr}
	for _, alt := range strings.Split(expr, "||") {
		set, err := parseSet(strings.TrimSpace(alt))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", expr, err)
		}
		r.sets = append(r.sets, set)
	}
	return r, nil
}

// String returns the original expression.
func (r *Range) String() string { return r.raw }

// Contains reports whether version satisfies the range. A prerelease only
// matches when some comparator of the same set names a prerelease of the
// same major.minor.patch tuple.
func (r *Range) Contains(version string) bool {
	v := Canonical(version)
	if v == "" {
		return false
	}
	for _, set := range r.sets {
		if setContains(set, v) {
			return true
		}
	}
	return false
}

// Min returns the lowest version that can satisfy the range, or "" when
// no lower bound can be derived.
func (r *Range) Min() string {
	best := ""
	for _, set := range r.sets {
		lo := "v0.0.0"
		for _, c := range set {
			switch c.op {
			case ">=", "=":
				if semver.Compare(c.v, lo) > 0 {
					lo = c.v
				}
			case ">":
				next := bumpPatch(c.v)
				if semver.Compare(next, lo) > 0 {
					lo = next
				}
			}
		}
		if !setContains(set, lo) {
			continue
		}
		if best == "" || semver.Compare(lo, best) < 0 {
			best = lo
		}
	}
	return trimV(best)
}

// Satisfies reports whether version is within rng. Unparseable ranges, such
// as git URLs or dist-tags, return an error.
func Satisfies(version, rng string) (bool, error) {
	r, err := ParseRange(rng)
	if err != nil {
		return false, err
	}
	return r.Contains(version), nil
}

// MinVersion returns the lowest version admitted by rng, or "" when rng is
// not a semantic range (tags, URLs, file: specs).
func MinVersion(rng string) string {
	r, err := ParseRange(rng)
	if err != nil {
		return ""
	}
	return r.Min()
}

func setContains(set []comparator, v string) bool {
	for _, c := range set {
		if !c.matches(v) {
			return false
		}
	}
	if semver.Prerelease(v) == "" {
		return true
	}
	base := semver.Canonical(strings.SplitN(v, "-", 2)[0])
	for _, c := range set {
		if semver.Prerelease(c.v) == "" || c.v == "v0.0.0-0" {
			continue
		}
		if semver.Canonical(strings.SplitN(c.v, "-", 2)[0]) == base {
			return true
		}
	}
	return false
}

func (c comparator) matches(v string) bool {
	cmp := semver.Compare(v, c.v)
	switch c.op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	default:
		return cmp == 0
	}
}

func parseSet(s string) ([]comparator, error) {
	if s == "" || s == "*" || s == "x" || s == "X" {
		return []comparator{{">=", "v0.0.0"}}, nil
	}
	if m := hyphenForm.FindStringSubmatch(s); m != nil {
		lo, err := desugar(">=", m[1])
		if err != nil {
			return nil, err
		}
		hi, err := desugar("<=", m[2])
		if err != nil {
			return nil, err
		}
		return append(lo, hi...), nil
	}

	s = opSpace.ReplaceAllString(s, "$1")
	var out []comparator
	for _, tok := range strings.Fields(s) {
		m := opPrefix.FindStringSubmatch(tok)
		cs, err := desugar(m[1], m[2])
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

type partial struct {
	major, minor, patch int
	pre                 string
	parts               int // number of numeric components given
}

func parsePartial(s string) (partial, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "="), "v")
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	var p partial
	core := s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		core, p.pre = s[:i], s[i+1:]
	}
	if core == "" {
		return p, fmt.Errorf("empty version")
	}
	fields := strings.Split(core, ".")
	if len(fields) > 3 {
		return p, fmt.Errorf("too many components in %q", s)
	}
	nums := []*int{&p.major, &p.minor, &p.patch}
	for i, f := range fields {
		if f == "x" || f == "X" || f == "*" {
			break
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid component %q in %q", f, s)
		}
		*nums[i] = n
		p.parts++
	}
	if p.pre != "" && p.parts < 3 {
		p.pre = ""
	}
	return p, nil
}

func (p partial) ver() string {
	s := fmt.Sprintf("v%d.%d.%d", p.major, p.minor, p.patch)
	if p.pre != "" {
		s += "-" + p.pre
	}
	return s
}

func ceil(major, minor, patch int) string {
	return fmt.Sprintf("v%d.%d.%d-0", major, minor, patch)
}

var matchAll = []comparator{{">=", "v0.0.0"}}
var matchNone = []comparator{{"<", "v0.0.0-0"}}

func desugar(op, raw string) ([]comparator, error) {
	p, err := parsePartial(raw)
	if err != nil {
		return nil, err
	}
	lo := p.ver()

	switch op {
	case "", "=":
		switch p.parts {
		case 0:
			return matchAll, nil
		case 1:
			return []comparator{{">=", lo}, {"<", ceil(p.major+1, 0, 0)}}, nil
		case 2:
			return []comparator{{">=", lo}, {"<", ceil(p.major, p.minor+1, 0)}}, nil
		}
		return []comparator{{"=", lo}}, nil

	case "^":
		switch {
		case p.parts == 0:
			return matchAll, nil
		case p.major > 0 || p.parts == 1:
			return []comparator{{">=", lo}, {"<", ceil(p.major+1, 0, 0)}}, nil
		case p.minor > 0 || p.parts == 2:
			return []comparator{{">=", lo}, {"<", ceil(0, p.minor+1, 0)}}, nil
		}
		return []comparator{{">=", lo}, {"<", ceil(0, 0, p.patch+1)}}, nil

	case "~", "~>":
		switch p.parts {
		case 0:
			return matchAll, nil
		case 1:
			return []comparator{{">=", lo}, {"<", ceil(p.major+1, 0, 0)}}, nil
		}
		return []comparator{{">=", lo}, {"<", ceil(p.major, p.minor+1, 0)}}, nil

	case ">":
		switch p.parts {
		case 0:
			return matchNone, nil
		case 1:
			return []comparator{{">=", fmt.Sprintf("v%d.0.0", p.major+1)}}, nil
		case 2:
			return []comparator{{">=", fmt.Sprintf("v%d.%d.0", p.major, p.minor+1)}}, nil
		}
		return []comparator{{">", lo}}, nil

	case ">=":
		if p.parts == 0 {
			return matchAll, nil
		}
		return []comparator{{">=", lo}}, nil

	case "<":
		switch p.parts {
		case 0:
			return matchNone, nil
		case 1:
			return []comparator{{"<", ceil(p.major, 0, 0)}}, nil
		case 2:
			return []comparator{{"<", ceil(p.major, p.minor, 0)}}, nil
		}
		return []comparator{{"<", lo}}, nil

	case "<=":
		switch p.parts {
		case 0:
			return matchAll, nil
		case 1:
			return []comparator{{"<", ceil(p.major+1, 0, 0)}}, nil
		case 2:
			return []comparator{{"<", ceil(p.major, p.minor+1, 0)}}, nil
		}
		return []comparator{{"<=", lo}}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func bumpPatch(v string) string {
	if semver.Prerelease(v) != "" {
		return semver.Canonical(strings.SplitN(v, "-", 2)[0])
	}
	var major, minor, patch int
	fmt.Sscanf(v, "v%d.%d.%d", &major, &minor, &patch)
	return fmt.Sprintf("v%d.%d.%d", major, minor, patch+1)
}
