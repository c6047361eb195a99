package suggest

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stackfix/pkg/conflict"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/manifest"
)

// MaxPromptError bounds the installer output embedded in a prompt. The tail
// is kept.
const MaxPromptError = 8000

// SystemPrompt states the strategy and the response contract.
const SystemPrompt = `You resolve npm dependency conflicts by editing package.json.

Strategy:
- Every package carries a rank. Higher ranks are more central to the project.
- Keep high-ranked packages stable. Upgrade the lower-ranked side of a conflict first.
- Never change a requested target update. Work around it.
- Only pick versions listed under availableVersions, or versions you know are published.
- newestPeerDependencies shows what the newest available version peer-requires. Check it before jumping to that version.
- Use exact versions such as "4.2.1", never ranges.
- Do not repeat a change that already failed. The reasoning so far lists what was tried.

Respond with exactly one JSON object and no other text:
{"suggestions":[{"name":"<package>","version":"<exact version>","isDev":<true|false>,"reason":"<why>"}],
 "reasoning":{"updateMade":[{"package":{"name":"<package>","rank":<rank>},"fromVersion":"<current>","toVersion":"<new>","reason":{"name":"<package forcing the change>","rank":<its rank>}}]}}

If no published version of some package can satisfy the constraints, respond instead with:
{"noSuitableVersion":{"package":"<package>","reason":"<why>"}}`

// BuildPrompt renders the user turn for one attempt.
func BuildPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Attempt %d of %d failed. Propose the next change.\n", in.Attempt, in.MaxAttempts)

	if len(in.Targets) > 0 {
		b.WriteString("\n## Requested updates (do not change)\n")
		for _, t := range in.Targets {
			fmt.Fprintf(&b, "- %s@%s%s\n", t.Name, t.Version, devSuffix(t.IsDev))
		}
	}

	if len(in.History) > 0 {
		b.WriteString("\n## Reasoning so far\n")
		for _, e := range in.History {
			fmt.Fprintf(&b, "- %s (rank %d): %s -> %s because of %s (rank %d)\n",
				e.Package.Name, e.Package.Rank, e.FromVersion, e.ToVersion, e.Reason.Name, e.Reason.Rank)
		}
	}

	if in.Analysis != nil {
		raw := in.Analysis.RawError
		if len(raw) > MaxPromptError {
			raw = "...\n" + raw[len(raw)-MaxPromptError:]
		}
		b.WriteString("\n## Install error\n```\n")
		b.WriteString(strings.TrimSpace(raw))
		b.WriteString("\n```\n")

		b.WriteString("\n## Conflict analysis\n```json\n")
		b.WriteString(analysisJSON(in.Analysis))
		b.WriteString("\n```\n")
	}

	if in.Manifest != nil {
		b.WriteString("\n## Current package.json dependencies\n")
		writeSection(&b, in.Manifest, manifest.SectionProd, "")
		writeSection(&b, in.Manifest, manifest.SectionDev, " (dev)")
		writeSection(&b, in.Manifest, manifest.SectionPeer, " (peer)")
	}

	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}

func writeSection(b *strings.Builder, m *manifest.Manifest, s manifest.Section, suffix string) {
	d := m.Section(s)
	for _, name := range d.Names() {
		rng, _ := d.Get(name)
		fmt.Fprintf(b, "- %s: %s%s\n", name, rng, suffix)
	}
}

func devSuffix(dev bool) string {
	if dev {
		return " (dev)"
	}
	return ""
}

// analysisJSON renders conflicts and packages, packages ordered by rank.
func analysisJSON(a *conflict.Analysis) string {
	pkgs := make([]*conflict.PackageInfo, 0, len(a.Packages))
	for _, name := range a.Names() {
		pkgs = append(pkgs, a.Packages[name])
	}
	slices.SortStableFunc(pkgs, func(x, y *conflict.PackageInfo) int { return y.Rank - x.Rank })

	data, err := json.MarshalIndent(struct {
		Conflicts []conflict.Record        `json:"conflicts"`
		Packages  []*conflict.PackageInfo `json:"packages"`
	}{a.Conflicts, pkgs}, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// RenderRetryGuidance turns a rejected round into a corrective user turn.
func RenderRetryGuidance(code errors.Code, details []string) string {
	var b strings.Builder
	switch code {
	case errors.ErrCodeAIResponseFormat:
		b.WriteString("Your previous response did not follow the required JSON format.")
	case errors.ErrCodePackageVersionValidation:
		b.WriteString("Your previous response named versions that cannot be used.")
	case errors.ErrCodeNoNewSuggestion:
		b.WriteString("Your previous response would not change package.json. Propose a different change.")
	default:
		fmt.Fprintf(&b, "Your previous response was rejected (%s).", code)
	}
	if len(details) > 0 {
		b.WriteString("\nProblems:\n")
		for _, d := range details {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	} else {
		b.WriteString("\n")
	}
	switch code {
	case errors.ErrCodePackageVersionValidation:
		b.WriteString("Choose only published versions from availableVersions and keep requested updates unchanged.\n")
	case errors.ErrCodeAIResponseFormat:
		b.WriteString("Reply with one JSON object matching the contract, without prose or code fences.\n")
	}
	b.WriteString("Respond with the corrected JSON object only.")
	return b.String()
}
