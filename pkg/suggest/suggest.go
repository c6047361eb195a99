// Package suggest asks the reasoning engine for manifest edits that resolve
// a conflict analysis, and refuses any answer it cannot verify.
//
// One [Generator.Suggest] call runs up to [MaxRounds] rounds. Each round
// sends the transcript, then checks the response in order: structure,
// rectification of claimed ranks and versions, registry existence, and
// whether it changes the manifest at all. A failed check appends corrective
// guidance to the transcript and the next round starts. A response declaring
// that no suitable version exists ends the whole resolution.
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackfix/pkg/conflict"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/manifest"
	"github.com/matzehuels/stackfix/pkg/ranking"
	"github.com/matzehuels/stackfix/pkg/reasoning"
)

// MaxRounds bounds the corrective retries within one suggestion call.
const MaxRounds = 5

// Suggestion is one proposed manifest edit.
type Suggestion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	IsDev   bool   `json:"isDev"`
	Reason  string `json:"reason"`
}

// RankRef pairs a package with its rank.
type RankRef struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// ReasoningEntry justifies one upgrade: Package moves from FromVersion to
// ToVersion because of Reason.
type ReasoningEntry struct {
	Package     RankRef `json:"package"`
	FromVersion string  `json:"fromVersion"`
	ToVersion   string  `json:"toVersion"`
	Reason      RankRef `json:"reason"`
}

// Target is a user-requested update the engine must not alter.
type Target struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	IsDev   bool   `json:"isDev"`
}

// Input is everything one suggestion call needs.
type Input struct {
	Analysis    *conflict.Analysis
	History     []ReasoningEntry
	Attempt     int
	MaxAttempts int
	Targets     []Target
	Manifest    *manifest.Manifest
	// Transcript carries the conversation across attempts. A zero value
	// starts a new one with [SystemPrompt].
	Transcript reasoning.Transcript
}

// Output is an accepted suggestion round.
type Output struct {
	Suggestions []Suggestion
	Reasoning   []ReasoningEntry
	Transcript  reasoning.Transcript
	// Manifest is a clone of the input manifest with the suggestions applied.
	Manifest *manifest.Manifest
	Rounds   int
}

// VersionChecker verifies that a package version is published.
type VersionChecker interface {
	VersionExists(ctx context.Context, name, version string) (bool, error)
}

// Ranker scores packages absent from the analysis.
type Ranker interface {
	Rank(ctx context.Context, name string) (ranking.Info, error)
}

// Generator produces validated suggestions.
type Generator struct {
	Engine   reasoning.Engine
	Options  reasoning.Options
	Registry VersionChecker
	// Ranker is optional; without it packages outside the analysis rank -1.
	Ranker Ranker
	// Installed returns the current lockfile index, used to spot orphaned
	// suggestions. Optional.
	Installed func() *lockfile.Index
	// MaxRounds overrides the package default when positive.
	MaxRounds int
	Logger    *log.Logger
}

func (g *Generator) logger() *log.Logger {
	if g.Logger == nil {
		return log.Default()
	}
	return g.Logger
}

func (g *Generator) rounds() int {
	if g.MaxRounds > 0 {
		return g.MaxRounds
	}
	return MaxRounds
}

// Suggest runs the suggestion protocol. Errors are NO_SUITABLE_VERSION
// (fatal), SUGGESTION_EXHAUSTED wrapping the last protocol error, or context
// cancellation.
func (g *Generator) Suggest(ctx context.Context, in Input) (*Output, error) {
	if in.Manifest == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "suggest: manifest is required")
	}

	t := in.Transcript
	if t.System() == "" && t.Len() == 0 {
		t = reasoning.NewTranscript(SystemPrompt)
	}
	t = t.User(BuildPrompt(in))

	limit := g.rounds()
	var lastErr error
	for round := 1; round <= limit; round++ {
		text, err := reasoning.Call(ctx, g.Engine, t, g.Options)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger().Warn("reasoning engine call failed", "round", round, "error", err)
			lastErr = err
			continue
		}
		t = t.Assistant(text)

		out, err := g.evaluate(ctx, in, text)
		if err == nil {
			out.Transcript = t
			out.Rounds = round
			g.logger().Debug("suggestion accepted", "round", round, "suggestions", len(out.Suggestions))
			return out, nil
		}
		if errors.Is(err, errors.ErrCodeNoSuitableVersion) || ctx.Err() != nil {
			return nil, err
		}
		if !errors.IsSuggestionProtocol(err) {
			return nil, err
		}

		lastErr = err
		g.logger().Info("suggestion rejected", "round", round, "code", errors.GetCode(err), "details", len(errors.GetDetails(err)))
		t = t.User(RenderRetryGuidance(errors.GetCode(err), errors.GetDetails(err)))
	}
	return nil, errors.Wrap(errors.ErrCodeSuggestionExhausted, lastErr, "no acceptable suggestion after %d rounds", limit)
}

// wireSuggestion keeps isDev optional so a missing flag is detectable.
type wireSuggestion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	IsDev   *bool  `json:"isDev"`
	Reason  string `json:"reason"`
}

// response is the wire shape of an engine answer. The reasoning block is
// optional; without it there are no rank claims to rectify.
type response struct {
	Suggestions []wireSuggestion `json:"suggestions"`
	Reasoning   *struct {
		UpdateMade []ReasoningEntry `json:"updateMade"`
	} `json:"reasoning"`
	NoSuitableVersion *struct {
		Package string `json:"package"`
		Reason  string `json:"reason"`
	} `json:"noSuitableVersion"`
}

func (g *Generator) evaluate(ctx context.Context, in Input, text string) (*Output, error) {
	var resp response
	if err := reasoning.DecodeJSON(text, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAIResponseFormat, err, "response is not a JSON object").
			WithDetails(err.Error())
	}
	if nsv := resp.NoSuitableVersion; nsv != nil && nsv.Package != "" {
		return nil, errors.New(errors.ErrCodeNoSuitableVersion, "no suitable version of %s: %s", nsv.Package, nsv.Reason)
	}
	if err := checkStructure(resp); err != nil {
		return nil, err
	}

	sugg := make([]Suggestion, len(resp.Suggestions))
	for i, w := range resp.Suggestions {
		sugg[i] = Suggestion{Name: w.Name, Version: w.Version, IsDev: *w.IsDev, Reason: w.Reason}
	}
	var claimed []ReasoningEntry
	if resp.Reasoning != nil {
		claimed = resp.Reasoning.UpdateMade
	}
	sugg, entries := g.Rectify(ctx, in, sugg, claimed)

	if err := g.checkRegistry(ctx, in, sugg); err != nil {
		return nil, err
	}

	next := in.Manifest.Clone()
	for _, s := range sugg {
		next.UpdateDependency(s.Name, s.Version, s.IsDev)
	}
	if next.Equal(in.Manifest) {
		details := make([]string, 0, len(sugg))
		for _, s := range sugg {
			details = append(details, fmt.Sprintf("%s@%s is already declared", s.Name, s.Version))
		}
		return nil, errors.New(errors.ErrCodeNoNewSuggestion, "suggestions do not change the manifest").WithDetails(details...)
	}

	return &Output{Suggestions: sugg, Reasoning: entries, Manifest: next}, nil
}

// checkStructure enforces the response contract.
func checkStructure(resp response) error {
	var details []string
	if len(resp.Suggestions) == 0 {
		details = append(details, `"suggestions" must contain at least one entry`)
	}
	seen := make(map[string]bool)
	for i, s := range resp.Suggestions {
		switch {
		case strings.TrimSpace(s.Name) == "":
			details = append(details, fmt.Sprintf("suggestions[%d].name is empty", i))
		case errors.ValidateNpmPackageName(s.Name) != nil:
			details = append(details, fmt.Sprintf("suggestions[%d].name %q is not a valid package name", i, s.Name))
		case seen[s.Name]:
			details = append(details, fmt.Sprintf("suggestions[%d] repeats %s", i, s.Name))
		}
		seen[s.Name] = true
		if err := errors.ValidateExactVersion(s.Version); err != nil {
			details = append(details, fmt.Sprintf("suggestions[%d].version %q must be an exact version", i, s.Version))
		}
		if s.IsDev == nil {
			details = append(details, fmt.Sprintf("suggestions[%d].isDev is missing", i))
		}
	}
	if resp.Reasoning != nil {
		for i, e := range resp.Reasoning.UpdateMade {
			if strings.TrimSpace(e.Package.Name) == "" {
				details = append(details, fmt.Sprintf("reasoning.updateMade[%d].package.name is empty", i))
			}
		}
	}
	if len(details) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeAIResponseFormat, "response violates the contract").WithDetails(details...)
}

// checkRegistry verifies every suggested version is published and that no
// suggestion overrides a requested target. All offenders are reported.
func (g *Generator) checkRegistry(ctx context.Context, in Input, sugg []Suggestion) error {
	var details []string
	for _, s := range sugg {
		for _, t := range in.Targets {
			if t.Name == s.Name && t.Version != s.Version {
				details = append(details, fmt.Sprintf("%s@%s overrides the requested %s@%s", s.Name, s.Version, t.Name, t.Version))
			}
		}
		if g.Registry == nil {
			continue
		}
		ok, err := g.Registry.VersionExists(ctx, s.Name, s.Version)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			details = append(details, fmt.Sprintf("%s@%s could not be verified: %v", s.Name, s.Version, err))
		case !ok:
			details = append(details, fmt.Sprintf("%s@%s does not exist in the registry", s.Name, s.Version))
		}
	}
	if len(details) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodePackageVersionValidation, "%d suggested version(s) rejected", len(details)).WithDetails(details...)
}
