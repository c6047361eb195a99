package conflict

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/reasoning"
)

// MaxAssistedInput bounds how much installer output is sent for assisted
// extraction. The tail is kept since npm prints the cause last.
const MaxAssistedInput = 12000

const extractionSystem = `You extract dependency conflicts from npm install output.
Respond with a single JSON object and nothing else, in this exact shape:
{"conflicts":[{"package":"<name>","currentVersion":"<installed version or empty>","requiredBy":[{"dependent":"<name>","dependentVersion":"<version or empty>","range":"<semver range>","kind":"peer|direct|conflict|version-mismatch"}]}]}
Use "__project__" as the dependent when the project itself requires the package.
List every package whose requirements cannot be satisfied together.`

// AssistedExtractor asks the reasoning engine to extract conflicts from
// output the patterns do not recognize.
type AssistedExtractor struct {
	Engine  reasoning.Engine
	Options reasoning.Options
	Logger  *log.Logger
}

// Extract returns the engine's analysis of raw. Output that fails
// [Validate] is rejected with AI_RESPONSE_FORMAT.
func (x *AssistedExtractor) Extract(ctx context.Context, raw string) (*Analysis, error) {
	logger := x.Logger
	if logger == nil {
		logger = log.Default()
	}

	input := raw
	if len(input) > MaxAssistedInput {
		input = input[len(input)-MaxAssistedInput:]
	}
	t := reasoning.NewTranscript(extractionSystem).User("npm output:\n\n" + input)

	text, err := reasoning.Call(ctx, x.Engine, t, x.Options)
	if err != nil {
		return nil, fmt.Errorf("assisted extraction: %w", err)
	}

	var wire struct {
		Conflicts []Record `json:"conflicts"`
	}
	if err := reasoning.DecodeJSON(text, &wire); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAIResponseFormat, err, "assisted extraction returned malformed JSON")
	}

	a := newAnalysis(raw, SourceAssisted)
	a.Conflicts = wire.Conflicts
	if err := Validate(a); err != nil {
		return nil, err
	}

	// Rebuild through add so requirements are deduplicated and graded.
	recs := a.Conflicts
	a.Conflicts = nil
	for _, rec := range recs {
		for _, req := range rec.RequiredBy {
			req.Severity = ""
			req.Satisfied = false
			if req.Dependent == "" || strings.EqualFold(req.Dependent, "the root project") {
				req.Dependent = RootDependent
			}
			a.add(rec.Package, rec.CurrentVersion, req)
		}
	}
	a.ensureMentioned()
	a.evaluate()

	logger.Debug("assisted extraction", "conflicts", len(a.Conflicts))
	return a, nil
}

// Validate checks an analysis against the conflict schema: at least one
// conflict, non-empty package names, at least one requirement per record
// and known requirement kinds. All problems are reported together.
func Validate(a *Analysis) error {
	var details []string
	if a == nil || len(a.Conflicts) == 0 {
		details = append(details, "conflicts: must list at least one conflict")
	} else {
		for i, rec := range a.Conflicts {
			if strings.TrimSpace(rec.Package) == "" {
				details = append(details, fmt.Sprintf("conflicts[%d].package: empty", i))
			}
			if len(rec.RequiredBy) == 0 {
				details = append(details, fmt.Sprintf("conflicts[%d].requiredBy: empty", i))
			}
			for j, req := range rec.RequiredBy {
				if !req.Kind.Valid() {
					details = append(details, fmt.Sprintf("conflicts[%d].requiredBy[%d].kind: unknown %q", i, j, req.Kind))
				}
			}
		}
	}
	if len(details) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeAIResponseFormat, "analysis failed schema validation").WithDetails(details...)
}
