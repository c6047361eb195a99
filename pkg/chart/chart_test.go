package chart

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/suggest"
)

func testRecord() *history.Record {
	return &history.Record{
		ID:      "run-1",
		Targets: []history.Update{{Name: "react", Version: "18.2.0", FromVersion: "^17.0.2"}},
		Reasoning: []suggest.ReasoningEntry{
			{
				Package:     suggest.RankRef{Name: "react-redux", Rank: 420},
				FromVersion: "^7.2.0",
				ToVersion:   "8.1.3",
				Reason:      suggest.RankRef{Name: "react", Rank: 1150},
			},
			{
				Package:     suggest.RankRef{Name: "redux", Rank: 600},
				FromVersion: "^4.0.0",
				ToVersion:   "4.2.1",
				Reason:      suggest.RankRef{Name: "react-redux", Rank: 420},
			},
		},
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(testRecord(), Options{})
	for _, want := range []string{
		"digraph G {",
		`"react" -> "react-redux" [label="8.1.3"]`,
		`"react-redux" -> "redux" [label="4.2.1"]`,
		`label="react\nrank 1150\n^17.0.2 → 18.2.0", fillcolor=lightblue`,
		`label="redux\nrank 600\n^4.0.0 → 4.2.1"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

func TestToDOTHideRanks(t *testing.T) {
	dot := ToDOT(testRecord(), Options{HideRanks: true})
	if strings.Contains(dot, "rank ") {
		t.Errorf("ranks shown:\n%s", dot)
	}
}

func TestToDOTEmpty(t *testing.T) {
	dot := ToDOT(&history.Record{}, Options{})
	if strings.Contains(dot, "->") {
		t.Errorf("unexpected edges:\n%s", dot)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.Contains(out, `viewBox="0 0 100.00 50.00" width="100" height="50"`) {
		t.Errorf("normalized = %s", out)
	}
	if got := normalizeViewBox([]byte("<svg></svg>")); string(got) != "<svg></svg>" {
		t.Errorf("svg without viewBox changed: %s", got)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(testRecord(), Options{}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(svg), "<svg") || !strings.Contains(string(svg), "react-redux") {
		t.Error("rendered SVG is missing content")
	}
}

func ExampleToDOT() {
	rec := &history.Record{Reasoning: []suggest.ReasoningEntry{{
		Package:     suggest.RankRef{Name: "b", Rank: 1},
		FromVersion: "^1.0.0",
		ToVersion:   "2.0.0",
		Reason:      suggest.RankRef{Name: "a", Rank: 2},
	}}}
	for _, line := range strings.Split(ToDOT(rec, Options{}), "\n") {
		if strings.Contains(line, "->") {
			fmt.Println(strings.TrimSpace(line))
		}
	}
	// Output:
	// "a" -> "b" [label="2.0.0"];
}
