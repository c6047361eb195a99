// Package chart draws the reasoning chain of a resolution run as a
// Graphviz diagram.
//
// Each package the run touched becomes a node labelled with its rank and the
// versions it moved through. An edge points from the package that forced an
// upgrade to the package that was upgraded. Requested targets are filled.
//
//	dot := chart.ToDOT(rec, chart.Options{})
//	svg, err := chart.RenderSVG(ctx, dot)
package chart

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/lockfile"
)

// Options configures diagram generation.
type Options struct {
	// HideRanks drops rank numbers from node labels.
	HideRanks bool
}

type node struct {
	name     string
	rank     int
	ranked   bool
	target   bool
	versions []string
}

func (n *node) addVersion(v string) {
	if v != "" && (len(n.versions) == 0 || n.versions[len(n.versions)-1] != v) {
		n.versions = append(n.versions, v)
	}
}

type edge struct{ from, to, label string }

// ToDOT converts a run record to DOT source.
func ToDOT(rec *history.Record, opts Options) string {
	nodes := map[string]*node{}
	get := func(name string) *node {
		n, ok := nodes[name]
		if !ok {
			n = &node{name: name}
			nodes[name] = n
		}
		return n
	}

	for _, t := range rec.Targets {
		n := get(t.Name)
		n.target = true
		n.addVersion(t.FromVersion)
		n.addVersion(t.Version)
	}

	var edges []edge
	for _, e := range rec.Reasoning {
		pkg := get(e.Package.Name)
		pkg.rank, pkg.ranked = e.Package.Rank, true
		pkg.addVersion(e.FromVersion)
		pkg.addVersion(e.ToVersion)

		if e.Reason.Name == "" {
			continue
		}
		cause := get(e.Reason.Name)
		if !cause.ranked {
			cause.rank, cause.ranked = e.Reason.Rank, true
		}
		edges = append(edges, edge{from: e.Reason.Name, to: e.Package.Name, label: e.ToVersion})
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=11];\n")
	buf.WriteString("\n")

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		n := nodes[name]
		fmt.Fprintf(&buf, "  %q [%s];\n", n.name, strings.Join(fmtAttrs(n, opts), ", "))
	}

	buf.WriteString("\n")
	for _, e := range edges {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.from, e.to, e.label)
	}
	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n *node, opts Options) string {
	name := n.name
	if name == lockfile.ProjectRoot {
		name = "project"
	}
	parts := []string{name}
	if n.ranked && !opts.HideRanks {
		parts = append(parts, "rank "+strconv.Itoa(n.rank))
	}
	if len(n.versions) > 0 {
		parts = append(parts, strings.Join(n.versions, " → "))
	}
	return strings.Join(parts, "\n")
}

func fmtAttrs(n *node, opts Options) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, opts))}
	switch {
	case n.target:
		attrs = append(attrs, "fillcolor=lightblue")
	case n.name == lockfile.ProjectRoot:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	return attrs
}

// RenderSVG renders DOT source to SVG in process.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the point-based svg header graphviz emits with
// one sized in user units so the diagram scales in a browser.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
