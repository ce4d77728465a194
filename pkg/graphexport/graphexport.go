// Package graphexport renders a lock's dependency graph as Graphviz
// DOT or SVG for inspection and documentation.
package graphexport

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/lockfile"
)

// Options configures graph rendering.
type Options struct {
	// IncludeDev includes dev-category packages in the graph.
	IncludeDev bool
	// Versions appends the pinned version to each node label.
	Versions bool
}

// ToDOT converts a lock's dependency graph to Graphviz DOT. Nodes are
// the locked packages; an edge points from each package to every
// dependency its pinned release declared. Optional packages render
// with dashed outlines, dev packages with grey fill.
func ToDOT(lock *lockfile.Lock, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph padlock {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	included := map[string]bool{}
	for _, pkg := range lock.Packages {
		if pkg.Category == "dev" && !opts.IncludeDev {
			continue
		}
		included[pkg.Name] = true

		label := pkg.Name
		if opts.Versions {
			label += "\n" + pkg.Version
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", pkg.Name, strings.Join(nodeAttrs(pkg, label), ", "))
	}

	buf.WriteString("\n")
	for _, pkg := range lock.Packages {
		if !included[pkg.Name] {
			continue
		}
		for _, dep := range sortedKeys(pkg.Dependencies) {
			if included[dep] {
				fmt.Fprintf(&buf, "  %q -> %q;\n", pkg.Name, dep)
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(pkg lockfile.Package, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case pkg.Optional:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	case pkg.Category == "dev":
		attrs = append(attrs, "fillcolor=lightgrey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render SVG")
	}
	return buf.Bytes(), nil
}

// sortedKeys keeps edge order deterministic so DOT output is stable
// across runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
