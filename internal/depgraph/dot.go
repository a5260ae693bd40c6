package depgraph

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts the graph to Graphviz DOT text. Edges point from the
// referencing entry to the entry it references.
func (g *Graph) ToDOT() string {
	var buf bytes.Buffer
	buf.WriteString("digraph mixpaths {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white];\n")
	buf.WriteString("\n")

	for _, id := range g.Nodes() {
		e, err := g.NodeData(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "  %q [tooltip=%q];\n", id, e.Src)
	}

	buf.WriteString("\n")
	for _, edge := range g.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q;\n", edge[0], edge[1])
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders DOT text to SVG using the embedded Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, parsed, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	return buf.Bytes(), nil
}
