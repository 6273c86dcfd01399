// Package nodelink renders task graphs as node-link diagrams.
//
// [ToDOT] emits Graphviz DOT source with one box per node and one arrow per
// dependency, pointing from prerequisite to dependent. With
// [Options.States] set, boxes are filled by state so a diagram taken
// mid-run shows what is pending, running, finished or failed.
//
//	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// SVG rendering happens in-process through [github.com/goccy/go-graphviz].
package nodelink
