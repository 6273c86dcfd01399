// Package render draws task graphs.
//
// The [nodelink] subpackage produces Graphviz diagrams of a run's
// dependency graph, optionally colored by node state. [ToPDF] and [ToPNG]
// convert its SVG output with the external rsvg-convert tool (librsvg).
//
//	dot := nodelink.ToDOT(g, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//	png, err := render.ToPNG(svg, 2.0)
//
// [nodelink]: github.com/matzehuels/batchtower/pkg/render/nodelink
package render
