package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/batchtower/pkg/batch"
	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/history"
	"github.com/matzehuels/batchtower/pkg/render"
	"github.com/matzehuels/batchtower/pkg/render/nodelink"
)

// Graph output formats.
const (
	formatDOT = "dot"
	formatSVG = "svg"
	formatPNG = "png"
	formatPDF = "pdf"
)

type graphOptions struct {
	configPath string
	format     string
	output     string
	detailed   bool
	last       bool
}

func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOptions

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Draw the task graph",
		Long: `Graph writes the task graph as Graphviz DOT, SVG, PNG or PDF. With --last,
nodes are colored by their outcome in the most recent archived run.

PNG and PDF output require rsvg-convert (librsvg).`,
		Example: `  batchtower graph > graph.dot
  batchtower graph -f svg -o graph.svg --last`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runGraph(cmd.Context(), opts)
		},
	}

	configFlag(cmd, &opts.configPath)
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatDOT, "output format: dot, svg, png, pdf")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include timeouts and dependency counts in labels")
	cmd.Flags().BoolVar(&opts.last, "last", false, "color nodes by the outcome of the last run")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, opts graphOptions) error {
	cfg, err := c.loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	g, err := cfg.Graph()
	if err != nil {
		return err
	}

	dotOpts := nodelink.Options{Detailed: opts.detailed}
	if opts.last {
		states, err := c.lastStates(ctx, cfg)
		if err != nil {
			return err
		}
		dotOpts.States = states
	}
	dot := nodelink.ToDOT(g, dotOpts)

	var out []byte
	switch opts.format {
	case formatDOT:
		out = []byte(dot)
	case formatSVG, formatPNG, formatPDF:
		sp := newSpinner(ctx, c.stderr, "rendering "+opts.format).Start()
		svg, err := nodelink.RenderSVG(ctx, dot)
		if err == nil {
			out, err = convertSVG(ctx, svg, opts.format)
		}
		sp.Stop()
		if err != nil {
			return err
		}
	default:
		return bterrors.New(bterrors.ErrCodeInvalidInput, "unknown graph format %q (want dot, svg, png or pdf)", opts.format)
	}

	if opts.output == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(opts.output, out, 0o644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	printSuccess("wrote %s graph", opts.format)
	printFile(opts.output)
	return nil
}

func convertSVG(ctx context.Context, svg []byte, format string) ([]byte, error) {
	switch format {
	case formatPNG:
		return render.ToPNG(ctx, svg, 2.0)
	case formatPDF:
		return render.ToPDF(ctx, svg)
	}
	return svg, nil
}

// lastStates maps node IDs to their state in the latest archived run.
func (c *CLI) lastStates(ctx context.Context, cfg *config.Config) (map[string]string, error) {
	store, err := history.NewFileStore(filepath.Join(batch.LogDir(cfg), history.DefaultDir), historyRetention)
	if err != nil {
		return nil, err
	}
	e, ok, err := store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		printWarning("no archived run found; drawing without states")
		return nil, nil
	}
	return entryStates(e), nil
}

func entryStates(e history.Entry) map[string]string {
	states := make(map[string]string, len(e.Launched))
	for _, id := range e.Launched {
		states[id] = "running"
	}
	for _, id := range e.Completed {
		states[id] = "completed"
	}
	for _, id := range e.Failed {
		states[id] = "failed"
	}
	return states
}
