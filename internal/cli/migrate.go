package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/batchtower/pkg/batch"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/migrate"
)

type migrateOptions struct {
	configPath string
	chunkSize  int
	dynamic    bool
	maxMemory  float64
}

func (c *CLI) migrateCommand() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Process record IDs in chunks",
		Long: `Migrate runs the "migration" section of the configuration. The get_ids task
prints a JSON array of record IDs; process_chunk then runs once per chunk with
the chunk as a JSON array in its only argument. The first failing chunk stops
the migration.

The resident memory of every chunk is measured. With dynamic sizing each chunk
is sized from the previous one so that it is expected to stay within
max_memory_usage percent of host memory.`,
		Example: `  batchtower migrate
  batchtower migrate -c migrations/config.json --chunk-size 100
  batchtower migrate --dynamic --max-memory 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runMigrate(cmd.Context(), opts)
		},
	}

	configFlag(cmd, &opts.configPath)
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "IDs per chunk (overrides the configuration)")
	cmd.Flags().BoolVar(&opts.dynamic, "dynamic", false, "size chunks from measured memory")
	cmd.Flags().Float64Var(&opts.maxMemory, "max-memory", 0, "percent of host memory a dynamic chunk may use")

	return cmd
}

func (c *CLI) runMigrate(ctx context.Context, opts migrateOptions) error {
	cfg, err := c.loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	mc := cfg.Migration
	if mc == nil {
		return bterrors.New(bterrors.ErrCodeConfig, "%s: no migration section", cfg.Path)
	}
	if opts.chunkSize < 0 {
		return bterrors.New(bterrors.ErrCodeInvalidInput, "--chunk-size cannot be negative")
	}
	if opts.chunkSize > 0 {
		mc.ChunkSize = opts.chunkSize
	}
	if opts.dynamic {
		mc.DynamicChunkSize = true
	}
	if opts.maxMemory != 0 {
		if err := bterrors.ValidatePercent("--max-memory", opts.maxMemory); err != nil {
			return err
		}
		mc.MaxMemoryPercent = opts.maxMemory
	}

	logs, err := openRunLogs(batch.LogDir(cfg), c.stderr, c.level)
	if err != nil {
		return err
	}
	defer logs.Close()

	runner := batch.NewRunner(logs.Logger)
	runner.Hooks = logs.Hooks()

	res, err := runner.Migrate(withLogger(ctx, logs.Logger), cfg)
	if res != nil {
		printMigration(res)
	}
	if err != nil {
		return err
	}
	printSuccess("%d of %d ids processed in %d chunks", res.Processed, res.Total, len(res.Chunks))
	return nil
}

func printMigration(res *migrate.Result) {
	fmt.Println()
	printKeyValue("run", res.RunID)
	printKeyValue("ids", fmt.Sprintf("%d processed of %d", res.Processed, res.Total))
	printKeyValue("duration", res.Duration().Round(time.Millisecond).String())
	if len(res.Chunks) == 0 {
		return
	}
	printKeyValue("chunk sizes", joinInts(res.Sizes()))
	if res.HostMemory > 0 {
		peaks := make([]string, len(res.Chunks))
		for i, ch := range res.Chunks {
			peaks[i] = fmt.Sprintf("%.1f", float64(ch.PeakRSS)/(1<<20))
		}
		printKeyValue("peak MB", strings.Join(peaks, ", "))
	}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
