package cli

import (
	"context"
	"io"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/batchtower/pkg/batch"
	"github.com/matzehuels/batchtower/pkg/config"
	"github.com/matzehuels/batchtower/pkg/history"
	"github.com/matzehuels/batchtower/pkg/observability"
	"github.com/matzehuels/batchtower/pkg/scheduler"
	"github.com/matzehuels/batchtower/pkg/status"
)

type runOptions struct {
	configPath string
	tui        bool
	statusAddr string
	schedule   string
	noHistory  bool
}

func (c *CLI) runCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the task graph",
		Long: `Run executes every node of the configured graph once, honoring dependencies,
resource thresholds, per-node timeouts and the run deadline. The first failure
aborts the run and kills every node still running.

With --schedule (or "schedule" in the configuration) the run repeats on a cron
schedule until interrupted; a tick that finds the previous run still going is
skipped.`,
		Example: `  batchtower run
  batchtower run -c jobs/nightly.yaml --tui
  batchtower run --status-addr :8080 --schedule "@every 15m"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runRun(cmd.Context(), opts)
		},
	}

	configFlag(cmd, &opts.configPath)
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show a live view of the run instead of log output")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "serve /healthz and /status on this address (e.g. :8080)")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "cron expression for recurring runs (overrides the configuration)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not archive the run result")

	return cmd
}

func (c *CLI) runRun(ctx context.Context, opts runOptions) error {
	cfg, err := c.loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	schedule := opts.schedule
	if schedule == "" {
		schedule = cfg.Schedule
	}
	if schedule != "" {
		if _, err := batch.ParseSchedule(schedule); err != nil {
			return err
		}
	}

	var console io.Writer = c.stderr
	if opts.tui {
		console = nil
	}
	logDir := batch.LogDir(cfg)
	logs, err := openRunLogs(logDir, console, c.level)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Logger
	ctx = withLogger(ctx, logger)

	tracker := status.NewTracker(0)
	runner := batch.NewRunner(logger)
	runner.Hooks = observability.Multi(tracker, logs.Hooks())
	if !opts.noHistory {
		store, err := history.NewFileStore(filepath.Join(logDir, history.DefaultDir), historyRetention)
		if err != nil {
			logger.Warn("run history disabled", "err", err)
		} else {
			runner.History = store
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.statusAddr != "" {
		srv := status.NewServer(opts.statusAddr, tracker, logger)
		g.Go(func() error { return srv.Serve(gctx) })
	}

	var ui *tea.Program
	if opts.tui {
		ui = tea.NewProgram(NewRunModel(tracker, cancel), tea.WithoutSignalHandler())
		g.Go(func() error {
			_, err := ui.Run()
			return err
		})
	}

	var res *scheduler.Result
	g.Go(func() error {
		defer cancel()
		var err error
		if schedule != "" {
			err = runner.Schedule(gctx, schedule, func() (*config.Config, error) {
				return config.Load(cfg.Path)
			})
		} else {
			res, err = runner.Execute(gctx, cfg)
		}
		if ui != nil {
			ui.Send(runDoneMsg{err: err})
		}
		return err
	})

	err = g.Wait()
	if res != nil && !opts.tui {
		e := history.FromResult(res, err)
		e.Config = cfg.Path
		printRun(e)
	}
	if err == nil && res != nil {
		printSuccess("all %d nodes completed", res.Total)
	}
	return err
}
