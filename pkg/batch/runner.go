// Package batch runs configured task graphs.
//
// A [Runner] turns a loaded configuration into one scheduler run: it takes
// the single-instance lock, builds the graph, executor and resource gate,
// wires the benchmark sink and any extra hooks, runs the scheduler and
// archives the result. [Runner.Schedule] repeats that on a cron schedule,
// and [Runner.Migrate] runs a configuration's chunked migration under the
// same lock and sinks.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/batchtower/pkg/bench"
	"github.com/matzehuels/batchtower/pkg/config"
	"github.com/matzehuels/batchtower/pkg/executor"
	"github.com/matzehuels/batchtower/pkg/history"
	"github.com/matzehuels/batchtower/pkg/lock"
	"github.com/matzehuels/batchtower/pkg/migrate"
	"github.com/matzehuels/batchtower/pkg/observability"
	"github.com/matzehuels/batchtower/pkg/resource"
	"github.com/matzehuels/batchtower/pkg/scheduler"
)

// Runner executes configurations. The zero value is not usable - use
// [NewRunner]. Optional fields left nil fall back to the production
// implementation.
type Runner struct {
	Logger *log.Logger

	// Hooks receives run events in addition to the benchmark sink.
	Hooks observability.RunHooks

	// Executor overrides the process executor built from the configuration.
	Executor executor.Executor

	// Probe overrides the system resource probe.
	Probe resource.Probe

	// Memory overrides the memory measurement of migrations.
	Memory migrate.Memory

	// Liveness overrides the lock's process liveness check.
	Liveness lock.LivenessChecker

	// Sink overrides the benchmark sink selected by the configuration.
	// The runner does not close an injected sink.
	Sink bench.Sink

	// History archives finished runs. Nil keeps no archive.
	History history.Store
}

// NewRunner returns a runner logging to logger.
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Logger: logger}
}

// Execute performs one run of cfg. It returns the scheduler result, which
// is nil only when the run failed before scheduling started (lock held,
// invalid graph, unavailable sink), and the error that ended the run.
func (r *Runner) Execute(ctx context.Context, cfg *config.Config) (*scheduler.Result, error) {
	g, err := cfg.Graph()
	if err != nil {
		return nil, err
	}

	guard, err := lock.Acquire(ctx, cfg.LockFile, r.lockOptions()...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			r.Logger.Error("failed to release lock", "path", guard.Path(), "err", err)
		}
	}()

	sink, closeSink, err := r.sink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	runID := uuid.NewString()
	hooks := observability.Multi(
		bench.NewHooks(sink, r.Logger),
		r.Hooks,
		observability.Run(),
	)

	opts := []scheduler.Option{
		scheduler.WithRunID(runID),
		scheduler.WithLogger(r.Logger),
		scheduler.WithHooks(hooks),
		scheduler.WithPollInterval(cfg.PollInterval()),
	}
	if d, ok := cfg.Deadline(); ok {
		opts = append(opts, scheduler.WithDeadline(d))
	}
	if !cfg.Resources.Empty() {
		opts = append(opts, scheduler.WithResources(r.gate(cfg, hooks), cfg.Resources))
	}

	r.Logger.Info("starting run", "config", cfg.Path, "run", runID, "nodes", g.Len())
	res, runErr := scheduler.New(g, r.executor(cfg), opts...).Run(ctx)
	r.archive(ctx, cfg, res, runErr)
	return res, runErr
}

func (r *Runner) lockOptions() []lock.Option {
	opts := []lock.Option{lock.WithLogger(r.Logger)}
	if r.Liveness != nil {
		opts = append(opts, lock.WithLivenessChecker(r.Liveness))
	}
	return opts
}

func (r *Runner) sink(ctx context.Context, cfg *config.Config) (bench.Sink, func(), error) {
	if r.Sink != nil {
		return r.Sink, func() {}, nil
	}
	s, err := bench.Open(ctx, cfg.Benchmarks, LogDir(cfg))
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			r.Logger.Warn("failed to close benchmark sink", "err", err)
		}
	}, nil
}

func (r *Runner) executor(cfg *config.Config) executor.Executor {
	if r.Executor != nil {
		return r.Executor
	}
	return r.process(cfg)
}

func (r *Runner) process(cfg *config.Config) *executor.Process {
	p := executor.NewProcess(cfg.ProcessDir, cfg.Interpreter, r.Logger)
	p.WorkDir = filepath.Dir(cfg.Path)
	return p
}

// gate builds the resource gate and reports failing cycles to hooks as
// waits of the node being admitted.
func (r *Runner) gate(cfg *config.Config, hooks observability.RunHooks) *resource.Gate {
	g := resource.NewGate(r.Probe, cfg.ProcessDir, r.Logger)
	g.PollInterval = cfg.ResourcePollInterval()
	g.OnWait = func(ctx context.Context, readings resource.Readings) {
		if runID, node, ok := observability.NodeFromContext(ctx); ok {
			hooks.OnResourceWait(ctx, runID, node, readings.Failing())
		}
	}
	return g
}

func (r *Runner) archive(ctx context.Context, cfg *config.Config, res *scheduler.Result, runErr error) {
	if r.History == nil || res == nil {
		return
	}
	e := history.FromResult(res, runErr)
	e.Config = cfg.Path
	if data, err := os.ReadFile(cfg.Path); err == nil {
		e.ConfigHash = history.Hash(data)
	}
	// The run context may already be canceled; archiving still happens.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.History.Save(saveCtx, e); err != nil {
		r.Logger.Warn("failed to archive run", "run", res.RunID, "err", err)
	}
}

// LogDir returns the directory holding run logs and the default benchmark
// log for cfg.
func LogDir(cfg *config.Config) string {
	if cfg.LogDir != "" {
		return cfg.LogDir
	}
	if cfg.Path != "" {
		return filepath.Dir(cfg.Path)
	}
	return "."
}
