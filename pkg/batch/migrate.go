package batch

import (
	"context"

	"github.com/google/uuid"

	"github.com/matzehuels/batchtower/pkg/bench"
	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/lock"
	"github.com/matzehuels/batchtower/pkg/migrate"
	"github.com/matzehuels/batchtower/pkg/observability"
)

// Migrate performs the chunked migration configured in cfg. It holds the
// same lock as [Runner.Execute], so a migration and a graph run of one
// configuration never overlap. Every chunk is recorded to the benchmark
// sink as a node. The result is nil only when the migration failed before
// the get-IDs task was launched.
func (r *Runner) Migrate(ctx context.Context, cfg *config.Config) (*migrate.Result, error) {
	mc := cfg.Migration
	if mc == nil {
		return nil, bterrors.New(bterrors.ErrCodeConfig, "%s: no migration configured", cfg.Path)
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
	opts := []migrate.Option{
		migrate.WithRunID(runID),
		migrate.WithLogger(r.Logger),
		migrate.WithHooks(observability.Multi(bench.NewHooks(sink, r.Logger), r.Hooks, observability.Run())),
		migrate.WithChunkSize(mc.ChunkSize),
		migrate.WithPollInterval(cfg.PollInterval()),
		migrate.WithTimeout(mc.Timeout()),
	}
	if mc.Tracking() {
		opts = append(opts, migrate.WithMemory(r.memory()))
	}
	if mc.DynamicChunkSize {
		opts = append(opts, migrate.WithDynamicChunkSize(mc.MaxMemoryPercent))
	}

	r.Logger.Info("starting migration", "config", cfg.Path, "run", runID,
		"get_ids", mc.GetIDs, "process_chunk", mc.ProcessChunk, "chunk_size", mc.ChunkSize)
	return migrate.New(r.launcher(cfg), mc.GetIDs, mc.ProcessChunk, opts...).Run(ctx)
}

// launcher returns the injected executor when it can pass arguments, and
// the process executor otherwise.
func (r *Runner) launcher(cfg *config.Config) migrate.Launcher {
	if l, ok := r.Executor.(migrate.Launcher); ok {
		return l
	}
	return r.process(cfg)
}

func (r *Runner) memory() migrate.Memory {
	if r.Memory != nil {
		return r.Memory
	}
	return migrate.SystemMemory{}
}
