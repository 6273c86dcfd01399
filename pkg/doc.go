// Package pkg provides the core libraries of batchtower, a single-host
// scheduler for dependency graphs of batch scripts.
//
// # Overview
//
// A run takes a configuration naming a set of scripts and the scripts each
// one depends on. Scripts start as soon as their prerequisites succeeded,
// subject to the host having enough CPU, memory and disk headroom. The first
// failure, timeout or missed deadline aborts the run and kills whatever is
// still running.
//
// # Architecture
//
// The data flow of one run:
//
//	config file (.json, .toml, .yaml, .hcl)
//	         ↓
//	    [config] (load, default, validate)
//	         ↓
//	    [dag] (graph + per-node lifecycle)
//	         ↓
//	    [batch] (lock, sinks, hooks, archive)
//	         ↓
//	    [scheduler] ⇄ [resource] gate ⇄ [executor] processes
//	         ↓
//	    [bench] timings, [status] live view, [history] archive
//
// # Main Packages
//
// [errors] - Coded errors shared by every package. Each code maps to a
// process exit status.
//
// [dag] - Task graph built from node declarations. Tracks the lifecycle of
// every node and reports cycles.
//
// [lock] - Single-instance lock file with stale-holder reclamation.
//
// [resource] - Host metrics and the admission gate that holds back launches
// until thresholds are met.
//
// [executor] - Launches task scripts as process groups and captures their
// output.
//
// [scheduler] - The control loop: launch ready nodes, poll running ones,
// abort on the first fatal condition.
//
// [observability] - Run hooks for tracing and metrics integration.
//
// [config] - Run configuration in four formats.
//
// [batch] - Wires the packages above into one run, and runs configurations
// on a cron schedule.
//
// [bench] - Per-node timing records written to a file, Redis or MongoDB.
//
// [status] - In-memory run tracker and its HTTP status endpoint.
//
// [history] - Archive of finished runs.
//
// [migrate] - Chunked migrations: a task lists record IDs, another processes
// them a chunk at a time, with chunk sizes derived from measured memory.
//
// [render] and [render/nodelink] - Graphviz drawings of the task graph.
//
// # Quick Start
//
//	cfg, _ := config.Load("config.json")
//	res, err := batch.NewRunner(log.Default()).Execute(ctx, cfg)
//	if err != nil {
//	    os.Exit(errors.ExitCode(err))
//	}
//	fmt.Println(res.State, res.Duration())
//
// [errors]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/errors
// [dag]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/dag
// [lock]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/lock
// [resource]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/resource
// [executor]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/executor
// [scheduler]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/scheduler
// [observability]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/observability
// [config]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/config
// [batch]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/batch
// [bench]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/bench
// [status]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/status
// [history]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/history
// [migrate]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/migrate
// [render]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/render
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/batchtower/pkg/render/nodelink
package pkg
