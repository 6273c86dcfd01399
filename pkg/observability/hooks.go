// Package observability provides hooks for run events.
//
// The scheduler emits an event for every run and node transition. Consumers
// such as benchmark sinks, the status server and the terminal UI register
// hooks instead of being imported by the scheduler, which keeps the core
// free of any particular backend.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetRunHooks(observability.Multi(benchHooks, tracker))
//	    // ... run application
//	}
//
// The scheduler calls hooks to emit events:
//
//	observability.Run().OnNodeLaunch(ctx, runID, node, pid, start)
//	// ... node runs ...
//	observability.Run().OnNodeFinish(ctx, runID, node, start, end, exitCode, err)
//
// Hooks are called synchronously from the scheduler loop. Implementations
// must return quickly and must not call back into the scheduler.
package observability

import (
	"context"
	"sync"
	"time"
)

// RunHooks receives events from a scheduler run.
type RunHooks interface {
	// OnRunStart is called once the graph is validated, before any launch.
	OnRunStart(ctx context.Context, runID string, nodes []string)

	// OnNodeLaunch is called after a node's process started.
	OnNodeLaunch(ctx context.Context, runID, node string, pid int, start time.Time)

	// OnNodeFinish is called when a node completes, fails, times out or is
	// killed. err is nil only for a successful exit.
	OnNodeFinish(ctx context.Context, runID, node string, start, end time.Time, exitCode int, err error)

	// OnResourceWait is called for each failed admission cycle before node.
	OnResourceWait(ctx context.Context, runID, node, failing string)

	// OnRunEnd is called exactly once per started run. err is nil on success.
	OnRunEnd(ctx context.Context, runID string, start, end time.Time, completed int, err error)
}

// NoopRunHooks is a no-op implementation of RunHooks.
type NoopRunHooks struct{}

func (NoopRunHooks) OnRunStart(context.Context, string, []string)                 {}
func (NoopRunHooks) OnNodeLaunch(context.Context, string, string, int, time.Time) {}
func (NoopRunHooks) OnNodeFinish(context.Context, string, string, time.Time, time.Time, int, error) {
}
func (NoopRunHooks) OnResourceWait(context.Context, string, string, string)             {}
func (NoopRunHooks) OnRunEnd(context.Context, string, time.Time, time.Time, int, error) {}

// multiHooks fans every event out to several RunHooks in order.
type multiHooks []RunHooks

// Multi returns RunHooks that forward every event to each of hooks, in
// order. Nil entries are skipped.
func Multi(hooks ...RunHooks) RunHooks {
	var m multiHooks
	for _, h := range hooks {
		if h != nil {
			m = append(m, h)
		}
	}
	switch len(m) {
	case 0:
		return NoopRunHooks{}
	case 1:
		return m[0]
	}
	return m
}

func (m multiHooks) OnRunStart(ctx context.Context, runID string, nodes []string) {
	for _, h := range m {
		h.OnRunStart(ctx, runID, nodes)
	}
}

func (m multiHooks) OnNodeLaunch(ctx context.Context, runID, node string, pid int, start time.Time) {
	for _, h := range m {
		h.OnNodeLaunch(ctx, runID, node, pid, start)
	}
}

func (m multiHooks) OnNodeFinish(ctx context.Context, runID, node string, start, end time.Time, exitCode int, err error) {
	for _, h := range m {
		h.OnNodeFinish(ctx, runID, node, start, end, exitCode, err)
	}
}

func (m multiHooks) OnResourceWait(ctx context.Context, runID, node, failing string) {
	for _, h := range m {
		h.OnResourceWait(ctx, runID, node, failing)
	}
}

func (m multiHooks) OnRunEnd(ctx context.Context, runID string, start, end time.Time, completed int, err error) {
	for _, h := range m {
		h.OnRunEnd(ctx, runID, start, end, completed, err)
	}
}

var (
	runHooks RunHooks = NoopRunHooks{}
	hooksMu  sync.RWMutex
)

// SetRunHooks registers custom run hooks.
// This should be called once at application startup before any run.
func SetRunHooks(h RunHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		runHooks = h
	}
}

// Run returns the registered run hooks.
func Run() RunHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return runHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	runHooks = NoopRunHooks{}
}
