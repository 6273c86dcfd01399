// Package executor launches task processes and reports on them without
// blocking.
//
// The scheduler only ever sees the [Executor] and [Handle] interfaces, so the
// way a node ID becomes a running process stays pluggable. [Process] is the
// operating-system implementation: it resolves a node ID to a file under a
// task directory and runs it, optionally through an interpreter such as
// python3.
package executor

import (
	"context"
	"time"
)

// Executor starts the task behind a node ID.
//
// Launch must not wait for the task to finish. A failure to start the
// process is returned as a LAUNCH_ERROR.
type Executor interface {
	Launch(ctx context.Context, nodeID string) (Handle, error)
}

// Handle is a launched task.
type Handle interface {
	// Poll reports the exit code once the task has exited, without blocking.
	Poll() (exitCode int, exited bool)
	// Kill forcibly terminates the task and anything it spawned. Killing a
	// task that already exited is a no-op.
	Kill() error
	// Output returns the stdout and stderr captured so far.
	Output() (stdout, stderr []byte)
	// StartedAt returns when the task was launched.
	StartedAt() time.Time
	// PID returns the operating-system process ID, or 0 if there is none.
	PID() int
}

// Func adapts a plain function to [Executor].
type Func func(ctx context.Context, nodeID string) (Handle, error)

// Launch calls f.
func (f Func) Launch(ctx context.Context, nodeID string) (Handle, error) { return f(ctx, nodeID) }

var _ Executor = Func(nil)
