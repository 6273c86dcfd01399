package lock

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// LivenessChecker reports whether a process is alive.
type LivenessChecker interface {
	Alive(ctx context.Context, pid int) bool
}

// LivenessFunc adapts a plain function to [LivenessChecker].
type LivenessFunc func(ctx context.Context, pid int) bool

// Alive calls f.
func (f LivenessFunc) Alive(ctx context.Context, pid int) bool { return f(ctx, pid) }

// ProcessLivenessChecker asks the operating system whether a PID exists.
//
// When the check itself fails the process is reported alive.
type ProcessLivenessChecker struct{}

// Alive reports whether pid names a running process.
func (ProcessLivenessChecker) Alive(ctx context.Context, pid int) bool {
	if pid <= 0 || int64(pid) > int64(^uint32(0)>>1) {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return true
	}
	return exists
}

var (
	_ LivenessChecker = ProcessLivenessChecker{}
	_ LivenessChecker = LivenessFunc(nil)
)
