package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// DefaultMaxOutput bounds the bytes kept per stream. Older output is
// discarded first so the tail of a traceback survives.
const DefaultMaxOutput = 1 << 20

// DefaultWaitDelay is how long output is still drained after a task exits.
// Children that inherited its stdout or stderr are not waited for beyond it.
const DefaultWaitDelay = 250 * time.Millisecond

// Process runs each node as an operating-system process.
type Process struct {
	// Dir is the task directory node IDs are resolved against.
	Dir string
	// Interpreter is prepended to the resolved path, e.g. ["python3"].
	// Empty means the resolved file is executed directly.
	Interpreter []string
	// WorkDir is the working directory of launched tasks. Empty inherits
	// the scheduler's working directory.
	WorkDir string
	// Env is the task environment. Nil inherits the scheduler's environment.
	Env []string
	// Resolve maps a node ID to an executable path. Nil uses [Process.Path].
	Resolve func(nodeID string) (string, error)
	// MaxOutput bounds captured bytes per stream; zero means DefaultMaxOutput.
	MaxOutput int
	// WaitDelay bounds output draining after exit; zero means DefaultWaitDelay.
	WaitDelay time.Duration
	Logger    *log.Logger
}

// NewProcess returns a Process resolving node IDs under dir.
func NewProcess(dir string, interpreter []string, logger *log.Logger) *Process {
	if logger == nil {
		logger = log.Default()
	}
	return &Process{Dir: dir, Interpreter: interpreter, Logger: logger}
}

// Path resolves nodeID to a file inside the task directory.
func (p *Process) Path(nodeID string) (string, error) {
	if err := bterrors.ValidateNodeID(nodeID); err != nil {
		return "", err
	}
	return filepath.Join(p.Dir, filepath.FromSlash(nodeID)), nil
}

// Command returns the argv Launch would run for nodeID.
func (p *Process) Command(nodeID string) ([]string, error) {
	resolve := p.Resolve
	if resolve == nil {
		resolve = p.Path
	}
	path, err := resolve(nodeID)
	if err != nil {
		return nil, err
	}
	argv := make([]string, 0, len(p.Interpreter)+1)
	argv = append(argv, p.Interpreter...)
	return append(argv, path), nil
}

// Check reports whether the task file for nodeID exists and, when no
// interpreter is configured, whether it is executable. It returns a
// LAUNCH_ERROR describing the problem.
func (p *Process) Check(nodeID string) error {
	argv, err := p.Command(nodeID)
	if err != nil {
		return bterrors.Wrap(bterrors.ErrCodeLaunch, err, "resolve %s", nodeID).WithNode(nodeID)
	}
	path := argv[len(argv)-1]
	info, err := os.Stat(path)
	if err != nil {
		return bterrors.Wrap(bterrors.ErrCodeLaunch, err, "task file %s", path).WithNode(nodeID)
	}
	if info.IsDir() {
		return bterrors.New(bterrors.ErrCodeLaunch, "task file %s is a directory", path).WithNode(nodeID)
	}
	if len(p.Interpreter) == 0 && info.Mode().Perm()&0o111 == 0 {
		return bterrors.New(bterrors.ErrCodeLaunch, "task file %s is not executable", path).WithNode(nodeID)
	}
	return nil
}

// Launch starts the task for nodeID and returns immediately.
func (p *Process) Launch(ctx context.Context, nodeID string) (Handle, error) {
	return p.LaunchArgs(ctx, nodeID)
}

// LaunchArgs is Launch with extra arguments appended to the task's argv.
func (p *Process) LaunchArgs(_ context.Context, nodeID string, args ...string) (Handle, error) {
	argv, err := p.Command(nodeID)
	if err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeLaunch, err, "resolve %s", nodeID).WithNode(nodeID)
	}
	argv = append(argv, args...)

	limit := p.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = p.WorkDir
	cmd.Env = p.Env
	cmd.WaitDelay = p.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	setProcessGroup(cmd)

	h := &proc{
		cmd:    cmd,
		stdout: &tailBuffer{limit: limit},
		stderr: &tailBuffer{limit: limit},
		done:   make(chan struct{}),
	}
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	if err := cmd.Start(); err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeLaunch, err, "start %s", nodeID).WithNode(nodeID)
	}
	h.started = time.Now()

	go h.wait()

	if p.Logger != nil {
		p.Logger.Debug("process started", "node", nodeID, "pid", cmd.Process.Pid, "argv", argv)
	}
	return h, nil
}

type proc struct {
	cmd     *exec.Cmd
	started time.Time
	stdout  *tailBuffer
	stderr  *tailBuffer

	done     chan struct{}
	exitCode int
}

// wait records the exit status. Wait returns exec.ErrWaitDelay when a
// surviving child kept the output pipes open; the task itself has exited
// then and its own status is what counts.
func (h *proc) wait() {
	err := h.cmd.Wait()
	code := -1
	if ps := h.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
	}
	if err != nil && code == 0 && !errors.Is(err, exec.ErrWaitDelay) {
		code = -1
	}
	h.exitCode = code
	close(h.done)
}

func (h *proc) Poll() (int, bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

func (h *proc) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	err := killProcessGroup(h.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait blocks until the process exits or ctx is done. It exists for
// callers outside the scheduler loop, such as tests.
func (h *proc) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *proc) Output() ([]byte, []byte) { return h.stdout.Bytes(), h.stderr.Bytes() }
func (h *proc) StartedAt() time.Time     { return h.started }
func (h *proc) PID() int                 { return h.cmd.Process.Pid }

// tailBuffer is a goroutine-safe writer keeping the last limit bytes.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

var (
	_ Executor = (*Process)(nil)
	_ Handle   = (*proc)(nil)
)
