// Package lock provides a crash-tolerant single-instance guard backed by a
// PID file.
//
// A lock record is a small file containing the decimal PID of the process
// that holds it. [Acquire] refuses to start while a live process holds the
// record, and reclaims records left behind by processes that died without
// cleaning up. The returned [Guard] owns the record; callers defer
// [Guard.Release] on every exit path.
//
//	guard, err := lock.Acquire(ctx, "main.lock", lock.WithLogger(logger))
//	if err != nil {
//	    return err // LOCK_HELD or LOCK_ERROR
//	}
//	defer guard.Release()
package lock

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// Holder describes the current content of a lock record.
type Holder struct {
	Path   string // Lock file path
	Exists bool   // Whether a record is present
	PID    int    // Parsed PID, 0 when the record is malformed
	Raw    string // Trimmed file content
	Alive  bool   // Whether the recorded process is alive
	Stale  bool   // Whether Acquire would reclaim this record
}

type options struct {
	checker LivenessChecker
	logger  *log.Logger
	pid     int
}

// Option configures [Acquire], [Inspect] and [Clear].
type Option func(*options)

// WithLivenessChecker replaces the default [ProcessLivenessChecker].
func WithLivenessChecker(c LivenessChecker) Option {
	return func(o *options) { o.checker = c }
}

// WithLogger sets the logger used for stale-record warnings.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPID overrides the PID written into the record. Intended for tests.
func WithPID(pid int) Option {
	return func(o *options) { o.pid = pid }
}

func buildOptions(opts []Option) options {
	o := options{
		checker: ProcessLivenessChecker{},
		logger:  log.Default(),
		pid:     os.Getpid(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// held tracks the lock paths guarded inside this process.
var held = struct {
	sync.Mutex
	paths map[string]bool
}{paths: make(map[string]bool)}

func heldKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func setHeld(path string, on bool) {
	held.Lock()
	defer held.Unlock()
	if on {
		held.paths[heldKey(path)] = true
	} else {
		delete(held.paths, heldKey(path))
	}
}

func isHeld(path string) bool {
	held.Lock()
	defer held.Unlock()
	return held.paths[heldKey(path)]
}

// Guard represents ownership of a lock record.
type Guard struct {
	path string
	pid  int
	once sync.Once
	err  error
}

// Path returns the lock file path.
func (g *Guard) Path() string { return g.path }

// PID returns the PID written into the record.
func (g *Guard) PID() int { return g.pid }

// Acquire takes the lock at path.
//
// An existing record naming a live process yields LOCK_HELD and is left
// untouched. A record whose content is not a positive integer, or whose
// process is gone, is stale: it is deleted with a warning and acquisition
// proceeds. The new record is created exclusively, so when two instances
// race past the same stale record only one of them wins; the other gets
// LOCK_HELD. Any other I/O failure yields LOCK_ERROR.
func Acquire(ctx context.Context, path string, opts ...Option) (*Guard, error) {
	o := buildOptions(opts)

	h, err := inspect(ctx, path, o)
	if err != nil {
		return nil, err
	}
	if h.Exists {
		if !h.Stale {
			return nil, bterrors.New(bterrors.ErrCodeLockHeld,
				"another instance is running (pid %d, lock %s)", h.PID, path)
		}
		o.logger.Warn("removing stale lock", "path", path, "content", h.Raw)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, bterrors.Wrap(bterrors.ErrCodeLock, err, "remove stale lock %s", path)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, bterrors.Wrap(bterrors.ErrCodeLockHeld, err,
				"lock %s was taken by another instance", path)
		}
		return nil, bterrors.Wrap(bterrors.ErrCodeLock, err, "create lock %s", path)
	}
	_, werr := f.WriteString(strconv.Itoa(o.pid) + "\n")
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, bterrors.Wrap(bterrors.ErrCodeLock, werr, "write lock %s", path)
	}

	setHeld(path, true)
	o.logger.Debug("lock acquired", "path", path, "pid", o.pid)
	return &Guard{path: path, pid: o.pid}, nil
}

// Release deletes the lock record. It is safe to call more than once and
// from deferred cleanup on every exit path; only the first call acts.
//
// The record is removed only if it still names this guard's PID, so a
// record that was replaced by another instance is never deleted.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		defer setHeld(g.path, false)
		data, err := os.ReadFile(g.path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				g.err = bterrors.Wrap(bterrors.ErrCodeLock, err, "read lock %s", g.path)
			}
			return
		}
		if pid, ok := parsePID(string(data)); !ok || pid != g.pid {
			return
		}
		if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			g.err = bterrors.Wrap(bterrors.ErrCodeLock, err, "remove lock %s", g.path)
		}
	})
	return g.err
}

// Inspect reports who holds the lock at path without modifying it.
func Inspect(ctx context.Context, path string, opts ...Option) (Holder, error) {
	return inspect(ctx, path, buildOptions(opts))
}

// Clear removes the lock record at path if it is stale. It returns
// LOCK_HELD when the record names a live process, and reports whether a
// record was removed.
func Clear(ctx context.Context, path string, opts ...Option) (bool, error) {
	o := buildOptions(opts)
	h, err := inspect(ctx, path, o)
	if err != nil || !h.Exists {
		return false, err
	}
	if !h.Stale {
		return false, bterrors.New(bterrors.ErrCodeLockHeld, "lock %s is held by live pid %d", path, h.PID)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, bterrors.Wrap(bterrors.ErrCodeLock, err, "remove lock %s", path)
	}
	o.logger.Info("stale lock cleared", "path", path, "content", h.Raw)
	return true, nil
}

func inspect(ctx context.Context, path string, o options) (Holder, error) {
	h := Holder{Path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return h, bterrors.Wrap(bterrors.ErrCodeLock, err, "read lock %s", path)
	}

	h.Exists = true
	h.Raw = strings.TrimSpace(string(data))
	pid, ok := parsePID(h.Raw)
	if !ok {
		h.Stale = true
		return h, nil
	}
	h.PID = pid
	if pid == o.pid {
		// A record naming this process that no guard here created is left
		// over from an earlier process that was given the same PID, as
		// happens to PID 1 in containers.
		h.Alive = isHeld(path)
		h.Stale = !h.Alive
		return h, nil
	}
	h.Alive = o.checker.Alive(ctx, pid)
	h.Stale = !h.Alive
	return h, nil
}

func parsePID(s string) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
