package lock

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

func alive(pids ...int) LivenessFunc {
	return func(_ context.Context, pid int) bool {
		for _, p := range pids {
			if p == pid {
				return true
			}
		}
		return false
	}
}

func quiet() Option {
	return WithLogger(log.New(io.Discard))
}

func writeRecord(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func readRecord(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestAcquire_NoRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")

	g, err := Acquire(context.Background(), path, WithPID(4242), quiet())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := readRecord(t, path); got != "4242" {
		t.Errorf("record = %q, want 4242", got)
	}
	if g.PID() != 4242 || g.Path() != path {
		t.Errorf("guard = %d %s", g.PID(), g.Path())
	}

	if err := g.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("record still present after Release()")
	}
}

func TestAcquire_LiveHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")
	writeRecord(t, path, "777\n")

	_, err := Acquire(context.Background(), path, WithLivenessChecker(alive(777)), WithPID(1), quiet())
	if !bterrors.Is(err, bterrors.ErrCodeLockHeld) {
		t.Fatalf("Acquire() error = %v, want LOCK_HELD", err)
	}
	if got := readRecord(t, path); got != "777" {
		t.Errorf("record = %q, want untouched 777", got)
	}
}

func TestAcquire_StaleRecords(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead pid", "999"},
		{"garbage", "not-a-pid"},
		{"empty", ""},
		{"zero", "0"},
		{"negative", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "main.lock")
			writeRecord(t, path, tt.content)

			g, err := Acquire(context.Background(), path, WithLivenessChecker(alive()), WithPID(31), quiet())
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			defer g.Release()
			if got := readRecord(t, path); got != "31" {
				t.Errorf("record = %q, want 31", got)
			}
		})
	}
}

func TestAcquire_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "main.lock")
	_, err := Acquire(context.Background(), path, quiet())
	if !bterrors.Is(err, bterrors.ErrCodeLock) {
		t.Errorf("Acquire() error = %v, want LOCK_ERROR", err)
	}
}

func TestAcquire_SecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")
	first, err := Acquire(context.Background(), path, WithPID(10), quiet())
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer first.Release()

	_, err = Acquire(context.Background(), path, WithLivenessChecker(alive(10)), WithPID(11), quiet())
	if !bterrors.Is(err, bterrors.ErrCodeLockHeld) {
		t.Errorf("second Acquire() error = %v, want LOCK_HELD", err)
	}
}

func TestAcquire_OwnPIDLeftover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")
	writeRecord(t, path, "1\n")

	h, err := Inspect(context.Background(), path, WithLivenessChecker(alive(1)), WithPID(1))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !h.Stale || h.Alive {
		t.Errorf("Inspect(own pid, no guard) = %+v, want stale", h)
	}

	g, err := Acquire(context.Background(), path, WithLivenessChecker(alive(1)), WithPID(1), quiet())
	if err != nil {
		t.Fatalf("Acquire() error = %v, want leftover record reclaimed", err)
	}
	defer g.Release()
	if got := readRecord(t, path); got != "1" {
		t.Errorf("record = %q, want 1", got)
	}
}

func TestAcquire_SameProcessTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")
	first, err := Acquire(context.Background(), path, WithPID(21), quiet())
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	_, err = Acquire(context.Background(), path, WithLivenessChecker(alive(21)), WithPID(21), quiet())
	if !bterrors.Is(err, bterrors.ErrCodeLockHeld) {
		t.Fatalf("second Acquire() error = %v, want LOCK_HELD", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, err := Acquire(context.Background(), path, WithLivenessChecker(alive(21)), WithPID(21), quiet())
	if err != nil {
		t.Fatalf("Acquire() after Release() error = %v", err)
	}
	again.Release()
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")
	g, err := Acquire(context.Background(), path, WithPID(5), quiet())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := g.Release(); err != nil {
			t.Errorf("Release() #%d error = %v", i+1, err)
		}
	}

	var nilGuard *Guard
	if err := nilGuard.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestRelease_ForeignRecordKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.lock")
	g, err := Acquire(context.Background(), path, WithPID(5), quiet())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Another instance replaced the record after reclaiming it.
	writeRecord(t, path, "6\n")

	if err := g.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := readRecord(t, path); got != "6" {
		t.Errorf("record = %q, want foreign record 6 kept", got)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	h, err := Inspect(ctx, filepath.Join(dir, "none.lock"))
	if err != nil || h.Exists {
		t.Errorf("Inspect(missing) = %+v, %v", h, err)
	}

	live := filepath.Join(dir, "live.lock")
	writeRecord(t, live, "12")
	h, err = Inspect(ctx, live, WithLivenessChecker(alive(12)))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !h.Exists || !h.Alive || h.Stale || h.PID != 12 {
		t.Errorf("Inspect(live) = %+v", h)
	}

	dead := filepath.Join(dir, "dead.lock")
	writeRecord(t, dead, "13")
	h, _ = Inspect(ctx, dead, WithLivenessChecker(alive()))
	if !h.Stale || h.Alive {
		t.Errorf("Inspect(dead) = %+v", h)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	live := filepath.Join(dir, "live.lock")
	writeRecord(t, live, "12")
	if _, err := Clear(ctx, live, WithLivenessChecker(alive(12)), quiet()); !bterrors.Is(err, bterrors.ErrCodeLockHeld) {
		t.Errorf("Clear(live) error = %v, want LOCK_HELD", err)
	}
	if _, err := os.Stat(live); err != nil {
		t.Errorf("live record removed: %v", err)
	}

	dead := filepath.Join(dir, "dead.lock")
	writeRecord(t, dead, "13")
	removed, err := Clear(ctx, dead, WithLivenessChecker(alive()), quiet())
	if err != nil || !removed {
		t.Errorf("Clear(dead) = %v, %v; want true, nil", removed, err)
	}

	removed, err = Clear(ctx, filepath.Join(dir, "none.lock"), quiet())
	if err != nil || removed {
		t.Errorf("Clear(missing) = %v, %v; want false, nil", removed, err)
	}
}

func TestProcessLivenessChecker(t *testing.T) {
	c := ProcessLivenessChecker{}
	ctx := context.Background()

	if !c.Alive(ctx, os.Getpid()) {
		t.Error("Alive(self) = false, want true")
	}
	if c.Alive(ctx, 0) || c.Alive(ctx, -1) {
		t.Error("Alive(non-positive) = true, want false")
	}
}
