package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info", log.InfoLevel, func(l *log.Logger) { l.Info("node started", "node", "a.py") }, true},
		{"debug at info", log.InfoLevel, func(l *log.Logger) { l.Debug("loaded configuration") }, false},
		{"debug at debug", log.DebugLevel, func(l *log.Logger) { l.Debug("loaded configuration") }, true},
		{"warn at info", log.InfoLevel, func(l *log.Logger) { l.Warn("removing stale lock") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("logged = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(10 * time.Millisecond)
	prog.done("configuration checked")

	got := buf.String()
	if !strings.Contains(got, "configuration checked (") {
		t.Errorf("progress output = %q, want message with elapsed time", got)
	}
}

func TestLoggerContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("loggerFromContext() without a logger should return log.Default()")
	}

	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)
	ctx := withLogger(context.Background(), custom)
	if got := loggerFromContext(ctx); got != custom {
		t.Errorf("loggerFromContext() = %p, want %p", got, custom)
	}
}

func TestOpenRunLogs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	logs, err := openRunLogs(dir, &console, log.InfoLevel)
	if err != nil {
		t.Fatalf("openRunLogs() error: %v", err)
	}
	logs.Logger.Info("node started", "node", "a.py")
	logs.Errors.Info("ignored below error level")
	logs.Errors.Error("node failed", "node", "a.py")
	if err := logs.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if !strings.Contains(console.String(), "node started") {
		t.Errorf("console missing log line: %q", console.String())
	}
	mainLog := readFile(t, filepath.Join(dir, mainLogName))
	if !strings.Contains(mainLog, "node started") {
		t.Errorf("main.log = %q, want node started", mainLog)
	}
	errLog := readFile(t, filepath.Join(dir, errorLogName))
	if strings.Contains(errLog, "ignored") {
		t.Errorf("error.log has info output: %q", errLog)
	}
	if !strings.Contains(errLog, "node failed") {
		t.Errorf("error.log = %q, want node failed", errLog)
	}
}

func TestOpenRunLogs_Appends(t *testing.T) {
	dir := t.TempDir()
	for _, msg := range []string{"first", "second"} {
		logs, err := openRunLogs(dir, nil, log.InfoLevel)
		if err != nil {
			t.Fatalf("openRunLogs() error: %v", err)
		}
		logs.Logger.Info(msg)
		logs.Close()
	}

	got := readFile(t, filepath.Join(dir, mainLogName))
	if !strings.Contains(got, "first") || !strings.Contains(got, "second") {
		t.Errorf("main.log was truncated: %q", got)
	}
}

func TestErrorLogHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := errorLogHooks{logger: log.NewWithOptions(&buf, log.Options{Level: log.ErrorLevel})}
	ctx := context.Background()
	now := time.Now()

	hooks.OnNodeFinish(ctx, "r1", "ok.py", now, now, 0, nil)
	if buf.Len() != 0 {
		t.Fatalf("successful node was logged: %q", buf.String())
	}

	failure := bterrors.New(bterrors.ErrCodeNodeFailure, "node bad.py exited with code 2").
		WithNode("bad.py").WithDetail("Traceback: boom")
	hooks.OnNodeFinish(ctx, "r1", "bad.py", now, now, 2, failure)
	hooks.OnRunEnd(ctx, "r1", now, now.Add(time.Second), 1, failure)
	hooks.OnRunEnd(ctx, "r2", now, now, 3, nil)

	got := buf.String()
	for _, want := range []string{"node failed", "bad.py", "Traceback: boom", "run aborted", "NODE_FAILURE"} {
		if !strings.Contains(got, want) {
			t.Errorf("error log missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "r2") {
		t.Errorf("completed run was logged:\n%s", got)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
