package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/observability"
)

// Run log file names, created in the configuration's log directory.
const (
	mainLogName  = "main.log"
	errorLogName = "error.log"
)

const fileTimeFormat = "2006-01-02 15:04:05.000"

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// runLogs are the loggers of one run command.
//
// Logger writes to the console and to main.log. Errors is a second logger
// that only receives failures and writes error.log.
type runLogs struct {
	Logger *log.Logger
	Errors *log.Logger
	files  []*os.File
}

// openRunLogs opens main.log and error.log in dir for appending. With a nil
// console only the files are written.
func openRunLogs(dir string, console io.Writer, level log.Level) (*runLogs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "create log directory")
	}
	mainLog, err := appendFile(filepath.Join(dir, mainLogName))
	if err != nil {
		return nil, err
	}
	errLog, err := appendFile(filepath.Join(dir, errorLogName))
	if err != nil {
		mainLog.Close()
		return nil, err
	}

	var w io.Writer = mainLog
	if console != nil {
		w = io.MultiWriter(console, mainLog)
	}
	logger := newLogger(w, level)
	logger.SetTimeFormat(fileTimeFormat)

	errLogger := log.NewWithOptions(errLog, log.Options{
		ReportTimestamp: true,
		TimeFormat:      fileTimeFormat,
		Level:           log.ErrorLevel,
	})
	return &runLogs{Logger: logger, Errors: errLogger, files: []*os.File{mainLog, errLog}}, nil
}

func appendFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "open %s", path)
	}
	return f, nil
}

// Close closes the log files.
func (l *runLogs) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Hooks returns run hooks that record node failures and aborted runs in
// error.log.
func (l *runLogs) Hooks() observability.RunHooks {
	return errorLogHooks{logger: l.Errors}
}

type errorLogHooks struct {
	observability.NoopRunHooks
	logger *log.Logger
}

func (h errorLogHooks) OnNodeFinish(_ context.Context, runID, node string, _, _ time.Time, exitCode int, err error) {
	if err == nil {
		return
	}
	h.logger.Error("node failed", "run", runID, "node", node, "exit_code", exitCode, "err", err)
	if detail := bterrors.Detail(err); detail != "" {
		h.logger.Error("node output", "node", node, "stderr", detail)
	}
}

func (h errorLogHooks) OnRunEnd(_ context.Context, runID string, start, end time.Time, completed int, err error) {
	if err == nil {
		return
	}
	h.logger.Error("run aborted", "run", runID, "code", bterrors.GetCode(err),
		"completed", completed, "duration", end.Sub(start).Round(time.Millisecond), "err", err)
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is the type for context keys used in this package.
type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
