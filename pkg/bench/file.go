package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Separator delimits runs in the benchmark log.
var Separator = strings.Repeat("-", 30)

const (
	lineTimeFormat  = "2006-01-02 15:04:05,000"
	eventTimeFormat = "2006-01-02 15:04:05.000000"
)

// FileSink appends human-readable timing lines to a log file:
//
//	2025-01-02 03:04:05,678: ------------------------------
//	2025-01-02 03:04:05,679: extract.py started at 2025-01-02 03:04:05.679012
//	2025-01-02 03:04:07,001: extract.py ended at 2025-01-02 03:04:06.998877, duration 1.319865s
type FileSink struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// NewFileSink opens path for appending, creating parent directories.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{w: f, c: f, now: time.Now}, nil
}

// NewWriterSink writes timing lines to w. Close does not close w.
func NewWriterSink(w io.Writer) *FileSink {
	return &FileSink{w: w, now: time.Now}
}

func (s *FileSink) line(format string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s: %s\n", s.now().Format(lineTimeFormat), fmt.Sprintf(format, args...))
	return err
}

func (s *FileSink) RunStarted(context.Context, string, time.Time) error {
	return s.line("%s", Separator)
}

func (s *FileSink) NodeStarted(_ context.Context, _, node string, start time.Time) error {
	return s.line("%s started at %s", node, start.Format(eventTimeFormat))
}

func (s *FileSink) NodeFinished(_ context.Context, rec Record) error {
	if rec.Error != "" {
		return s.line("%s ended at %s, duration %s, exit code %d", rec.Node, rec.End.Format(eventTimeFormat), rec.Duration, rec.ExitCode)
	}
	return s.line("%s ended at %s, duration %s", rec.Node, rec.End.Format(eventTimeFormat), rec.Duration)
}

func (s *FileSink) RunFinished(context.Context, string, time.Time, time.Time, error) error {
	return s.line("%s", Separator)
}

func (s *FileSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

var _ Sink = (*FileSink)(nil)
