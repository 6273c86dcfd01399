package bench

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

func fixedSink(buf *bytes.Buffer) *FileSink {
	s := NewWriterSink(buf)
	s.now = func() time.Time { return t0 }
	return s
}

func TestFileSink_Lines(t *testing.T) {
	var buf bytes.Buffer
	s := fixedSink(&buf)
	ctx := context.Background()

	start := t0.Add(time.Millisecond)
	end := start.Add(1500 * time.Millisecond)

	steps := []error{
		s.RunStarted(ctx, "r1", t0),
		s.NodeStarted(ctx, "r1", "a.py", start),
		s.NodeFinished(ctx, NewRecord("r1", "a.py", start, end, 0, nil)),
		s.NodeFinished(ctx, NewRecord("r1", "b.py", start, end, 3, errors.New("boom"))),
		s.RunFinished(ctx, "r1", t0, end, nil),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	want := []string{
		"2025-01-02 03:04:05,678: ------------------------------",
		"2025-01-02 03:04:05,678: a.py started at 2025-01-02 03:04:05.679000",
		"2025-01-02 03:04:05,678: a.py ended at 2025-01-02 03:04:07.179000, duration 1.5s",
		"2025-01-02 03:04:05,678: b.py ended at 2025-01-02 03:04:07.179000, duration 1.5s, exit code 3",
		"2025-01-02 03:04:05,678: ------------------------------",
	}
	got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewFileSink_AppendsAndCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", DefaultFileName)
	ctx := context.Background()

	for range 2 {
		s, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("NewFileSink() error = %v", err)
		}
		if err := s.RunStarted(ctx, "r", t0); err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), Separator); n != 2 {
		t.Errorf("separator count = %d, want 2", n)
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord("r", "n", t0, t0.Add(2*time.Second), 0, nil)
	if r.Duration != 2*time.Second || r.Error != "" {
		t.Errorf("NewRecord() = %+v", r)
	}
	r = NewRecord("r", "n", t0, t0, -1, errors.New("killed"))
	if r.Error != "killed" || r.ExitCode != -1 {
		t.Errorf("NewRecord() with error = %+v", r)
	}
}

type recordingSink struct {
	NullSink
	events []string
	fail   bool
}

func (s *recordingSink) RunStarted(_ context.Context, runID string, _ time.Time) error {
	s.events = append(s.events, "run:"+runID)
	return s.err()
}

func (s *recordingSink) NodeStarted(_ context.Context, _, node string, _ time.Time) error {
	s.events = append(s.events, "start:"+node)
	return s.err()
}

func (s *recordingSink) NodeFinished(_ context.Context, rec Record) error {
	s.events = append(s.events, "finish:"+rec.Node)
	return s.err()
}

func (s *recordingSink) RunFinished(context.Context, string, time.Time, time.Time, error) error {
	s.events = append(s.events, "end")
	return s.err()
}

func (s *recordingSink) err() error {
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func TestHooks_Forward(t *testing.T) {
	for _, fail := range []bool{false, true} {
		sink := &recordingSink{fail: fail}
		var logs bytes.Buffer
		h := NewHooks(sink, log.New(&logs))
		ctx := context.Background()

		h.OnRunStart(ctx, "r", []string{"a"})
		h.OnNodeLaunch(ctx, "r", "a", 42, t0)
		h.OnResourceWait(ctx, "r", "a", "cpu_percent=99.0 (max 80.0)")
		h.OnNodeFinish(ctx, "r", "a", t0, t0.Add(time.Second), 0, nil)
		h.OnRunEnd(ctx, "r", t0, t0.Add(time.Second), 1, nil)

		want := "run:r start:a finish:a end"
		if got := strings.Join(sink.events, " "); got != want {
			t.Errorf("fail=%v events = %q, want %q", fail, got, want)
		}
		if fail != strings.Contains(logs.String(), "benchmark sink failed") {
			t.Errorf("fail=%v logs = %q", fail, logs.String())
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, config.Benchmarks{Sink: config.SinkNone}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(NullSink); !ok {
		t.Errorf("Open(none) = %T, want NullSink", s)
	}

	s, err = Open(ctx, config.Benchmarks{Sink: config.SinkFile}, dir)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if _, err := os.Stat(filepath.Join(dir, DefaultFileName)); err != nil {
		t.Errorf("benchmark log not created: %v", err)
	}

	_, err = Open(ctx, config.Benchmarks{Sink: "kafka"}, dir)
	if !bterrors.Is(err, bterrors.ErrCodeConfig) {
		t.Errorf("Open(kafka) error = %v, want CONFIG_ERROR", err)
	}
}

func TestRedisKeys(t *testing.T) {
	s := NewRedisSinkFromClient(nil, "", 0)
	tests := []struct{ got, want string }{
		{s.RunsKey(), "batchtower:runs"},
		{s.RunKey("abc"), "batchtower:run:abc"},
		{s.TimingsKey("abc"), "batchtower:run:abc:timings"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestMongoDocuments(t *testing.T) {
	doc := runDocument("r1", t0)
	if doc["_id"] != "r1" || doc["status"] != "running" {
		t.Errorf("runDocument() = %v", doc)
	}

	set := runUpdate(t0, nil)["$set"].(bson.M)
	if set["status"] != "completed" {
		t.Errorf("runUpdate(nil) status = %v", set["status"])
	}
	if _, ok := set["error"]; ok {
		t.Error("runUpdate(nil) carries an error field")
	}

	set = runUpdate(t0, io.ErrUnexpectedEOF)["$set"].(bson.M)
	if set["status"] != "aborted" || set["error"] != io.ErrUnexpectedEOF.Error() {
		t.Errorf("runUpdate(err) = %v", set)
	}
}
