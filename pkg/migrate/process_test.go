//go:build unix

package migrate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/batchtower/pkg/executor"
)

func writeTask(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestRun_Processes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "processed.txt")
	writeTask(t, dir, "get_ids.sh", `echo '[101, 102, "c-3", 104, 105]'`)
	writeTask(t, dir, "process_chunk.sh", `echo "$1" >> "`+out+`"; echo '{"status": "ok"}'`)

	logger := log.New(io.Discard)
	proc := executor.NewProcess(dir, []string{"/bin/sh"}, logger)
	m := New(proc, "get_ids.sh", "process_chunk.sh",
		WithChunkSize(2),
		WithMemory(SystemMemory{}),
		WithPollInterval(10*time.Millisecond),
		WithLogger(logger),
	)

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{`[101,102]`, `["c-3",104]`, `[105]`}
	if !slices.Equal(got, want) {
		t.Errorf("chunks received = %q, want %q", got, want)
	}
	if res.Processed != 5 || len(res.Chunks) != 3 {
		t.Errorf("Processed, chunks = %d, %d; want 5, 3", res.Processed, len(res.Chunks))
	}
	if res.Chunks[0].Stdout != `{"status": "ok"}` {
		t.Errorf("chunk stdout = %q", res.Chunks[0].Stdout)
	}
	if res.HostMemory == 0 {
		t.Error("HostMemory = 0 with memory tracking")
	}
}

func TestSystemMemory(t *testing.T) {
	ctx := context.Background()
	var m SystemMemory

	rss, err := m.RSS(ctx, os.Getpid())
	if err != nil {
		t.Fatalf("RSS() error = %v", err)
	}
	total, err := m.Total(ctx)
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if rss == 0 || total == 0 || rss > total {
		t.Errorf("RSS, Total = %d, %d", rss, total)
	}
	if _, err := m.RSS(ctx, -1); err == nil {
		t.Error("RSS(-1) error = nil")
	}
}
