package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/history"
)

const diamondConfig = `{
  "resources": {"cpu_percent": 80, "disk_free_mb": 512},
  "deadline_seconds": 60,
  "nodes": {
    "a.py": {"dependencies": []},
    "b.py": {"dependencies": ["a.py"], "timeout": 30},
    "c.py": {"in": ["a.py"]},
    "d.py": {"dependencies": ["b.py", "c.py"]}
  }
}`

const cycleConfig = `{
  "nodes": {
    "a.py": {"dependencies": ["b.py"]},
    "b.py": {"dependencies": ["a.py"]}
  }
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"run", "migrate", "validate", "graph", "lock", "history", "version", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		wantCode bterrors.Code
	}{
		{name: "diamond", config: diamondConfig},
		{name: "cycle", config: cycleConfig, wantCode: bterrors.ErrCodeCycleOrIncomplete},
		{name: "unknown dependency", config: `{"nodes": {"a.py": {"dependencies": ["zz.py"]}}}`, wantCode: bterrors.ErrCodeConfig},
		{name: "malformed", config: `{"nodes": `, wantCode: bterrors.ErrCodeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(t, "validate", "-c", writeConfig(t, tt.config))
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("validate error: %v", err)
				}
				return
			}
			if got := bterrors.GetCode(err); got != tt.wantCode {
				t.Errorf("validate code = %q, want %q (err %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestGraph_DOTToFile(t *testing.T) {
	cfgPath := writeConfig(t, diamondConfig)
	out := filepath.Join(t.TempDir(), "graph.dot")

	if err := execute(t, "graph", "-c", cfgPath, "-o", out, "--detailed"); err != nil {
		t.Fatalf("graph error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	dot := string(data)
	for _, want := range []string{"digraph", `"a.py" -> "b.py"`, "timeout: 30s"} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot output missing %q:\n%s", want, dot)
		}
	}
}

func TestGraph_UnknownFormat(t *testing.T) {
	err := execute(t, "graph", "-c", writeConfig(t, diamondConfig), "-f", "gif")
	if got := bterrors.GetCode(err); got != bterrors.ErrCodeInvalidInput {
		t.Errorf("code = %q, want %q", got, bterrors.ErrCodeInvalidInput)
	}
}

func TestLockCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.lock")

	if err := execute(t, "lock", "status", "--path", path); err != nil {
		t.Fatalf("lock status on missing lock: %v", err)
	}
	if err := execute(t, "lock", "clear", "--path", path); err != nil {
		t.Fatalf("lock clear on missing lock: %v", err)
	}

	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, "lock", "status", "--path", path); err != nil {
		t.Fatalf("lock status on stale lock: %v", err)
	}
	if err := execute(t, "lock", "clear", "--path", path); err != nil {
		t.Fatalf("lock clear on stale lock: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("stale lock still present: %v", err)
	}
}

func TestLockStatus_FromConfig(t *testing.T) {
	cfgPath := writeConfig(t, diamondConfig)
	if err := execute(t, "lock", "status", "-c", cfgPath); err != nil {
		t.Fatalf("lock status error: %v", err)
	}
}

func TestHistory(t *testing.T) {
	cfgPath := writeConfig(t, diamondConfig)

	err := execute(t, "history", "-c", cfgPath)
	if got := bterrors.GetCode(err); got != bterrors.ErrCodeInvalidInput {
		t.Fatalf("history without runs: code = %q, want %q", got, bterrors.ErrCodeInvalidInput)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	store, err := history.NewFileStore(filepath.Join(filepath.Dir(cfg.Path), history.DefaultDir), historyRetention)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now().Add(-time.Minute)
	entry := history.Entry{
		RunID:      "run-1",
		ConfigHash: history.Hash([]byte(diamondConfig)),
		State:      "completed",
		Start:      start,
		End:        start.Add(10 * time.Second),
		Total:      1,
		Launched:   []string{"a.py"},
		Completed:  []string{"a.py"},
	}
	if err := store.Save(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "history", "-c", cfgPath); err != nil {
		t.Errorf("history latest: %v", err)
	}
	if err := execute(t, "history", "-c", cfgPath, "run-1"); err != nil {
		t.Errorf("history run-1: %v", err)
	}
	if err := execute(t, "history", "-c", cfgPath, "run-2"); bterrors.GetCode(err) != bterrors.ErrCodeInvalidInput {
		t.Errorf("history unknown run: err = %v", err)
	}
}

func TestEntryStates(t *testing.T) {
	e := history.Entry{
		Launched:  []string{"a.py", "b.py", "c.py"},
		Completed: []string{"a.py"},
		Failed:    []string{"b.py"},
	}
	got := entryStates(e)
	want := map[string]string{"a.py": "completed", "b.py": "failed", "c.py": "running"}
	if len(got) != len(want) {
		t.Fatalf("entryStates() = %v, want %v", got, want)
	}
	for id, state := range want {
		if got[id] != state {
			t.Errorf("state[%s] = %q, want %q", id, got[id], state)
		}
	}
}

func TestDescribeThresholds(t *testing.T) {
	cfg, err := config.Parse("config.json", []byte(diamondConfig))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := describeThresholds(cfg), "cpu_percent <= 80, disk_free_mb >= 512"; got != want {
		t.Errorf("describeThresholds() = %q, want %q", got, want)
	}
}
