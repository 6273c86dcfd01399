//go:build unix

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

const migrationConfig = `{
  "interpreter": ["/bin/sh"],
  "poll_interval_seconds": 0.01,
  "migration": {"get_ids": "get_ids.sh", "process_chunk": "process_chunk.sh", "chunk_size": 2}
}`

func TestMigrate(t *testing.T) {
	cfgPath := writeConfig(t, migrationConfig)
	tasks := filepath.Join(filepath.Dir(cfgPath), config.DefaultProcessDir)
	if err := os.MkdirAll(tasks, 0o755); err != nil {
		t.Fatal(err)
	}
	scripts := map[string]string{
		"get_ids.sh":       `echo '["a", "b", "c"]'`,
		"process_chunk.sh": `echo "$1" >> chunks.txt`,
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(tasks, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := execute(t, "validate", "-c", cfgPath); err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if err := execute(t, "migrate", "-c", cfgPath, "--chunk-size", "1"); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfgPath), "chunks.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.Fields(string(data)), []string{`["a"]`, `["b"]`, `["c"]`}; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("chunks = %v, want %v", got, want)
	}
}

func TestMigrate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		args     []string
		wantCode bterrors.Code
	}{
		{name: "no migration section", config: diamondConfig, wantCode: bterrors.ErrCodeConfig},
		{name: "negative chunk size", config: migrationConfig, args: []string{"--chunk-size", "-1"}, wantCode: bterrors.ErrCodeInvalidInput},
		{name: "max memory over 100", config: migrationConfig, args: []string{"--max-memory", "120"}, wantCode: bterrors.ErrCodeConfig},
		{name: "missing task files", config: migrationConfig, wantCode: bterrors.ErrCodeNodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"migrate", "-c", writeConfig(t, tt.config)}, tt.args...)
			if got := bterrors.GetCode(execute(t, args...)); got != tt.wantCode {
				t.Errorf("migrate code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestDescribeMigration(t *testing.T) {
	cfg, err := config.Parse("config.json", []byte(migrationConfig))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := describeMigration(cfg.Migration), "get_ids.sh -> process_chunk.sh, chunks of 2"; got != want {
		t.Errorf("describeMigration() = %q, want %q", got, want)
	}
	cfg.Migration.DynamicChunkSize = true
	if got, want := describeMigration(cfg.Migration), "get_ids.sh -> process_chunk.sh, chunks of 2, dynamic up to 50% memory"; got != want {
		t.Errorf("describeMigration() = %q, want %q", got, want)
	}
}
