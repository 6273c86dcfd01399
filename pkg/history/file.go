package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultDir is the archive directory, relative to the log directory.
const DefaultDir = ".batchtower/runs"

const latestKey = "latest"

// FileStore keeps one JSON file per run, sharded by key hash.
type FileStore struct {
	dir string
	ttl time.Duration
}

// NewFileStore opens an archive in dir, creating it if needed. Entries
// older than ttl are treated as missing and removed on access; zero keeps
// them forever.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

type envelope struct {
	Entry     Entry     `json:"entry"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func (s *FileStore) Save(_ context.Context, e Entry) error {
	env := envelope{Entry: e}
	if s.ttl > 0 {
		env.ExpiresAt = e.End.Add(s.ttl)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	if err := s.write(e.RunID, data); err != nil {
		return err
	}
	return s.write(latestKey, data)
}

func (s *FileStore) Get(_ context.Context, runID string) (Entry, bool, error) {
	return s.read(runID)
}

func (s *FileStore) Latest(_ context.Context) (Entry, bool, error) {
	return s.read(latestKey)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(key string) (Entry, bool, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Corrupt entry, treat as a miss.
		_ = os.Remove(path)
		return Entry{}, false, nil
	}
	if !env.ExpiresAt.IsZero() && time.Now().After(env.ExpiresAt) {
		_ = os.Remove(path)
		return Entry{}, false, nil
	}
	return env.Entry, true, nil
}

// write replaces the file for key atomically.
func (s *FileStore) write(key string, data []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// path shards keys into 256 subdirectories by the first hash byte.
func (s *FileStore) path(key string) string {
	h := Hash([]byte(key))
	return filepath.Join(s.dir, h[:2], h[2:]+".json")
}

// NullStore archives nothing.
type NullStore struct{}

func (NullStore) Save(context.Context, Entry) error                { return nil }
func (NullStore) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
func (NullStore) Latest(context.Context) (Entry, bool, error)      { return Entry{}, false, nil }
func (NullStore) Close() error                                     { return nil }

var (
	_ Store = (*FileStore)(nil)
	_ Store = NullStore{}
)
