// Package config loads run configurations.
//
// A configuration names the task graph and the run-level settings around
// it. Four formats are accepted, chosen by file extension: JSON (the
// default, config.json), TOML, YAML and HCL. Every loader preserves the
// declaration order of nodes, which the scheduler uses to break ties
// between nodes that become ready together.
//
// A JSON configuration looks like:
//
//	{
//	  "deadline_seconds": 3600,
//	  "resources": {"cpu_percent": 85, "disk_free_mb": 512},
//	  "interpreter": ["python3"],
//	  "nodes": {
//	    "extract.py":   {"dependencies": []},
//	    "transform.py": {"dependencies": ["extract.py"], "timeout": 600},
//	    "load.py":      {"in": ["transform.py"]}
//	  }
//	}
//
// The legacy "in" key is accepted as an alias of "dependencies". Instead
// of nodes, a configuration may list "batches" of scripts together with an
// "execution_mode"; see [BatchesToNodes]. A "migration" section describes a
// chunked migration (see [Migration]); a configuration holding only that
// section needs no nodes.
package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/matzehuels/batchtower/pkg/dag"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/resource"
)

// Default file names, resolved relative to the configuration file.
const (
	DefaultFile       = "config.json"
	DefaultProcessDir = "process_files"
	DefaultLockFile   = "main.lock"
)

// Default intervals.
const (
	DefaultPollInterval         = 500 * time.Millisecond
	DefaultResourcePollInterval = 5 * time.Second
)

// Execution modes for batch configurations.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Benchmark sink kinds.
const (
	SinkFile  = "file"
	SinkRedis = "redis"
	SinkMongo = "mongo"
	SinkNone  = "none"
)

// Node declares one task.
type Node struct {
	ID           string
	Dependencies []string
	Timeout      *float64 // Seconds; nil means unlimited
}

// Benchmarks selects where per-node timing records go.
type Benchmarks struct {
	Sink     string `json:"sink,omitempty" toml:"sink" yaml:"sink,omitempty" hcl:"sink,optional"`
	Path     string `json:"path,omitempty" toml:"path" yaml:"path,omitempty" hcl:"path,optional"`
	RedisURL string `json:"redis_url,omitempty" toml:"redis_url" yaml:"redis_url,omitempty" hcl:"redis_url,optional"`
	MongoURI string `json:"mongo_uri,omitempty" toml:"mongo_uri" yaml:"mongo_uri,omitempty" hcl:"mongo_uri,optional"`
	Database string `json:"database,omitempty" toml:"database" yaml:"database,omitempty" hcl:"database,optional"`
}

// Migration defaults.
const (
	DefaultChunkSize        = 10
	DefaultMaxMemoryPercent = 50
)

// Migration configures a chunked migration: the GetIDs task prints a JSON
// array of record IDs, and ProcessChunk is run once per chunk with the
// chunk's JSON array as its only argument. Both name files in the task
// directory, like node IDs.
type Migration struct {
	GetIDs       string `json:"get_ids" toml:"get_ids" yaml:"get_ids" hcl:"get_ids"`
	ProcessChunk string `json:"process_chunk" toml:"process_chunk" yaml:"process_chunk" hcl:"process_chunk"`
	ChunkSize    int    `json:"chunk_size" toml:"chunk_size" yaml:"chunk_size" hcl:"chunk_size,optional"`
	TrackMemory  *bool  `json:"track_memory" toml:"track_memory" yaml:"track_memory" hcl:"track_memory,optional"`

	// DynamicChunkSize resizes chunks after each one so that the estimated
	// memory of the next chunk stays within MaxMemoryPercent of the host.
	DynamicChunkSize bool    `json:"dynamic_batch_size_based_on_memory_usage" toml:"dynamic_batch_size_based_on_memory_usage" yaml:"dynamic_batch_size_based_on_memory_usage" hcl:"dynamic_batch_size_based_on_memory_usage,optional"`
	MaxMemoryPercent float64 `json:"max_memory_usage" toml:"max_memory_usage" yaml:"max_memory_usage" hcl:"max_memory_usage,optional"`

	// ChunkTimeout bounds each task launch, in seconds. Nil means unlimited.
	ChunkTimeout *float64 `json:"chunk_timeout" toml:"chunk_timeout" yaml:"chunk_timeout" hcl:"chunk_timeout,optional"`
}

// Tracking reports whether chunk memory is measured. Dynamic sizing
// implies it.
func (m *Migration) Tracking() bool {
	return m.DynamicChunkSize || m.TrackMemory == nil || *m.TrackMemory
}

// Timeout returns the per-launch timeout, zero when unlimited.
func (m *Migration) Timeout() time.Duration {
	if m.ChunkTimeout == nil {
		return 0
	}
	return seconds(*m.ChunkTimeout)
}

func (m *Migration) validate(path string) error {
	for name, id := range map[string]string{"get_ids": m.GetIDs, "process_chunk": m.ProcessChunk} {
		if id == "" {
			return bterrors.New(bterrors.ErrCodeConfig, "%s: migration needs %s", path, name)
		}
		if err := bterrors.ValidateNodeID(id); err != nil {
			return err
		}
	}
	if m.ChunkSize < 0 {
		return bterrors.New(bterrors.ErrCodeConfig, "%s: migration chunk_size cannot be negative", path)
	}
	if err := bterrors.ValidatePercent("max_memory_usage", m.MaxMemoryPercent); err != nil {
		return err
	}
	if m.ChunkTimeout != nil && *m.ChunkTimeout <= 0 {
		return bterrors.New(bterrors.ErrCodeConfig, "%s: migration chunk_timeout must be positive", path)
	}
	return nil
}

// Config is a loaded run configuration. Relative paths have been resolved
// against the directory of the configuration file.
type Config struct {
	Path string // File the configuration was loaded from

	Nodes           []Node
	DeadlineSeconds *float64
	Resources       resource.Thresholds

	ProcessDir          string
	Interpreter         []string
	LockFile            string
	LogDir              string
	PollIntervalSeconds float64
	ResourcePollSeconds float64
	Schedule            string
	Benchmarks          Benchmarks

	Batches       [][]string
	ExecutionMode string

	// Migration is set when the configuration describes a chunked
	// migration. Nodes may then be empty.
	Migration *Migration
}

// Deadline returns the run deadline and whether one is configured.
func (c *Config) Deadline() (time.Duration, bool) {
	if c.DeadlineSeconds == nil {
		return 0, false
	}
	return seconds(*c.DeadlineSeconds), true
}

// PollInterval returns the scheduler's poll interval.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return DefaultPollInterval
	}
	return seconds(c.PollIntervalSeconds)
}

// ResourcePollInterval returns the resource gate's poll interval.
func (c *Config) ResourcePollInterval() time.Duration {
	if c.ResourcePollSeconds <= 0 {
		return DefaultResourcePollInterval
	}
	return seconds(c.ResourcePollSeconds)
}

// Spec returns the node declarations as a graph spec, in declaration order.
func (c *Config) Spec() dag.Spec {
	spec := make(dag.Spec, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ns := dag.NodeSpec{ID: n.ID, Dependencies: slices.Clone(n.Dependencies)}
		if n.Timeout != nil {
			ns.Timeout = seconds(*n.Timeout)
		}
		spec = append(spec, ns)
	}
	return spec
}

// Graph builds and validates the task graph.
func (c *Config) Graph() (*dag.Graph, error) {
	if len(c.Nodes) == 0 {
		return nil, bterrors.New(bterrors.ErrCodeConfig, "%s: no nodes configured", c.Path)
	}
	return dag.New(c.Spec())
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// finalize converts batches, applies defaults and validates.
func (c *Config) finalize() error {
	if len(c.Batches) > 0 {
		if len(c.Nodes) > 0 {
			return bterrors.New(bterrors.ErrCodeConfig, "%s: nodes and batches are mutually exclusive", c.Path)
		}
		nodes, err := BatchesToNodes(c.Batches, c.ExecutionMode)
		if err != nil {
			return err
		}
		c.Nodes = nodes
	}

	base := filepath.Dir(c.Path)
	if c.ProcessDir == "" {
		c.ProcessDir = DefaultProcessDir
	}
	c.ProcessDir = resolve(base, c.ProcessDir)
	if c.LockFile == "" {
		c.LockFile = DefaultLockFile
	}
	c.LockFile = resolve(base, c.LockFile)
	if c.LogDir != "" {
		c.LogDir = resolve(base, c.LogDir)
	}
	if c.Benchmarks.Sink == "" {
		c.Benchmarks.Sink = SinkFile
	}
	if c.Benchmarks.Path != "" {
		c.Benchmarks.Path = resolve(base, c.Benchmarks.Path)
	}
	if m := c.Migration; m != nil {
		if m.ChunkSize == 0 {
			m.ChunkSize = DefaultChunkSize
		}
		if m.MaxMemoryPercent == 0 {
			m.MaxMemoryPercent = DefaultMaxMemoryPercent
		}
	}

	return c.Validate()
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks the configuration without building the graph.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 && c.Migration == nil {
		return bterrors.New(bterrors.ErrCodeConfig, "%s: no nodes configured", c.Path)
	}
	if c.Migration != nil {
		if err := c.Migration.validate(c.Path); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if err := bterrors.ValidateNodeID(n.ID); err != nil {
			return err
		}
		if seen[n.ID] {
			return bterrors.New(bterrors.ErrCodeConfig, "%s: node %q declared twice", c.Path, n.ID).WithNode(n.ID)
		}
		seen[n.ID] = true
		if n.Timeout != nil && *n.Timeout <= 0 {
			return bterrors.New(bterrors.ErrCodeConfig,
				"%s: node %q timeout must be positive, got %g", c.Path, n.ID, *n.Timeout).WithNode(n.ID)
		}
	}
	if err := c.Resources.Validate(); err != nil {
		return err
	}
	if c.PollIntervalSeconds < 0 || c.ResourcePollSeconds < 0 {
		return bterrors.New(bterrors.ErrCodeConfig, "%s: poll intervals cannot be negative", c.Path)
	}
	switch c.Benchmarks.Sink {
	case SinkFile, SinkNone:
	case SinkRedis:
		if c.Benchmarks.RedisURL == "" {
			return bterrors.New(bterrors.ErrCodeConfig, "%s: redis benchmark sink needs redis_url", c.Path)
		}
	case SinkMongo:
		if c.Benchmarks.MongoURI == "" {
			return bterrors.New(bterrors.ErrCodeConfig, "%s: mongo benchmark sink needs mongo_uri", c.Path)
		}
	default:
		return bterrors.New(bterrors.ErrCodeConfig, "%s: unknown benchmark sink %q", c.Path, c.Benchmarks.Sink)
	}
	return nil
}
