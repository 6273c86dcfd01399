package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/resource"
)

// Format is a configuration file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	}
	return "", bterrors.New(bterrors.ErrCodeConfig,
		"unsupported config format %q (want .json, .toml, .yaml or .hcl)", filepath.Ext(path))
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "read config")
	}
	return Parse(path, data)
}

// Parse decodes data in the format implied by path's extension. path is
// also the base for relative paths inside the configuration.
func Parse(path string, data []byte) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var c *Config
	switch format {
	case FormatJSON:
		c, err = parseJSON(data)
	case FormatTOML:
		c, err = parseTOML(data)
	case FormatYAML:
		c, err = parseYAML(data)
	case FormatHCL:
		c, err = parseHCL(path, data)
	}
	if err != nil {
		if bterrors.GetCode(err) == "" {
			err = bterrors.Wrap(bterrors.ErrCodeConfig, err, "parse %s", path)
		}
		return nil, err
	}

	c.Path = path
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// settings holds the scalar fields shared by the JSON, TOML and YAML forms.
type settings struct {
	DeadlineSeconds     *float64            `json:"deadline_seconds" toml:"deadline_seconds" yaml:"deadline_seconds"`
	Resources           resource.Thresholds `json:"resources" toml:"resources" yaml:"resources"`
	ProcessDir          string              `json:"process_dir" toml:"process_dir" yaml:"process_dir"`
	Interpreter         []string            `json:"interpreter" toml:"interpreter" yaml:"interpreter"`
	LockFile            string              `json:"lock_file" toml:"lock_file" yaml:"lock_file"`
	LogDir              string              `json:"log_dir" toml:"log_dir" yaml:"log_dir"`
	PollIntervalSeconds float64             `json:"poll_interval_seconds" toml:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	ResourcePollSeconds float64             `json:"resource_poll_seconds" toml:"resource_poll_seconds" yaml:"resource_poll_seconds"`
	Schedule            string              `json:"schedule" toml:"schedule" yaml:"schedule"`
	Benchmarks          Benchmarks          `json:"benchmarks" toml:"benchmarks" yaml:"benchmarks"`
	Batches             [][]string          `json:"batches" toml:"batches" yaml:"batches"`
	ExecutionMode       string              `json:"execution_mode" toml:"execution_mode" yaml:"execution_mode"`
	Migration           *Migration          `json:"migration" toml:"migration" yaml:"migration"`
}

func (s settings) config(nodes []Node) *Config {
	return &Config{
		Nodes:               nodes,
		DeadlineSeconds:     s.DeadlineSeconds,
		Resources:           s.Resources,
		ProcessDir:          s.ProcessDir,
		Interpreter:         s.Interpreter,
		LockFile:            s.LockFile,
		LogDir:              s.LogDir,
		PollIntervalSeconds: s.PollIntervalSeconds,
		ResourcePollSeconds: s.ResourcePollSeconds,
		Schedule:            s.Schedule,
		Benchmarks:          s.Benchmarks,
		Batches:             s.Batches,
		ExecutionMode:       s.ExecutionMode,
		Migration:           s.Migration,
	}
}

// nodeBody is one node entry. In is the legacy spelling of Dependencies;
// when both are present their union is used.
type nodeBody struct {
	ID           string   `json:"id" toml:"id" yaml:"id"`
	Dependencies []string `json:"dependencies" toml:"dependencies" yaml:"dependencies"`
	In           []string `json:"in" toml:"in" yaml:"in"`
	Timeout      *float64 `json:"timeout" toml:"timeout" yaml:"timeout"`
}

func (b nodeBody) node(id string) Node {
	deps := append([]string(nil), b.Dependencies...)
	for _, d := range b.In {
		if !slices.Contains(deps, d) {
			deps = append(deps, d)
		}
	}
	return Node{ID: id, Dependencies: deps, Timeout: b.Timeout}
}
