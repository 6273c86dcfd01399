package config

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/matzehuels/batchtower/pkg/resource"
)

// hclFile is the HCL form. Nodes are blocks labelled with their ID:
//
//	deadline_seconds = 3600
//
//	resources {
//	  cpu_percent = 85
//	}
//
//	node "extract.py" {}
//
//	node "load.py" {
//	  dependencies = ["extract.py"]
//	  timeout      = 600
//	}
type hclFile struct {
	DeadlineSeconds     *float64      `hcl:"deadline_seconds,optional"`
	ProcessDir          string        `hcl:"process_dir,optional"`
	Interpreter         []string      `hcl:"interpreter,optional"`
	LockFile            string        `hcl:"lock_file,optional"`
	LogDir              string        `hcl:"log_dir,optional"`
	PollIntervalSeconds float64       `hcl:"poll_interval_seconds,optional"`
	ResourcePollSeconds float64       `hcl:"resource_poll_seconds,optional"`
	Schedule            string        `hcl:"schedule,optional"`
	Batches             [][]string    `hcl:"batches,optional"`
	ExecutionMode       string        `hcl:"execution_mode,optional"`
	Resources           *hclResources `hcl:"resources,block"`
	Benchmarks          *Benchmarks   `hcl:"benchmarks,block"`
	Migration           *Migration    `hcl:"migration,block"`
	Nodes               []hclNode     `hcl:"node,block"`
}

type hclResources struct {
	CPUPercent    *float64 `hcl:"cpu_percent,optional"`
	MemoryPercent *float64 `hcl:"memory_percent,optional"`
	DiskFreeMB    *float64 `hcl:"disk_free_mb,optional"`
	LoadAvg1m     *float64 `hcl:"load_avg_1m,optional"`
}

type hclNode struct {
	ID           string   `hcl:"id,label"`
	Dependencies []string `hcl:"dependencies,optional"`
	In           []string `hcl:"in,optional"`
	Timeout      *float64 `hcl:"timeout,optional"`
}

func parseHCL(path string, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, diags
	}

	var doc hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, diags
	}

	s := settings{
		DeadlineSeconds:     doc.DeadlineSeconds,
		ProcessDir:          doc.ProcessDir,
		Interpreter:         doc.Interpreter,
		LockFile:            doc.LockFile,
		LogDir:              doc.LogDir,
		PollIntervalSeconds: doc.PollIntervalSeconds,
		ResourcePollSeconds: doc.ResourcePollSeconds,
		Schedule:            doc.Schedule,
		Batches:             doc.Batches,
		ExecutionMode:       doc.ExecutionMode,
		Migration:           doc.Migration,
	}
	if r := doc.Resources; r != nil {
		s.Resources = resource.Thresholds{
			CPUPercent:    r.CPUPercent,
			MemoryPercent: r.MemoryPercent,
			DiskFreeMB:    r.DiskFreeMB,
			LoadAvg1m:     r.LoadAvg1m,
		}
	}
	if doc.Benchmarks != nil {
		s.Benchmarks = *doc.Benchmarks
	}

	nodes := make([]Node, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		b := nodeBody{Dependencies: n.Dependencies, In: n.In, Timeout: n.Timeout}
		nodes = append(nodes, b.node(n.ID))
	}
	return s.config(nodes), nil
}
