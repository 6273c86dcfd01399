// Package resource implements admission control for task launches.
//
// Before each launch the scheduler asks a [Gate] to wait until the host
// satisfies every configured [Thresholds] value in a single sampling cycle.
// Host metrics come from a [Probe]; [SystemProbe] reads them from the
// operating system via gopsutil.
package resource

import (
	"errors"
	"fmt"
	"strings"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// ErrUnsupported is returned by a [Probe] for a metric the platform cannot
// report. Unsupported metrics never block admission.
var ErrUnsupported = errors.New("metric not supported on this platform")

// Metric names a host metric.
type Metric string

const (
	MetricCPU    Metric = "cpu_percent"
	MetricMemory Metric = "memory_percent"
	MetricDisk   Metric = "disk_free_mb"
	MetricLoad   Metric = "load_avg_1m"
)

// Thresholds holds the optional admission limits. A nil field is not checked.
//
// CPUPercent, MemoryPercent and LoadAvg1m are upper bounds; DiskFreeMB is a
// lower bound on free space in the task directory.
type Thresholds struct {
	CPUPercent    *float64 `json:"cpu_percent,omitempty" toml:"cpu_percent" yaml:"cpu_percent,omitempty"`
	MemoryPercent *float64 `json:"memory_percent,omitempty" toml:"memory_percent" yaml:"memory_percent,omitempty"`
	DiskFreeMB    *float64 `json:"disk_free_mb,omitempty" toml:"disk_free_mb" yaml:"disk_free_mb,omitempty"`
	LoadAvg1m     *float64 `json:"load_avg_1m,omitempty" toml:"load_avg_1m" yaml:"load_avg_1m,omitempty"`
}

// Limit returns a pointer to v, for building [Thresholds] literals.
func Limit(v float64) *float64 { return &v }

// Empty reports whether no threshold is configured.
func (t Thresholds) Empty() bool {
	return t.CPUPercent == nil && t.MemoryPercent == nil && t.DiskFreeMB == nil && t.LoadAvg1m == nil
}

// Validate checks that the configured limits are in range.
func (t Thresholds) Validate() error {
	if t.CPUPercent != nil {
		if err := bterrors.ValidatePercent(string(MetricCPU), *t.CPUPercent); err != nil {
			return err
		}
	}
	if t.MemoryPercent != nil {
		if err := bterrors.ValidatePercent(string(MetricMemory), *t.MemoryPercent); err != nil {
			return err
		}
	}
	if t.DiskFreeMB != nil {
		if err := bterrors.ValidateNonNegative(string(MetricDisk), *t.DiskFreeMB); err != nil {
			return err
		}
	}
	if t.LoadAvg1m != nil {
		if err := bterrors.ValidateNonNegative(string(MetricLoad), *t.LoadAvg1m); err != nil {
			return err
		}
	}
	return nil
}

// Reading is the outcome of evaluating one metric against its limit.
type Reading struct {
	Metric      Metric  `json:"metric"`
	Value       float64 `json:"value"`
	Limit       float64 `json:"limit"`
	OK          bool    `json:"ok"`
	Unsupported bool    `json:"unsupported,omitempty"`
	Err         error   `json:"-"`
}

// String formats the reading for log output.
func (r Reading) String() string {
	switch {
	case r.Unsupported:
		return fmt.Sprintf("%s=unsupported", r.Metric)
	case r.Err != nil:
		return fmt.Sprintf("%s=error(%v)", r.Metric, r.Err)
	case r.Metric == MetricDisk:
		return fmt.Sprintf("%s=%.1f (min %.1f)", r.Metric, r.Value, r.Limit)
	default:
		return fmt.Sprintf("%s=%.1f (max %.1f)", r.Metric, r.Value, r.Limit)
	}
}

// Readings is the set of readings from one sampling cycle.
type Readings []Reading

// OK reports whether every reading passed.
func (rs Readings) OK() bool {
	for _, r := range rs {
		if !r.OK {
			return false
		}
	}
	return true
}

// Failing returns a summary of the readings that did not pass.
func (rs Readings) Failing() string {
	var parts []string
	for _, r := range rs {
		if !r.OK {
			parts = append(parts, r.String())
		}
	}
	return strings.Join(parts, ", ")
}
