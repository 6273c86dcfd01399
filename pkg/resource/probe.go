package resource

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Probe samples host metrics.
type Probe interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskFreeMB(ctx context.Context, dir string) (float64, error)
	// LoadAvg1m returns ErrUnsupported where the platform has no load average.
	LoadAvg1m(ctx context.Context) (float64, error)
}

// DefaultCPUSample is the window over which CPU utilization is measured.
const DefaultCPUSample = 500 * time.Millisecond

// SystemProbe reads metrics from the local operating system.
type SystemProbe struct {
	CPUSample time.Duration // Zero means DefaultCPUSample
}

// NewSystemProbe returns a probe with the default CPU sampling window.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{CPUSample: DefaultCPUSample}
}

func (p *SystemProbe) CPUPercent(ctx context.Context) (float64, error) {
	sample := p.CPUSample
	if sample <= 0 {
		sample = DefaultCPUSample
	}
	pct, err := cpu.PercentWithContext(ctx, sample, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, ErrUnsupported
	}
	return pct[0], nil
}

func (p *SystemProbe) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (p *SystemProbe) DiskFreeMB(ctx context.Context, dir string) (float64, error) {
	if dir == "" {
		dir = "."
	}
	u, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, err
	}
	return float64(u.Free) / (1024 * 1024), nil
}

func (p *SystemProbe) LoadAvg1m(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, ErrUnsupported
	}
	return avg.Load1, nil
}

var _ Probe = (*SystemProbe)(nil)
