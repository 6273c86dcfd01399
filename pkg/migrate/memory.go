package migrate

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Memory measures memory in bytes.
type Memory interface {
	// RSS returns the resident set size of pid.
	RSS(ctx context.Context, pid int) (uint64, error)
	// Total returns the physical memory of the host.
	Total(ctx context.Context) (uint64, error)
}

// SystemMemory reads memory from the local operating system.
type SystemMemory struct{}

func (SystemMemory) RSS(ctx context.Context, pid int) (uint64, error) {
	if pid <= 0 || int64(pid) > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

func (SystemMemory) Total(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

var _ Memory = SystemMemory{}
