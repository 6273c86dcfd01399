package cli

import (
	"fmt"
	"strings"

	"github.com/matzehuels/batchtower/pkg/config"
	"github.com/matzehuels/batchtower/pkg/resource"
)

// describeThresholds renders the configured limits, e.g.
// "cpu_percent <= 80, disk_free_mb >= 512".
func describeThresholds(cfg *config.Config) string {
	th := cfg.Resources
	var parts []string
	add := func(m resource.Metric, op string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s %s %g", m, op, *v))
		}
	}
	add(resource.MetricCPU, "<=", th.CPUPercent)
	add(resource.MetricMemory, "<=", th.MemoryPercent)
	add(resource.MetricDisk, ">=", th.DiskFreeMB)
	add(resource.MetricLoad, "<=", th.LoadAvg1m)
	return strings.Join(parts, ", ")
}

// describeMigration renders a migration section, e.g.
// "get_ids.py -> process_chunk.py, chunks of 10, dynamic up to 50% memory".
func describeMigration(m *config.Migration) string {
	s := fmt.Sprintf("%s -> %s, chunks of %d", m.GetIDs, m.ProcessChunk, m.ChunkSize)
	switch {
	case m.DynamicChunkSize:
		s += fmt.Sprintf(", dynamic up to %g%% memory", m.MaxMemoryPercent)
	case !m.Tracking():
		s += ", memory not tracked"
	}
	return s
}
