package migrate

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/batchtower/pkg/observability"
)

// Option configures a [Migrator].
type Option func(*Migrator)

// WithChunkSize sets the number of IDs per chunk. With dynamic sizing it
// is the size of the first chunk and the fallback when a chunk's memory
// could not be measured.
func WithChunkSize(n int) Option {
	return func(m *Migrator) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithMemory enables memory tracking. Nil disables it.
func WithMemory(mem Memory) Option {
	return func(m *Migrator) { m.memory = mem }
}

// WithDynamicChunkSize resizes chunks so that the estimated peak memory of
// the next chunk stays within maxPercent of host memory. It has no effect
// without [WithMemory].
func WithDynamicChunkSize(maxPercent float64) Option {
	return func(m *Migrator) {
		m.dynamic = true
		if maxPercent > 0 {
			m.maxPercent = maxPercent
		}
	}
}

// WithTimeout bounds every task launch. Zero means unlimited.
func WithTimeout(d time.Duration) Option {
	return func(m *Migrator) { m.timeout = d }
}

// WithPollInterval sets the pause between polls of a running task.
func WithPollInterval(d time.Duration) Option {
	return func(m *Migrator) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHooks sets the event hooks. Chunks are reported as nodes named
// after the chunk task and the chunk index.
func WithHooks(h observability.RunHooks) Option {
	return func(m *Migrator) {
		if h != nil {
			m.hooks = h
		}
	}
}

// WithRunID sets the identifier reported in hooks and the result.
func WithRunID(id string) Option {
	return func(m *Migrator) {
		if id != "" {
			m.runID = id
		}
	}
}
