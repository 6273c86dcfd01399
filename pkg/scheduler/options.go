package scheduler

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/batchtower/pkg/observability"
	"github.com/matzehuels/batchtower/pkg/resource"
)

// DefaultPollInterval is the pause between visits of the running set.
const DefaultPollInterval = 500 * time.Millisecond

// Gate admits launches once host resources allow. [resource.Gate]
// implements it.
type Gate interface {
	Wait(ctx context.Context, th resource.Thresholds, timeout time.Duration) error
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithDeadline bounds the wall-clock time of the whole run. A deadline of
// zero or less aborts before any node is launched.
func WithDeadline(d time.Duration) Option {
	return func(s *Scheduler) { s.deadline = &d }
}

// WithPollInterval sets the sleep between visits of the running set.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithResources enables admission control: before every launch the
// scheduler waits on gate until th is satisfied.
func WithResources(gate Gate, th resource.Thresholds) Option {
	return func(s *Scheduler) {
		s.gate = gate
		s.thresholds = th
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHooks sets the run event hooks. The default is observability.Run().
func WithHooks(h observability.RunHooks) Option {
	return func(s *Scheduler) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithRunID sets the identifier reported in hooks and the result. The
// default is a random UUID.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.runID = id
		}
	}
}
