package bench

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/batchtower/pkg/observability"
)

// Hooks forwards scheduler events to a [Sink]. Sink errors are logged at
// warn level and otherwise ignored.
type Hooks struct {
	observability.NoopRunHooks
	Sink   Sink
	Logger *log.Logger
}

// NewHooks returns hooks writing to sink.
func NewHooks(sink Sink, logger *log.Logger) *Hooks {
	if sink == nil {
		sink = NullSink{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hooks{Sink: sink, Logger: logger}
}

func (h *Hooks) OnRunStart(ctx context.Context, runID string, _ []string) {
	h.check("run start", h.Sink.RunStarted(ctx, runID, time.Now()))
}

func (h *Hooks) OnNodeLaunch(ctx context.Context, runID, node string, _ int, start time.Time) {
	h.check("node start", h.Sink.NodeStarted(ctx, runID, node, start))
}

func (h *Hooks) OnNodeFinish(ctx context.Context, runID, node string, start, end time.Time, exitCode int, err error) {
	h.check("node finish", h.Sink.NodeFinished(ctx, NewRecord(runID, node, start, end, exitCode, err)))
}

func (h *Hooks) OnRunEnd(ctx context.Context, runID string, start, end time.Time, _ int, err error) {
	h.check("run end", h.Sink.RunFinished(ctx, runID, start, end, err))
}

func (h *Hooks) check(event string, err error) {
	if err != nil {
		h.Logger.Warn("benchmark sink failed", "event", event, "err", err)
	}
}

var _ observability.RunHooks = (*Hooks)(nil)
