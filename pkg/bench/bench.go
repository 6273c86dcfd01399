// Package bench records per-node timing for every run.
//
// A [Sink] receives run and node events and persists them somewhere: an
// append-only benchmarks.log ([FileSink]), a Redis list ([RedisSink]), a
// MongoDB collection ([MongoSink]), or nowhere ([NullSink]). [Hooks] adapts
// a sink to the scheduler's observability hooks.
//
// Sinks are best effort. A sink error is logged and never aborts a run.
package bench

import (
	"context"
	"time"
)

// Record is the timing of one finished node.
type Record struct {
	RunID    string        `json:"run_id" bson:"run_id"`
	Node     string        `json:"node" bson:"node"`
	Start    time.Time     `json:"start" bson:"start"`
	End      time.Time     `json:"end" bson:"end"`
	Duration time.Duration `json:"duration_ns" bson:"duration_ns"`
	ExitCode int           `json:"exit_code" bson:"exit_code"`
	Error    string        `json:"error,omitempty" bson:"error,omitempty"`
}

// NewRecord builds a record, deriving Duration and Error.
func NewRecord(runID, node string, start, end time.Time, exitCode int, err error) Record {
	r := Record{
		RunID:    runID,
		Node:     node,
		Start:    start,
		End:      end,
		Duration: end.Sub(start),
		ExitCode: exitCode,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Sink persists timing events.
type Sink interface {
	// RunStarted marks the beginning of a run.
	RunStarted(ctx context.Context, runID string, start time.Time) error

	// NodeStarted records a node launch.
	NodeStarted(ctx context.Context, runID, node string, start time.Time) error

	// NodeFinished records a finished node.
	NodeFinished(ctx context.Context, rec Record) error

	// RunFinished marks the end of a run.
	RunFinished(ctx context.Context, runID string, start, end time.Time, err error) error

	// Close releases the sink's resources.
	Close() error
}

// NullSink discards everything.
type NullSink struct{}

// NewNullSink returns a sink that records nothing.
func NewNullSink() Sink { return NullSink{} }

func (NullSink) RunStarted(context.Context, string, time.Time) error                    { return nil }
func (NullSink) NodeStarted(context.Context, string, string, time.Time) error           { return nil }
func (NullSink) NodeFinished(context.Context, Record) error                             { return nil }
func (NullSink) RunFinished(context.Context, string, time.Time, time.Time, error) error { return nil }
func (NullSink) Close() error                                                           { return nil }

var _ Sink = NullSink{}
