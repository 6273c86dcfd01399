package resource

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// Unbounded as a Wait timeout means wait until the thresholds pass or the
// context is canceled.
const Unbounded time.Duration = -1

// DefaultPollInterval is the pause between sampling cycles.
const DefaultPollInterval = 5 * time.Second

// Gate blocks task launches until the host has enough headroom.
type Gate struct {
	Probe        Probe
	Dir          string        // Directory whose free space is checked
	PollInterval time.Duration // Zero means DefaultPollInterval
	Logger       *log.Logger

	// OnWait, if set, is called once per failing cycle with its readings.
	OnWait func(ctx context.Context, readings Readings)
}

// NewGate returns a gate sampling probe. A nil probe uses [SystemProbe]
// and a nil logger uses log.Default().
func NewGate(probe Probe, dir string, logger *log.Logger) *Gate {
	if probe == nil {
		probe = NewSystemProbe()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{
		Probe:        probe,
		Dir:          dir,
		PollInterval: DefaultPollInterval,
		Logger:       logger,
	}
}

func (g *Gate) interval() time.Duration {
	if g.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return g.PollInterval
}

func (g *Gate) logger() *log.Logger {
	if g.Logger == nil {
		return log.Default()
	}
	return g.Logger
}

// Check samples every configured metric once and evaluates it against th.
//
// A probe error on CPU, memory or disk fails that reading. An unsupported
// load average passes.
func (g *Gate) Check(ctx context.Context, th Thresholds) Readings {
	var rs Readings

	if th.CPUPercent != nil {
		v, err := g.Probe.CPUPercent(ctx)
		rs = append(rs, upper(MetricCPU, v, *th.CPUPercent, err))
	}
	if th.MemoryPercent != nil {
		v, err := g.Probe.MemoryPercent(ctx)
		rs = append(rs, upper(MetricMemory, v, *th.MemoryPercent, err))
	}
	if th.DiskFreeMB != nil {
		v, err := g.Probe.DiskFreeMB(ctx, g.Dir)
		r := Reading{Metric: MetricDisk, Value: v, Limit: *th.DiskFreeMB, Err: err}
		r.OK = err == nil && v >= *th.DiskFreeMB
		rs = append(rs, r)
	}
	if th.LoadAvg1m != nil {
		v, err := g.Probe.LoadAvg1m(ctx)
		r := upper(MetricLoad, v, *th.LoadAvg1m, err)
		if errors.Is(err, ErrUnsupported) {
			r = Reading{Metric: MetricLoad, Limit: *th.LoadAvg1m, OK: true, Unsupported: true}
		}
		rs = append(rs, r)
	}
	return rs
}

func upper(m Metric, v, limit float64, err error) Reading {
	return Reading{Metric: m, Value: v, Limit: limit, Err: err, OK: err == nil && v <= limit}
}

// Wait blocks until one sampling cycle passes every threshold in th.
//
// With no thresholds configured Wait returns immediately. Otherwise it
// samples, and on failure sleeps the poll interval and samples again. If
// timeout is not [Unbounded] and it elapses without a passing cycle, Wait
// returns RESOURCE_TIMEOUT; a zero timeout allows exactly one cycle. Sleeps
// are shortened so that Wait never overshoots the timeout. Canceling ctx
// returns CANCELED.
func (g *Gate) Wait(ctx context.Context, th Thresholds, timeout time.Duration) error {
	if th.Empty() {
		return nil
	}

	start := time.Now()
	interval := g.interval()
	var lastLog time.Time

	for {
		readings := g.Check(ctx, th)
		if readings.OK() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return bterrors.Wrap(bterrors.ErrCodeCanceled, err, "resource wait interrupted")
		}

		elapsed := time.Since(start)
		if timeout != Unbounded && elapsed >= timeout {
			return bterrors.New(bterrors.ErrCodeResourceTimeout,
				"resources unavailable after %s: %s", elapsed.Round(time.Millisecond), readings.Failing())
		}

		if lastLog.IsZero() || time.Since(lastLog) >= interval {
			g.logger().Warn("waiting for resources", "failing", readings.Failing())
			lastLog = time.Now()
		}
		if g.OnWait != nil {
			g.OnWait(ctx, readings)
		}

		sleep := interval
		if timeout != Unbounded {
			if remaining := timeout - elapsed; remaining < sleep {
				sleep = remaining
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return bterrors.Wrap(bterrors.ErrCodeCanceled, ctx.Err(), "resource wait interrupted")
		case <-timer.C:
		}
	}
}
