package batch

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// ParseSchedule validates a cron expression. Both five-field expressions
// and descriptors such as "@hourly" or "@every 10m" are accepted.
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "invalid schedule %q", spec)
	}
	return s, nil
}

// Schedule runs load's configuration on every tick of spec until ctx is
// canceled. The configuration is reloaded for every run so edits take
// effect without a restart. A tick that fires while the previous run is
// still going is skipped. Run errors are logged; only an invalid schedule
// is returned.
func (r *Runner) Schedule(ctx context.Context, spec string, load func() (*config.Config, error)) error {
	if _, err := ParseSchedule(spec); err != nil {
		return err
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{r}),
		cron.SkipIfStillRunning(cronLogger{r}),
	))
	if _, err := c.AddFunc(spec, func() { r.tick(ctx, load) }); err != nil {
		return bterrors.Wrap(bterrors.ErrCodeConfig, err, "invalid schedule %q", spec)
	}

	r.Logger.Info("scheduler started", "schedule", spec)
	c.Start()
	<-ctx.Done()
	r.Logger.Info("stopping scheduler, waiting for the current run")
	<-c.Stop().Done()
	return nil
}

func (r *Runner) tick(ctx context.Context, load func() (*config.Config, error)) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := load()
	if err != nil {
		r.Logger.Error("failed to load configuration", "err", err)
		return
	}
	res, err := r.Execute(ctx, cfg)
	switch {
	case bterrors.Is(err, bterrors.ErrCodeLockHeld):
		r.Logger.Warn("skipping run, another instance holds the lock", "err", err)
	case err != nil:
		r.Logger.Error("scheduled run failed", "code", bterrors.GetCode(err), "err", err)
	default:
		r.Logger.Info("scheduled run completed", "run", res.RunID, "duration", res.Duration())
	}
}

// cronLogger adapts the runner's logger to cron.Logger.
type cronLogger struct{ r *Runner }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.r.Logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.r.Logger.Error(msg, append(keysAndValues, "err", err)...)
}
