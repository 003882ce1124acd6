package worker

import (
	"context"
	"time"

	"weeklytotals/internal/core"
	applog "weeklytotals/internal/log"
)

// RolloverRunner carries overspend from the previous week into the current one.
type RolloverRunner interface {
	Process(ctx context.Context, now time.Time) (bool, error)
}

// RolloverWorker runs the rollover check at startup and then on every tick.
type RolloverWorker struct {
	runner   RolloverRunner
	logger   *applog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewRolloverWorker(runner RolloverRunner, logger *applog.Logger, interval time.Duration) *RolloverWorker {
	return &RolloverWorker{
		runner:   runner,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. A failed check is logged and retried on
// the next tick.
func (w *RolloverWorker) Run(ctx context.Context) error {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Rollover worker stopping")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single rollover check and reports whether an adjustment
// was created.
func (w *RolloverWorker) RunOnce(ctx context.Context) bool {
	now := w.now()
	began := time.Now()
	created, err := w.runner.Process(ctx, now)
	fields := applog.NewFields().
		WithOperation(applog.OpRollover).
		WithWeek(core.WeekStart(now)).
		WithDuration(time.Since(began).Milliseconds())

	if err != nil {
		w.logger.ErrorContext(ctx, "Rollover check failed", fields.WithError(err).Args()...)
		return false
	}

	fields[applog.FieldCreated] = created
	w.logger.InfoContext(ctx, "Rollover check complete", fields.Args()...)
	return created
}
