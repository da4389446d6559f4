// Package progress defines the callback contract the pipeline engines use to
// report page and batch progress without knowing who is listening.
package progress

import (
	"context"

	"go.uber.org/zap"
)

// Reporter receives progress updates. total is 0 when the extent of the work
// is not yet known (the provider has not reported total pages, or the backlog
// is drained in batches of unknown count).
type Reporter func(current, total int, message string)

// Nop discards all updates.
func Nop(int, int, string) {}

// Logger returns a Reporter that logs each update at info level.
func Logger(component string) Reporter {
	log := zap.L().With(zap.String("component", component))
	return func(current, total int, message string) {
		log.Info(message, zap.Int("current", current), zap.Int("total", total))
	}
}

// RunUpdater is the subset of the store the run-tracking reporter needs.
type RunUpdater interface {
	UpdateRunProgress(ctx context.Context, id string, current, total int, message string) error
}

// Run returns a Reporter that persists updates to a pipeline run record and
// also forwards them to next. Persistence failures are logged, never fatal;
// losing a progress tick must not fail the run itself.
func Run(ctx context.Context, store RunUpdater, runID string, next Reporter) Reporter {
	log := zap.L().With(zap.String("component", "progress"), zap.String("run_id", runID))
	return func(current, total int, message string) {
		if err := store.UpdateRunProgress(ctx, runID, current, total, message); err != nil {
			log.Warn("failed to persist run progress", zap.Error(err))
		}
		if next != nil {
			next(current, total, message)
		}
	}
}
