package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/store"
)

// defaultReportRetries bounds how often a failed counter update is retried
// before the outcome is dropped.
const defaultReportRetries = 3

// reportRetryBaseDelay is the backoff unit between report retries.
const reportRetryBaseDelay = 100 * time.Millisecond

// Aggregator folds per-item outcomes into task counters. Every report goes
// through the store's atomic increment path, so any number of workers can
// report concurrently without losing updates. Fresh counters are written
// through to the progress cache when one is configured.
type Aggregator struct {
	store   TaskStore
	cache   store.ProgressCache
	retries int
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator. cache may be nil, in which case
// write-through is skipped. retries <= 0 falls back to the default.
func NewAggregator(taskStore TaskStore, cache store.ProgressCache, retries int, logger *slog.Logger) *Aggregator {
	if taskStore == nil {
		panic("taskStore cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retries <= 0 {
		retries = defaultReportRetries
	}

	return &Aggregator{
		store:   taskStore,
		cache:   cache,
		retries: retries,
		logger:  logger.With(slog.String("component", "progress_aggregator")),
	}
}

// Report records one item outcome against its task. It retries transient
// storage failures with linear backoff before giving up; a dropped report is
// logged loudly since it leaves the task's counters short.
//
// Reports for items that already reached a terminal state, and reports for
// tasks deleted while the item was in flight, are silently absorbed: both
// are expected under concurrent delivery and deletion.
//
// Returns the task with fresh counters, or nil when the report was a no-op.
func (a *Aggregator) Report(
	ctx context.Context,
	taskID, itemID uuid.UUID,
	outcome domain.ItemOutcome,
) (*domain.BatchTask, error) {
	var lastErr error

	for attempt := 0; attempt < a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * reportRetryBaseDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		updated, err := a.store.CompleteItem(ctx, taskID, itemID, outcome)
		if err == nil {
			a.writeThrough(ctx, updated)
			return updated, nil
		}

		if errors.Is(err, store.ErrItemTerminal) {
			a.logger.Debug("ignoring duplicate outcome for terminal item",
				slog.String("task_id", taskID.String()),
				slog.String("item_id", itemID.String()))
			return nil, nil
		}

		if errors.Is(err, store.ErrTaskNotFound) {
			a.logger.Debug("dropping outcome for deleted task",
				slog.String("task_id", taskID.String()),
				slog.String("item_id", itemID.String()))
			return nil, nil
		}

		lastErr = err
		a.logger.Warn("failed to record item outcome, retrying",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()),
			slog.String("item_id", itemID.String()),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", a.retries))
	}

	a.logger.Error("dropping item outcome after exhausting retries",
		slog.String("error", lastErr.Error()),
		slog.String("task_id", taskID.String()),
		slog.String("item_id", itemID.String()))
	return nil, lastErr
}

// writeThrough refreshes the cached progress snapshot. Cache failures only
// degrade read freshness, so they are logged and swallowed.
func (a *Aggregator) writeThrough(ctx context.Context, updated *domain.BatchTask) {
	if a.cache == nil || updated == nil {
		return
	}

	snapshot := store.ProgressOf(updated)
	if err := a.cache.Set(ctx, snapshot); err != nil {
		a.logger.Warn("failed to refresh progress cache",
			slog.String("error", err.Error()),
			slog.String("task_id", updated.ID.String()))
	}
}
