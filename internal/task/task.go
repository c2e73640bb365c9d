package task

import (
	"context"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
)

// TaskStore is the narrow persistence surface the processing engine needs.
// It is a subset of store.BatchTaskStore so the engine can be tested with a
// small in-memory fake.
// Version: 1.0
type TaskStore interface {
	// GetPendingItems retrieves the non-terminal items of a task, oldest
	// first. This includes items left in processing by an interrupted run.
	GetPendingItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error)

	// MarkItemProcessing moves a pending item to processing status.
	MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error

	// CompleteItem finalizes an item and atomically advances its task's
	// counters, returning the task with fresh counters. Reporting an item
	// that already reached a terminal state returns store.ErrItemTerminal
	// and changes nothing.
	CompleteItem(ctx context.Context, taskID, itemID uuid.UUID, outcome domain.ItemOutcome) (*domain.BatchTask, error)

	// ListUnfinishedTaskIDs returns the IDs of tasks that still have
	// unprocessed items, oldest first.
	ListUnfinishedTaskIDs(ctx context.Context) ([]uuid.UUID, error)
}
