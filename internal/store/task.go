package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
)

// ListFilter narrows a task listing. Status is optional; Page is 1-based.
type ListFilter struct {
	Status *domain.TaskStatus
	Page   int
	Size   int
}

// BatchTaskStore defines the interface for batch task and item persistence.
// Version: 1.0
type BatchTaskStore interface {
	// CreateWithItems saves a task and all of its items as a single atomic
	// unit. A task without its full item set must never be observable, so
	// implementations wrap the inserts in one transaction (or are handed
	// one via WithTx). All entities must pass domain validation.
	CreateWithItems(ctx context.Context, task *domain.BatchTask, items []*domain.BatchItem) error

	// GetByID retrieves a task owned by the given user.
	// Returns ErrTaskNotFound if the task does not exist or belongs to a
	// different user; callers cannot tell the two cases apart.
	GetByID(ctx context.Context, taskID, userID uuid.UUID) (*domain.BatchTask, error)

	// GetItems retrieves all items of a task ordered by creation time
	// ascending.
	GetItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error)

	// GetPendingItems retrieves the items of a task that have not reached a
	// terminal status, ordered by creation time ascending. Items stuck in
	// processing after an interrupted run are included so re-dispatch can
	// finish them.
	GetPendingItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error)

	// ListByUser returns one page of the user's tasks ordered by creation
	// time descending, plus the total number of matching tasks.
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]*domain.BatchTask, int64, error)

	// CountByStatus returns the number of the user's tasks per status.
	CountByStatus(ctx context.Context, userID uuid.UUID) (map[domain.TaskStatus]int64, error)

	// Delete removes a task and all of its items. Items are removed before
	// the task so orphan items can never exist. Returns ErrTaskNotFound
	// under the same ownership rule as GetByID.
	Delete(ctx context.Context, taskID, userID uuid.UUID) error

	// MarkItemProcessing moves a pending item to processing status.
	// Returns ErrItemTerminal if the item already holds a terminal status
	// and ErrItemNotFound if it does not exist.
	MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error

	// CompleteItem finalizes an item with the given outcome and applies the
	// matching counter increments to its task in a single atomic update
	// against the stored values: processed_count always advances by one,
	// success_count or failed_count by one, and progress, status, and end
	// time are recomputed in the same statement. Implementations must never
	// read counters and write back externally computed totals, since items
	// of one task complete concurrently.
	//
	// Returns the task with its fresh counters. Returns ErrItemTerminal
	// without touching any counter if the item already reached a terminal
	// state, and ErrTaskNotFound if the task was deleted while the item was
	// in flight.
	CompleteItem(ctx context.Context, taskID, itemID uuid.UUID, outcome domain.ItemOutcome) (*domain.BatchTask, error)

	// ListUnfinishedTaskIDs returns the IDs of tasks that still have
	// unprocessed items, oldest first. Used for dispatch recovery at
	// startup.
	ListUnfinishedTaskIDs(ctx context.Context) ([]uuid.UUID, error)

	// WithTx returns a new BatchTaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller
	// (typically via RunInTransaction).
	WithTx(tx *sql.Tx) BatchTaskStore
}
