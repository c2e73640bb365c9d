package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of a batch task
type TaskStatus string

// Possible task status values. Transitions are monotonic:
// pending -> processing -> completed.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Common validation errors for BatchTask
var (
	ErrEmptyTaskID     = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID = errors.New("task user ID cannot be empty")
	ErrNegativeCount   = errors.New("task counters cannot be negative")
	ErrCounterMismatch = errors.New("processed count must equal success count plus failed count")
	ErrProgressRange   = errors.New("progress must be between 0 and 100")
)

// BatchTask represents one batch recognition job submitted by a user.
// It aggregates the processing state of its items: TotalCount is fixed at
// creation, the remaining counters are advanced one item-completion at a
// time by the progress aggregator.
type BatchTask struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	TotalCount     int        `json:"total_count"`
	ProcessedCount int        `json:"processed_count"`
	SuccessCount   int        `json:"success_count"`
	FailedCount    int        `json:"failed_count"`
	Progress       int        `json:"progress"`
	Status         TaskStatus `json:"status"`
	TotalSize      int64      `json:"total_size"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewBatchTask creates a new BatchTask for the given user with the given
// item count and total input size. The name is defaulted when blank.
// The task starts in pending status with all counters at zero.
// Returns an error if validation fails.
func NewBatchTask(userID uuid.UUID, name, description string, totalCount int, totalSize int64) (*BatchTask, error) {
	now := time.Now().UTC()

	if name == "" {
		name = fmt.Sprintf("batch-%s", now.Format("20060102-150405"))
	}

	task := &BatchTask{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: description,
		TotalCount:  totalCount,
		Status:      TaskStatusPending,
		TotalSize:   totalSize,
		CreatedAt:   now,
		StartedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the BatchTask has valid data.
// Returns an error if any field or aggregate invariant fails validation.
func (t *BatchTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.TotalCount < 0 || t.ProcessedCount < 0 || t.SuccessCount < 0 || t.FailedCount < 0 {
		return ErrNegativeCount
	}

	if t.ProcessedCount != t.SuccessCount+t.FailedCount {
		return ErrCounterMismatch
	}

	if t.Progress < 0 || t.Progress > 100 {
		return ErrProgressRange
	}

	return nil
}

// ComputeProgress returns the percentage of items that have reached a
// terminal state, or 0 for the degenerate zero-item case.
func (t *BatchTask) ComputeProgress() int {
	if t.TotalCount == 0 {
		return 0
	}
	return t.ProcessedCount * 100 / t.TotalCount
}

// IsComplete reports whether every item of the task has been processed.
func (t *BatchTask) IsComplete() bool {
	return t.TotalCount > 0 && t.ProcessedCount == t.TotalCount
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// ParseTaskStatus converts a string into a TaskStatus.
// Returns ErrInvalidTaskStatus for values outside the closed set.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !isValidTaskStatus(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, s)
	}
	return status, nil
}

// UserTaskStats summarizes a user's batch tasks by status.
// PendingTasks is derived, never stored.
type UserTaskStats struct {
	TotalTasks      int64 `json:"total_tasks"`
	CompletedTasks  int64 `json:"completed_tasks"`
	ProcessingTasks int64 `json:"processing_tasks"`
	PendingTasks    int64 `json:"pending_tasks"`
}
