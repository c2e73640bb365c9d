package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
)

// TaskProgress is the snapshot served by the get-progress operation and
// cached between counter updates.
type TaskProgress struct {
	TaskID         uuid.UUID         `json:"task_id"`
	UserID         uuid.UUID         `json:"user_id"`
	Status         domain.TaskStatus `json:"status"`
	TotalCount     int               `json:"total_count"`
	ProcessedCount int               `json:"processed_count"`
	SuccessCount   int               `json:"success_count"`
	FailedCount    int               `json:"failed_count"`
	Progress       int               `json:"progress"`
}

// ProgressOf builds a progress snapshot from a task.
func ProgressOf(task *domain.BatchTask) *TaskProgress {
	return &TaskProgress{
		TaskID:         task.ID,
		UserID:         task.UserID,
		Status:         task.Status,
		TotalCount:     task.TotalCount,
		ProcessedCount: task.ProcessedCount,
		SuccessCount:   task.SuccessCount,
		FailedCount:    task.FailedCount,
		Progress:       task.Progress,
	}
}

// ProgressCache caches task progress snapshots so the read path never
// competes with the aggregator's writes. A cache miss is reported as
// (nil, nil); real transport failures are returned as errors.
type ProgressCache interface {
	// Get returns the cached snapshot for the task, or (nil, nil) on a miss.
	Get(ctx context.Context, taskID uuid.UUID) (*TaskProgress, error)

	// Set stores the snapshot, replacing any previous value.
	Set(ctx context.Context, progress *TaskProgress) error

	// Invalidate drops the cached snapshot for the task.
	Invalidate(ctx context.Context, taskID uuid.UUID) error
}
