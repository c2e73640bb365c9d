package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewBatchTask(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	task, err := NewBatchTask(userID, "vacation photos", "beach trip", 3, 4096)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}

	if task.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, task.UserID)
	}

	if task.Status != TaskStatusPending {
		t.Errorf("Expected status %s, got %s", TaskStatusPending, task.Status)
	}

	if task.TotalCount != 3 {
		t.Errorf("Expected total count 3, got %d", task.TotalCount)
	}

	if task.ProcessedCount != 0 || task.SuccessCount != 0 || task.FailedCount != 0 {
		t.Errorf("Expected zero counters, got processed=%d success=%d failed=%d",
			task.ProcessedCount, task.SuccessCount, task.FailedCount)
	}

	if task.Progress != 0 {
		t.Errorf("Expected progress 0, got %d", task.Progress)
	}

	if task.EndedAt != nil {
		t.Error("Expected nil end time on a new task")
	}
}

func TestNewBatchTask_DefaultsName(t *testing.T) {
	t.Parallel()

	task, err := NewBatchTask(uuid.New(), "", "", 1, 10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.Name == "" {
		t.Error("Expected a defaulted name for a blank input, got empty string")
	}
}

func TestNewBatchTask_RequiresUserID(t *testing.T) {
	t.Parallel()

	_, err := NewBatchTask(uuid.Nil, "x", "", 1, 10)
	if !errors.Is(err, ErrEmptyTaskUserID) {
		t.Errorf("Expected ErrEmptyTaskUserID, got %v", err)
	}
}

func TestBatchTask_Validate(t *testing.T) {
	t.Parallel()

	base := func() *BatchTask {
		task, err := NewBatchTask(uuid.New(), "x", "", 4, 100)
		if err != nil {
			t.Fatalf("Failed to create base task: %v", err)
		}
		return task
	}

	tests := []struct {
		name    string
		mutate  func(*BatchTask)
		wantErr error
	}{
		{
			name:    "counter mismatch",
			mutate:  func(bt *BatchTask) { bt.ProcessedCount = 2; bt.SuccessCount = 1; bt.FailedCount = 0 },
			wantErr: ErrCounterMismatch,
		},
		{
			name:    "negative counter",
			mutate:  func(bt *BatchTask) { bt.FailedCount = -1 },
			wantErr: ErrNegativeCount,
		},
		{
			name:    "progress above 100",
			mutate:  func(bt *BatchTask) { bt.Progress = 101 },
			wantErr: ErrProgressRange,
		},
		{
			name:    "invalid status",
			mutate:  func(bt *BatchTask) { bt.Status = "cancelled" },
			wantErr: ErrInvalidTaskStatus,
		},
		{
			name:    "valid partial progress",
			mutate:  func(bt *BatchTask) { bt.ProcessedCount = 2; bt.SuccessCount = 1; bt.FailedCount = 1; bt.Progress = 50 },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			task := base()
			tt.mutate(task)

			err := task.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBatchTask_ComputeProgress(t *testing.T) {
	t.Parallel()

	task, _ := NewBatchTask(uuid.New(), "x", "", 3, 0)

	if got := task.ComputeProgress(); got != 0 {
		t.Errorf("Expected progress 0 for fresh task, got %d", got)
	}

	task.ProcessedCount = 1
	if got := task.ComputeProgress(); got != 33 {
		t.Errorf("Expected progress 33 after 1 of 3, got %d", got)
	}

	task.ProcessedCount = 3
	if got := task.ComputeProgress(); got != 100 {
		t.Errorf("Expected progress 100 after 3 of 3, got %d", got)
	}

	// Degenerate zero-item case must not divide by zero.
	task.TotalCount = 0
	task.ProcessedCount = 0
	if got := task.ComputeProgress(); got != 0 {
		t.Errorf("Expected progress 0 for zero-item task, got %d", got)
	}
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseTaskStatus("processing")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if status != TaskStatusProcessing {
		t.Errorf("Expected %s, got %s", TaskStatusProcessing, status)
	}

	_, err = ParseTaskStatus("exploded")
	if !errors.Is(err, ErrInvalidTaskStatus) {
		t.Errorf("Expected ErrInvalidTaskStatus, got %v", err)
	}
}
