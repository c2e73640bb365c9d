package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the processing state of a single batch item
type ItemStatus string

// Possible item status values. Once an item reaches success or failed it
// never changes again.
const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusSuccess    ItemStatus = "success"
	ItemStatusFailed     ItemStatus = "failed"
)

// Common validation errors for BatchItem
var (
	ErrEmptyItemID       = errors.New("item ID cannot be empty")
	ErrEmptyItemTaskID   = errors.New("item task ID cannot be empty")
	ErrEmptyItemFileName = errors.New("item file name cannot be empty")
	ErrNegativeFileSize  = errors.New("item file size cannot be negative")
)

// RecognitionResult is the payload produced by the recognition collaborator
// for a successfully processed image.
type RecognitionResult struct {
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// BatchItem represents one image within a batch task with its own
// independent processing outcome. Result is present only on success,
// ErrorMessage only on failure.
type BatchItem struct {
	ID            uuid.UUID          `json:"id"`
	TaskID        uuid.UUID          `json:"task_id"`
	FileName      string             `json:"file_name"`
	FileSize      int64              `json:"file_size"`
	StorageHandle string             `json:"storage_handle"`
	Status        ItemStatus         `json:"status"`
	Result        *RecognitionResult `json:"result,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewBatchItem creates a new pending BatchItem belonging to the given task.
// Returns an error if validation fails.
func NewBatchItem(taskID uuid.UUID, fileName string, fileSize int64, storageHandle string) (*BatchItem, error) {
	item := &BatchItem{
		ID:            uuid.New(),
		TaskID:        taskID,
		FileName:      fileName,
		FileSize:      fileSize,
		StorageHandle: storageHandle,
		Status:        ItemStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the BatchItem has valid data.
func (i *BatchItem) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyItemID
	}

	if i.TaskID == uuid.Nil {
		return ErrEmptyItemTaskID
	}

	if i.FileName == "" {
		return ErrEmptyItemFileName
	}

	if i.FileSize < 0 {
		return ErrNegativeFileSize
	}

	if !isValidItemStatus(i.Status) {
		return ErrInvalidItemStatus
	}

	return nil
}

// IsTerminal reports whether the item has reached a final state.
func (i *BatchItem) IsTerminal() bool {
	return i.Status == ItemStatusSuccess || i.Status == ItemStatusFailed
}

// isValidItemStatus checks if the given status is a valid ItemStatus.
func isValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusPending, ItemStatusProcessing, ItemStatusSuccess, ItemStatusFailed:
		return true
	default:
		return false
	}
}

// ItemOutcome is the result of processing a single item, reported by the
// dispatcher to the progress aggregator. Exactly one of Result or
// ErrorMessage is meaningful, selected by Success.
type ItemOutcome struct {
	Success      bool
	Result       *RecognitionResult
	ErrorMessage string
}

// SuccessOutcome builds an outcome for a successfully recognized item.
func SuccessOutcome(result *RecognitionResult) ItemOutcome {
	return ItemOutcome{Success: true, Result: result}
}

// FailureOutcome builds an outcome for an item whose recognition failed.
func FailureOutcome(message string) ItemOutcome {
	return ItemOutcome{Success: false, ErrorMessage: message}
}

// TerminalStatus returns the item status this outcome maps to.
func (o ItemOutcome) TerminalStatus() ItemStatus {
	if o.Success {
		return ItemStatusSuccess
	}
	return ItemStatusFailed
}
