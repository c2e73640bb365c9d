package service

import (
	"errors"
	"fmt"

	"github.com/tovell/argus-api/internal/store"
)

// Common sentinel errors for TaskService
var (
	// ErrTaskNotFound indicates that the task does not exist or belongs to a
	// different user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrValidation indicates the request was rejected before any work
	// started. The wrapped error carries the specific violation.
	ErrValidation = errors.New("validation failed")
)

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "delete_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// It returns known sentinel errors directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	// Service-defined sentinels pass through untouched
	if errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrValidation) {
		return err
	}

	// Store-level sentinels map to service-level ones
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	if errors.Is(err, store.ErrInvalidEntity) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
