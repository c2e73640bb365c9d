// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTaskStatus is returned when a task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidItemStatus is returned when an item status is not valid.
	ErrInvalidItemStatus = errors.New("invalid item status")

	// ErrItemTerminal is returned when attempting to change the status of an
	// item that has already reached a terminal state (success or failed).
	ErrItemTerminal = errors.New("item is already in a terminal state")

	// ErrEmptyItemSet is returned when a batch task is created without items.
	ErrEmptyItemSet = errors.New("batch task must contain at least one item")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
