package recognition

import "errors"

// Common errors returned by the recognition package
var (
	// ErrRecognitionFailed is returned when recognition fails for any general reason
	ErrRecognitionFailed = errors.New("failed to recognize image")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from vision model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by vision model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during image recognition")

	// ErrInvalidConfig is returned when the recognizer configuration is invalid
	ErrInvalidConfig = errors.New("invalid recognizer configuration")

	// ErrEmptyImage is returned when an empty image payload is submitted
	ErrEmptyImage = errors.New("image payload cannot be empty")
)
