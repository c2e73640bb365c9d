package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeBatchRecognition marks an event requesting dispatch of a batch
// recognition task.
const EventTypeBatchRecognition = "batch_recognition"

// BatchRequestEvent represents a request to process a batch task in the
// background. It carries the task reference without direct dependencies on
// the task package.
type BatchRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates the kind of work requested
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *BatchRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewBatchRequestEvent creates a new BatchRequestEvent with the specified
// type and payload.
func NewBatchRequestEvent(eventType string, payload interface{}) (*BatchRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &BatchRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// BatchRequestPayload is the payload of an EventTypeBatchRecognition event.
type BatchRequestPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	UserID uuid.UUID `json:"user_id"`
}

// EventHandler processes emitted events.
type EventHandler interface {
	// HandleEvent processes the given event. Implementations should return
	// quickly and hand long-running work to background machinery.
	HandleEvent(ctx context.Context, event *BatchRequestEvent) error
}

// EventEmitter publishes events to registered handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *BatchRequestEvent) error
}
