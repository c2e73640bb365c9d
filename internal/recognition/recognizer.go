package recognition

import (
	"context"

	"github.com/tovell/argus-api/internal/domain"
)

// Params carries per-image hints passed to the recognizer.
type Params struct {
	// MIMEType of the image payload, e.g. "image/jpeg".
	MIMEType string

	// FileName of the original upload, used only for logging.
	FileName string
}

// Recognizer defines the interface for image recognition services.
// Calls are synchronous from the caller's point of view and may be slow
// (network-bound); callers bound them with a context deadline.
type Recognizer interface {
	// Recognize analyzes the given image bytes and returns the recognized
	// label, category and confidence, or an error.
	Recognize(ctx context.Context, image []byte, params Params) (*domain.RecognitionResult, error)
}
