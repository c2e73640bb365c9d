package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/tovell/argus-api/internal/config"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/recognition"
	"google.golang.org/genai"
)

// GeminiRecognizer implements the recognition.Recognizer interface using
// Google's Gemini API to analyze image content.
type GeminiRecognizer struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains vision-specific configuration
	config config.VisionConfig

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// Ensure GeminiRecognizer implements recognition.Recognizer
var _ recognition.Recognizer = (*GeminiRecognizer)(nil)

// NewGeminiRecognizer creates a new instance of GeminiRecognizer with the
// provided dependencies. Returns an error if the configuration is invalid
// or the client cannot be constructed.
func NewGeminiRecognizer(ctx context.Context, logger *slog.Logger, cfg config.VisionConfig) (*GeminiRecognizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", recognition.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", recognition.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			recognition.ErrInvalidConfig, err)
	}

	return &GeminiRecognizer{
		logger: logger,
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Recognize analyzes the given image bytes and returns the recognized
// label, category and confidence.
//
// Transient API failures are retried with exponential backoff and jitter up
// to the configured number of attempts. Permanent errors (content blocked
// by safety filters, malformed responses) are returned immediately.
func (g *GeminiRecognizer) Recognize(
	ctx context.Context,
	image []byte,
	params recognition.Params,
) (*domain.RecognitionResult, error) {
	if len(image) == 0 {
		return nil, recognition.ErrEmptyImage
	}

	mimeType := params.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	schema, err := g.callGeminiWithRetry(ctx, image, mimeType, params.FileName)
	if err != nil {
		return nil, err
	}

	return g.parseResponse(ctx, schema)
}

// callGeminiWithRetry makes a call to the Gemini API with exponential
// backoff retry logic for transient errors.
func (g *GeminiRecognizer) callGeminiWithRetry(
	ctx context.Context,
	image []byte,
	mimeType string,
	fileName string,
) (*recognitionSchema, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	attempt := 0
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		g.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 3)
		maxRetries = 3
	}

	if baseDelaySeconds < 1 {
		g.logger.WarnContext(ctx, "invalid retry delay value, using default", "base_delay_seconds", 2)
		baseDelaySeconds = 2
	}

	for attempt <= maxRetries {
		attemptNum := attempt + 1
		g.logger.DebugContext(ctx, "making Gemini vision API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1,
			"file_name", fileName,
			"image_bytes", len(image))

		contents := []*genai.Content{
			genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromText(recognitionPrompt),
				genai.NewPartFromBytes(image, mimeType),
			}, genai.RoleUser),
		}

		var response *recognitionSchema
		var isTransientError bool

		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
		if err != nil {
			// Assume transport-level failures are transient.
			isTransientError = true
			g.logger.ErrorContext(ctx, "Gemini API call error",
				"error", err,
				"attempt", attemptNum)
		} else if resp == nil {
			err = fmt.Errorf("%w: nil response", recognition.ErrInvalidResponse)
		} else if len(resp.Candidates) == 0 {
			err = fmt.Errorf("%w: no content generated", recognition.ErrInvalidResponse)
		} else if resp.Candidates[0].Content == nil {
			err = fmt.Errorf("%w: empty content in response", recognition.ErrInvalidResponse)
		} else if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			err = fmt.Errorf("%w: image blocked by safety filters", recognition.ErrContentBlocked)
		} else {
			text := ""
			for _, part := range resp.Candidates[0].Content.Parts {
				text += part.Text
			}

			var parsed recognitionSchema
			if err = json.Unmarshal([]byte(text), &parsed); err != nil {
				err = fmt.Errorf("%w: failed to parse JSON response: %v", recognition.ErrInvalidResponse, err)
			} else {
				response = &parsed
			}
		}

		if err == nil {
			g.logger.DebugContext(ctx, "Gemini vision API call successful",
				"attempt", attemptNum)
			return response, nil
		}

		g.logger.ErrorContext(ctx, "Gemini vision API call failed",
			"attempt", attemptNum,
			"error", err)

		if errors.Is(err, recognition.ErrContentBlocked) || errors.Is(err, recognition.ErrInvalidResponse) {
			return nil, err
		}

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				recognition.ErrTransientFailure, maxRetries)
		}

		if !isTransientError {
			return nil, err
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", recognition.ErrTransientFailure, ctx.Err())
		}

		attempt++
	}

	return nil, fmt.Errorf("%w: failed after %d attempts",
		recognition.ErrTransientFailure, attempt)
}

// parseResponse converts a recognitionSchema into a domain.RecognitionResult,
// validating required fields and clamping confidence into [0, 1].
func (g *GeminiRecognizer) parseResponse(
	ctx context.Context,
	schema *recognitionSchema,
) (*domain.RecognitionResult, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: response is nil", recognition.ErrInvalidResponse)
	}

	if schema.Label == "" {
		return nil, fmt.Errorf("%w: missing label", recognition.ErrInvalidResponse)
	}

	confidence := schema.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	result := &domain.RecognitionResult{
		Label:      schema.Label,
		Category:   schema.Category,
		Confidence: confidence,
	}

	g.logger.DebugContext(ctx, "parsed recognition response",
		"label", result.Label,
		"category", result.Category,
		"confidence", result.Confidence)

	return result, nil
}
