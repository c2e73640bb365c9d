// Package vision provides implementations for the recognition interface using Google's Gemini API.
package vision

// recognitionSchema represents the expected structure of a recognition
// response from the Gemini API.
type recognitionSchema struct {
	// Label is the primary description of the dominant subject
	Label string `json:"label"`

	// Category is the broad class the subject belongs to
	Category string `json:"category"`

	// Confidence is the model's confidence in the label, between 0 and 1
	Confidence float64 `json:"confidence"`
}

// recognitionPrompt instructs the model to respond with exactly the JSON
// shape recognitionSchema expects.
const recognitionPrompt = `Identify the dominant subject of this image. ` +
	`Respond with a single JSON object and nothing else, using exactly these fields: ` +
	`{"label": "<short description of the subject>", ` +
	`"category": "<one broad category, e.g. animal, plant, vehicle, food, person, landscape, object>", ` +
	`"confidence": <number between 0 and 1>}`
