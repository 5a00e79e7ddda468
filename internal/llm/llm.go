package llm

import (
	"context"
)

// Image is an image payload handed to a multimodal model.
type Image struct {
	Data     []byte
	MimeType string
}

// Client defines the two call shapes the application needs from a hosted model.
// Implementations must be safe for concurrent use.
type Client interface {
	// GenerateWithImage sends an instruction together with one image and
	// returns the model's free-text answer.
	GenerateWithImage(ctx context.Context, prompt string, img Image) (string, error)
	// GenerateText sends a text-only prompt and returns the model's free-text answer.
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Operation names used in logs, metrics and errors.
const (
	OpImage = "image"
	OpText  = "text"
)
