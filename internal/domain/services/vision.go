package services

import (
	"context"
	"image"

	"lumen/internal/domain/models"
)

// VisionClient is the adapter to the remote generative-vision API.
// Implementations try a primary model first and retry once against a fallback
// model with the identical payload before surfacing an error. Exactly one
// terminal outcome (text or error) is produced per invocation.
type VisionClient interface {
	// GenerateContent produces a single text completion for the prompt, the
	// attached images, and the prior transcript (mapped to the provider's
	// alternating user/model format). The system instruction, when non-empty,
	// travels out of band and is never part of the transcript.
	GenerateContent(ctx context.Context, req *VisionRequest) (string, error)
}

// VisionRequest carries one generation call's full payload.
type VisionRequest struct {
	APIKey  string
	Prompt  string
	System  string
	Images  []image.Image
	History []models.ChatMessage
}
