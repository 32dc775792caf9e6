package service

import (
	"context"
	"image"
	"time"

	"lumen/internal/domain/models"
	"lumen/internal/domain/repositories"
	"lumen/internal/domain/services"
	"lumen/internal/vision"
)

// DescribeImageUseCase requests the opening description for a session image.
// The describe instruction travels as the prompt itself, paired with the
// image, exactly once per session entry.
type DescribeImageUseCase struct {
	vision services.VisionClient
}

// NewDescribeImageUseCase creates a new DescribeImageUseCase
func NewDescribeImageUseCase(client services.VisionClient) *DescribeImageUseCase {
	return &DescribeImageUseCase{vision: client}
}

func (u *DescribeImageUseCase) Invoke(ctx context.Context, apiKey string, img image.Image, history []models.ChatMessage, language string) (string, error) {
	return u.vision.GenerateContent(ctx, &services.VisionRequest{
		APIKey:  apiKey,
		Prompt:  vision.DescribeInstruction(language),
		Images:  []image.Image{img},
		History: history,
	})
}

// ContinueChatUseCase continues a conversation about a session's images. The
// fixed instruction is sent as the provider system instruction, never as a
// transcript entry, so it can never be double-counted in persisted history.
type ContinueChatUseCase struct {
	vision services.VisionClient
}

// NewContinueChatUseCase creates a new ContinueChatUseCase
func NewContinueChatUseCase(client services.VisionClient) *ContinueChatUseCase {
	return &ContinueChatUseCase{vision: client}
}

func (u *ContinueChatUseCase) Invoke(ctx context.Context, apiKey, prompt string, history []models.ChatMessage, images []image.Image, language string) (string, error) {
	return u.vision.GenerateContent(ctx, &services.VisionRequest{
		APIKey:  apiKey,
		Prompt:  prompt,
		System:  vision.ContinueInstruction(language),
		Images:  images,
		History: history,
	})
}

// SaveCaptureUseCase persists a session through the capture store, refreshing
// its timestamp. The row id assigned on first save is kept by the session and
// reused by every later save.
type SaveCaptureUseCase struct {
	captures repositories.CaptureRepository
	now      func() time.Time
}

// NewSaveCaptureUseCase creates a new SaveCaptureUseCase
func NewSaveCaptureUseCase(captures repositories.CaptureRepository) *SaveCaptureUseCase {
	return &SaveCaptureUseCase{captures: captures, now: time.Now}
}

func (u *SaveCaptureUseCase) Invoke(ctx context.Context, session *models.CaptureSession) error {
	session.Timestamp = u.now()
	return u.captures.Upsert(ctx, session)
}
