package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"google.golang.org/genai"

	"lumen/internal/domain/services"
)

// generateFunc issues one generation call against a named model. Broken out
// so tests can observe the fallback sequence without the network.
type generateFunc func(ctx context.Context, apiKey, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)

// GeminiVisionClient implements the VisionClient interface against the Gemini
// API. The primary model is tried first; any error or empty completion is
// retried exactly once against the fallback model with the identical payload.
// No backoff and no timeout beyond the HTTP client default.
type GeminiVisionClient struct {
	models   *ModelConfig
	logger   *slog.Logger
	generate generateFunc
}

// NewGeminiVisionClient creates a new GeminiVisionClient
func NewGeminiVisionClient(models *ModelConfig, logger *slog.Logger) *GeminiVisionClient {
	c := &GeminiVisionClient{
		models: models,
		logger: logger,
	}
	c.generate = c.generateOnce
	return c
}

// GenerateContent produces a single text completion for the request payload.
func (c *GeminiVisionClient) GenerateContent(ctx context.Context, req *services.VisionRequest) (string, error) {
	contents, err := buildContents(req)
	if err != nil {
		return "", err
	}
	cfg := c.generationConfig(req.System)

	text, primaryErr := c.generate(ctx, req.APIKey, c.models.Primary, contents, cfg)
	if primaryErr == nil {
		return text, nil
	}
	c.logger.Warn("primary vision model failed, trying fallback",
		"primary", c.models.Primary,
		"fallback", c.models.Fallback,
		"error", primaryErr,
	)

	text, fallbackErr := c.generate(ctx, req.APIKey, c.models.Fallback, contents, cfg)
	if fallbackErr == nil {
		return text, nil
	}
	return "", fmt.Errorf("vision request failed on both models: %w", fallbackErr)
}

// generateOnce performs one real API call. The client is rebuilt per call
// because the credential lives in preferences and may change between calls.
func (c *GeminiVisionClient) generateOnce(ctx context.Context, apiKey, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty completion", model)
	}
	return text, nil
}

func (c *GeminiVisionClient) generationConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.models.Generation.Temperature),
		MaxOutputTokens: c.models.Generation.MaxOutputTokens,
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	return cfg
}

// buildContents maps the transcript to the provider's alternating user/model
// contents, then appends the current turn: attached images followed by the
// prompt text.
func buildContents(req *services.VisionRequest) ([]*genai.Content, error) {
	var contents []*genai.Content

	for _, msg := range req.History {
		role := "model"
		if msg.FromUser {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	var parts []*genai.Part
	for _, img := range req.Images {
		data, err := encodeJPEG(img)
		if err != nil {
			return nil, err
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: data},
		})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: parts,
	})
	return contents, nil
}

// firstText returns the first candidate's first text part, or "".
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	for _, part := range content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

var _ services.VisionClient = (*GeminiVisionClient)(nil)
