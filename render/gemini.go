package render

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vinayprograms/renderkit/errors"
)

// DefaultGeminiModel is the image model used when none is configured.
const DefaultGeminiModel = "gemini-3-pro-image-preview"

// GeminiRenderer renders images with a Gemini image model.
type GeminiRenderer struct {
	client      *genai.Client
	modelName   string
	aspectRatio string

	// generate performs the call; replaced in tests.
	generate func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiConfig holds configuration for the Gemini renderer.
type GeminiConfig struct {
	APIKey      string
	Model       string
	AspectRatio string // default for requests that leave it empty
}

// NewGeminiRenderer creates a renderer using the Gemini SDK.
func NewGeminiRenderer(ctx context.Context, cfg GeminiConfig) (*GeminiRenderer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for gemini")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	candidates := int32(1)
	model.CandidateCount = &candidates

	return &GeminiRenderer{
		client:      client,
		modelName:   cfg.Model,
		aspectRatio: cfg.AspectRatio,
		generate:    model.GenerateContent,
	}, nil
}

// Model returns the configured model name.
func (r *GeminiRenderer) Model() string {
	return r.modelName
}

// Close closes the underlying client.
func (r *GeminiRenderer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Render implements Renderer.
func (r *GeminiRenderer) Render(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.InvalidInput("empty prompt", errors.WithProvider(ProviderGemini))
	}

	resp, err := r.generate(ctx, genai.Text(r.prompt(req)))
	if err != nil {
		var blocked *genai.BlockedError
		if stderrors.As(err, &blocked) {
			return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "response blocked",
				errors.WithProvider(ProviderGemini))
		}
		return nil, Classify(err, ProviderGemini)
	}
	return extractImage(resp)
}

func (r *GeminiRenderer) prompt(req Request) string {
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = r.aspectRatio
	}
	if ratio == "" {
		return req.Prompt
	}
	return fmt.Sprintf("%s\n\nAspect ratio: %s.", req.Prompt, ratio)
}

// extractImage returns the first inline image in the response.
func extractImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil {
		return nil, errors.BadResponse("empty response", errors.WithProvider(ProviderGemini))
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && strings.HasPrefix(blob.MIMEType, "image/") && len(blob.Data) > 0 {
				return blob.Data, nil
			}
		}
	}
	return nil, errors.BadResponse("no image in response", errors.WithProvider(ProviderGemini))
}
