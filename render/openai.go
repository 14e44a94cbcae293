package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vinayprograms/renderkit/errors"
)

// Defaults for the OpenAI renderer.
const (
	DefaultOpenAIModel = openai.ImageModelGPTImage1
	DefaultOpenAISize  = "1024x1536"
)

// OpenAIRenderer renders images with the OpenAI images API.
type OpenAIRenderer struct {
	client *openai.Client
	model  string
	size   string
}

// OpenAIConfig holds configuration for the OpenAI renderer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // Optional custom endpoint
	Model   string
	Size    string
}

// NewOpenAIRenderer creates a renderer using the OpenAI SDK.
// SDK-level retries are disabled; the scheduler owns retry policy.
func NewOpenAIRenderer(cfg OpenAIConfig) (*OpenAIRenderer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for openai")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Size == "" {
		cfg.Size = DefaultOpenAISize
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIRenderer{
		client: &client,
		model:  cfg.Model,
		size:   cfg.Size,
	}, nil
}

// Model returns the configured model name.
func (r *OpenAIRenderer) Model() string {
	return r.model
}

// Render implements Renderer.
func (r *OpenAIRenderer) Render(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.InvalidInput("empty prompt", errors.WithProvider(ProviderOpenAI))
	}

	size := req.Size
	if size == "" {
		size = r.size
	}

	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  r.model,
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(size),
	}
	// gpt-image models always return base64 and reject response_format.
	if !strings.HasPrefix(r.model, "gpt-image") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := r.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, Classify(err, ProviderOpenAI)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.BadResponse("no image in response", errors.WithProvider(ProviderOpenAI))
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeBadResponse, "decode image",
			errors.WithProvider(ProviderOpenAI))
	}
	return data, nil
}
