// Package render provides the image generation boundary: the Renderer
// interface the scheduler calls, adapters for hosted image models, and
// classification of provider failures into the errors taxonomy.
package render

import (
	"context"
	"fmt"
	"strings"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Request describes one image to render.
type Request struct {
	// Prompt is the full text prompt.
	Prompt string `json:"prompt"`

	// AspectRatio such as "2:3". Providers that cannot honor it ignore it.
	AspectRatio string `json:"aspect_ratio,omitempty"`

	// Size such as "1024x1536", for providers that take explicit sizes.
	Size string `json:"size,omitempty"`

	// Labels are carried into logs and spans.
	Labels map[string]string `json:"labels,omitempty"`
}

// Renderer turns a Request into encoded image bytes.
// Errors are *errors.Error values classified at the provider boundary.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}

// Config selects and configures a renderer.
type Config struct {
	Provider string `toml:"name"` // gemini, openai, mock
	Model    string `toml:"model"`
	APIKey   string `toml:"-"`
	BaseURL  string `toml:"base_url"` // custom endpoint (openai only)

	// AspectRatio and Size are defaults applied when a Request leaves them empty.
	AspectRatio string `toml:"aspect_ratio"`
	Size        string `toml:"size"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("api key is required for %s", c.Provider)
		}
	case ProviderMock:
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("unknown provider %q (use gemini, openai or mock)", c.Provider)
	}
	return nil
}

// New creates a renderer for cfg.Provider.
func New(ctx context.Context, cfg Config) (Renderer, error) {
	if cfg.Provider == "" && cfg.Model != "" {
		cfg.Provider = InferProvider(cfg.Model)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiRenderer(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			AspectRatio: cfg.AspectRatio,
		})
	case ProviderOpenAI:
		return NewOpenAIRenderer(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Size:    cfg.Size,
		})
	default:
		return NewMock(), nil
	}
}

// InferProvider guesses the provider from a model name.
func InferProvider(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "imagen"):
		return ProviderGemini
	case strings.HasPrefix(model, "gpt-image"), strings.HasPrefix(model, "dall-e"):
		return ProviderOpenAI
	}
	return ""
}
