package ai

import (
	"context"
	"fmt"
)

// Completion is the text a provider generated plus its token accounting.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider defines the interface for single-prompt text completion
type Provider interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
	Model() string
}

// APIError is a non-success response from the remote model service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM API error: %d - %s", e.StatusCode, e.Body)
}

// Options selects and configures a provider.
type Options struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(opts Options, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	switch opts.Provider {
	case "", "openai", "gpt", "ark":
		return NewOpenAIProvider(apiKey, opts), nil
	case "claude", "anthropic":
		return NewClaudeProvider(apiKey, opts), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: openai, claude)", opts.Provider)
	}
}
