package llm

import (
	"context"
	"errors"
)

var (
	// ErrDisabled is returned when no provider is configured
	ErrDisabled = errors.New("llm disabled")
	// ErrNoJSON is returned when a completion holds no parseable JSON object
	ErrNoJSON = errors.New("no json object in completion")
)

// Provider defines the interface for text-completion providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete generates a completion for a single prompt
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is one prompt sent to a provider
type CompletionRequest struct {
	Prompt      string
	System      string  // Optional system instruction
	Model       string  // Overrides the configured model
	MaxTokens   int     // 0 uses the configured limit
	Temperature float64
}

// CompletionResponse is the provider's output
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, vLLM)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   60,
		MaxTokens: 512,
	}
}

func (c Config) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 512
}
