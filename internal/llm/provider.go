package llm

import (
	"context"
	"strings"
)

// Provider defines the interface for LLM completion providers.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends a prompt and returns the raw completion text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for one completion call.
type CompletionRequest struct {
	// System is the system prompt (optional)
	System string

	// Prompt is the user-turn content
	Prompt string

	// Model is the specific model to use (provider-specific; aliases are
	// resolved before this point)
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls sampling; classification passes run low
	Temperature float64
}

// CompletionResponse contains the model's output.
type CompletionResponse struct {
	// Text is the raw completion text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration.
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name or alias (haiku/sonnet/opus resolve per provider)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:  "anthropic",
		Model:     "sonnet",
		Timeout:   120,
		MaxTokens: 4000,
	}
}

// anthropicAliases maps the CLI model aliases to concrete Anthropic IDs.
var anthropicAliases = map[string]string{
	"haiku":  "claude-3-5-haiku-20241022",
	"sonnet": "claude-3-7-sonnet-20250219",
	"opus":   "claude-3-opus-20240229",
}

// openaiAliases maps the CLI model aliases to comparable OpenAI models.
var openaiAliases = map[string]string{
	"haiku":  "gpt-4o-mini",
	"sonnet": "gpt-4o",
	"opus":   "gpt-4o",
}

// ResolveModelAlias maps a CLI alias (haiku/sonnet/opus) to a concrete model
// ID for the given provider. Non-alias names pass through unchanged.
func ResolveModelAlias(provider, model string) string {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		if id, ok := anthropicAliases[model]; ok {
			return id
		}
	case "openai":
		if id, ok := openaiAliases[model]; ok {
			return id
		}
	}
	return model
}

// IsRateLimitError detects rate-limit failures by message content, the only
// signal uniformly available across providers.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "too many requests")
}
