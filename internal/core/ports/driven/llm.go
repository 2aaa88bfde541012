package driven

import (
	"context"
)

// GenerateOptions tunes a single completion
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int // 0 means provider default
}

// LLMService is the single-turn generation service
type LLMService interface {
	// Generate sends a system instruction and a user prompt and returns the text
	Generate(ctx context.Context, systemPrompt, prompt string, opts GenerateOptions) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
