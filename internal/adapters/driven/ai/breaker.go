package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var (
	_ driven.EmbeddingService = (*breakerEmbedding)(nil)
	_ driven.LLMService       = (*breakerLLM)(nil)
)

// BreakerSettings tunes the circuit breaker around a provider.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval clears the failure counts while closed
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings returns the breaker tuning used for AI providers.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

func newBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		// A caller giving up says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// generationError wraps err so callers can match ErrGenerationService.
func generationError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: provider unavailable: %v", domain.ErrGenerationService, op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrGenerationService, op, err)
}

type breakerEmbedding struct {
	driven.EmbeddingService
	cb *gobreaker.CircuitBreaker
}

// WithEmbeddingBreaker wraps an embedding service in a circuit breaker.
// Every failure it returns wraps domain.ErrGenerationService.
func WithEmbeddingBreaker(svc driven.EmbeddingService, s BreakerSettings) driven.EmbeddingService {
	if svc == nil {
		return nil
	}
	return &breakerEmbedding{
		EmbeddingService: svc,
		cb:               newBreaker("embedding:"+svc.Model(), s),
	}
}

func (b *breakerEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.EmbeddingService.Embed(ctx, texts)
	})
	if err != nil {
		return nil, generationError("embed", err)
	}
	embeddings, _ := out.([][]float32)
	return embeddings, nil
}

func (b *breakerEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.EmbeddingService.EmbedQuery(ctx, query)
	})
	if err != nil {
		return nil, generationError("embed query", err)
	}
	embedding, _ := out.([]float32)
	return embedding, nil
}

type breakerLLM struct {
	driven.LLMService
	cb *gobreaker.CircuitBreaker
}

// WithLLMBreaker wraps a generation service in a circuit breaker.
// Every failure it returns wraps domain.ErrGenerationService.
func WithLLMBreaker(svc driven.LLMService, s BreakerSettings) driven.LLMService {
	if svc == nil {
		return nil
	}
	return &breakerLLM{
		LLMService: svc,
		cb:         newBreaker("llm:"+svc.Model(), s),
	}
}

func (b *breakerLLM) Generate(ctx context.Context, systemPrompt, prompt string, opts driven.GenerateOptions) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.LLMService.Generate(ctx, systemPrompt, prompt, opts)
	})
	if err != nil {
		return "", generationError("generate", err)
	}
	text, _ := out.(string)
	return text, nil
}
