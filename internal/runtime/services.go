package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Services holds the swappable AI collaborators and the optional renderer.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	config *domain.RuntimeConfig

	// Dynamic services (can be nil)
	embeddingService driven.EmbeddingService
	llmService       driven.LLMService
	renderer         driven.Renderer
}

// NewServices creates a new Services registry
func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{
		config: config,
	}
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// EmbeddingService returns the current embedding service (may be nil)
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddingService
}

// LLMService returns the current LLM service (may be nil)
func (s *Services) LLMService() driven.LLMService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llmService
}

// Renderer returns the headless renderer (may be nil)
func (s *Services) Renderer() driven.Renderer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderer
}

// RequireEmbedding returns the embedding service or ErrServiceUnavailable
func (s *Services) RequireEmbedding() (driven.EmbeddingService, error) {
	if svc := s.EmbeddingService(); svc != nil {
		return svc, nil
	}
	return nil, fmt.Errorf("%w: embedding service not configured", domain.ErrServiceUnavailable)
}

// RequireLLM returns the LLM service or ErrServiceUnavailable
func (s *Services) RequireLLM() (driven.LLMService, error) {
	if svc := s.LLMService(); svc != nil {
		return svc, nil
	}
	return nil, fmt.Errorf("%w: llm service not configured", domain.ErrServiceUnavailable)
}

// SetEmbeddingService swaps the embedding service, closing the old one.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingService != nil {
		_ = s.embeddingService.Close()
	}
	s.embeddingService = svc
	s.config.SetEmbeddingAvailable(svc != nil)
}

// SetLLMService swaps the LLM service, closing the old one.
func (s *Services) SetLLMService(svc driven.LLMService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.llmService != nil {
		_ = s.llmService.Close()
	}
	s.llmService = svc
	s.config.SetLLMAvailable(svc != nil)
}

// SetRenderer swaps the renderer, closing the old one.
func (s *Services) SetRenderer(r driven.Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.renderer != nil {
		_ = s.renderer.Close()
	}
	s.renderer = r
	s.config.SetRendererAvailable(r != nil)
}

// Close shuts down all services
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingService != nil {
		_ = s.embeddingService.Close()
		s.embeddingService = nil
	}
	if s.llmService != nil {
		_ = s.llmService.Close()
		s.llmService = nil
	}
	if s.renderer != nil {
		_ = s.renderer.Close()
		s.renderer = nil
	}

	s.config.SetEmbeddingAvailable(false)
	s.config.SetLLMAvailable(false)
	s.config.SetRendererAvailable(false)
	return nil
}

// ValidateAndSetEmbedding checks connectivity and that the model's dimension
// matches the chunk column before installing svc.
func (s *Services) ValidateAndSetEmbedding(ctx context.Context, svc driven.EmbeddingService, storeDimensions int) error {
	if svc == nil {
		s.SetEmbeddingService(nil)
		return nil
	}

	if storeDimensions > 0 && svc.Dimensions() != storeDimensions {
		_ = svc.Close()
		return fmt.Errorf("%w: model %s produces %d, store expects %d",
			domain.ErrEmbeddingDimensionMismatch, svc.Model(), svc.Dimensions(), storeDimensions)
	}

	if err := svc.HealthCheck(ctx); err != nil {
		_ = svc.Close()
		return err
	}

	s.SetEmbeddingService(svc)
	return nil
}

// ValidateAndSetLLM validates connectivity before setting LLM service
func (s *Services) ValidateAndSetLLM(ctx context.Context, svc driven.LLMService) error {
	if svc == nil {
		s.SetLLMService(nil)
		return nil
	}

	if err := svc.Ping(ctx); err != nil {
		_ = svc.Close()
		return err
	}

	s.SetLLMService(svc)
	return nil
}
