package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/metrics"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

// Ensure answerService implements AnswerService
var _ driving.AnswerService = (*answerService)(nil)

const (
	DefaultTopK = 5
	MaxTopK     = 20

	generationTemperature = 0.2

	askSystemPrompt       = "You are a helpful assistant."
	summarizeSystemPrompt = "You are a helpful summarizer."

	askPromptTemplate = `You are an assistant. Use the following context to answer the question.

Context:
%s

Question:
%s

Answer in a clear and concise way, citing URLs when helpful.`

	summarizePromptTemplate = "Summarize the following content in a clear and concise way:\n\n%s"

	contextSeparator = "\n\n"
)

// AnswerConfig holds dependencies for the answer service.
type AnswerConfig struct {
	Store    driven.PageStore
	Services *runtime.Services
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// DefaultTopK applies when a request does not set one
	DefaultTopK int
}

type answerService struct {
	store    driven.PageStore
	services *runtime.Services
	metrics  *metrics.Metrics
	logger   *slog.Logger
	topK     int
}

// NewAnswerService creates a new AnswerService
func NewAnswerService(cfg AnswerConfig) driving.AnswerService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.DefaultTopK
	if topK <= 0 || topK > MaxTopK {
		topK = DefaultTopK
	}
	return &answerService{
		store:    cfg.Store,
		services: cfg.Services,
		metrics:  cfg.Metrics,
		logger:   logger,
		topK:     topK,
	}
}

// Ask embeds the question, retrieves the nearest chunks of the user and
// asks the generator to answer from them.
func (s *answerService) Ask(ctx context.Context, userKey, question string, topK int) (*domain.Answer, error) {
	answer, err := s.ask(ctx, userKey, question, topK)
	switch {
	case err == nil:
		s.metrics.ObserveAsk(metrics.OutcomeOK)
	case errors.Is(err, domain.ErrNoMatchingContent):
		s.metrics.ObserveAsk(metrics.OutcomeNoData)
	default:
		s.metrics.ObserveAsk(metrics.OutcomeError)
	}
	return answer, err
}

func (s *answerService) ask(ctx context.Context, userKey, question string, topK int) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = s.topK
	}
	topK = min(topK, MaxTopK)

	embedder, err := s.services.RequireEmbedding()
	if err != nil {
		return nil, err
	}
	llm, err := s.services.RequireLLM()
	if err != nil {
		return nil, err
	}

	userID, err := s.store.EnsureUser(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	vector, err := embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, generationFailure("embed question", err)
	}
	if want := s.store.Dimensions(); len(vector) != want {
		return nil, fmt.Errorf("%w: query has %d, store expects %d",
			domain.ErrEmbeddingDimensionMismatch, len(vector), want)
	}

	hits, err := s.store.Search(ctx, userID, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(hits) == 0 {
		return nil, domain.ErrNoMatchingContent
	}

	prompt := fmt.Sprintf(askPromptTemplate, joinChunks(hits), question)
	text, err := llm.Generate(ctx, askSystemPrompt, prompt, driven.GenerateOptions{Temperature: generationTemperature})
	if err != nil {
		return nil, generationFailure("generate answer", err)
	}

	sources := make([]domain.Source, len(hits))
	for i, h := range hits {
		sources[i] = domain.NewSource(h)
	}

	s.logger.Info("question answered", "user", domain.ResolveUserKey(userKey), "hits", len(hits))
	return &domain.Answer{
		Question: question,
		Answer:   text,
		Sources:  sources,
	}, nil
}

// Summarize summarises every stored chunk of the given URLs
func (s *answerService) Summarize(ctx context.Context, userKey string, urls []string) (*domain.Summary, error) {
	canonical, err := validateURLs(urls)
	if err != nil {
		return nil, err
	}

	llm, err := s.services.RequireLLM()
	if err != nil {
		return nil, err
	}

	userID, err := s.store.EnsureUser(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	chunks, err := s.store.ChunksForURLs(ctx, userID, canonical)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNoMatchingContent
	}

	prompt := fmt.Sprintf(summarizePromptTemplate, joinChunks(chunks))
	text, err := llm.Generate(ctx, summarizeSystemPrompt, prompt, driven.GenerateOptions{Temperature: generationTemperature})
	if err != nil {
		return nil, generationFailure("generate summary", err)
	}

	return &domain.Summary{
		URLs:       canonical,
		Summary:    text,
		ChunkCount: len(chunks),
	}, nil
}

func joinChunks(hits []*domain.ScoredChunk) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	return strings.Join(texts, contextSeparator)
}
