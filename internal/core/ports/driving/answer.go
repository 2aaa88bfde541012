package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// AnswerService answers questions and summarises pages from stored chunks
type AnswerService interface {
	// Ask retrieves the topK nearest chunks for the user and generates a
	// grounded answer. topK <= 0 uses the configured default.
	Ask(ctx context.Context, userKey, question string, topK int) (*domain.Answer, error)

	// Summarize summarises every stored chunk of the given URLs for the user
	Summarize(ctx context.Context, userKey string, urls []string) (*domain.Summary, error)
}
