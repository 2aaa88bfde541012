package extractors

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PlainTextExtractor passes text bodies through, replacing invalid UTF-8.
type PlainTextExtractor struct{}

func (e *PlainTextExtractor) Extract(ctx context.Context, in domain.ExtractInput) (*domain.Extraction, error) {
	text := strings.ToValidUTF8(string(in.Body), "\uFFFD")
	return &domain.Extraction{Text: text, Strategy: e.Name()}, nil
}

func (e *PlainTextExtractor) Name() string {
	return "plaintext"
}

func (e *PlainTextExtractor) SupportedTypes() []string {
	return []string{"text/plain", "text/*"}
}

func (e *PlainTextExtractor) Priority() int {
	return 1 // Fallback
}
