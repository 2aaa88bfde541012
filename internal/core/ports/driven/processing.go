package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Extractor turns fetched bytes into title, text and links.
type Extractor interface {
	// Extract processes one fetch result. Best effort: the only errors are
	// ErrExtraction and ErrPDFExtractionUnavailable.
	Extract(ctx context.Context, in domain.ExtractInput) (*domain.Extraction, error)

	// Name returns the extractor name for logging
	Name() string

	// SupportedTypes returns MIME types this extractor handles.
	// Can include wildcards like "text/*".
	SupportedTypes() []string

	// Priority returns the extractor priority (higher = more specific).
	Priority() int
}

// ContentExtractor routes a fetch result to the right extractor.
type ContentExtractor interface {
	Extract(ctx context.Context, in domain.ExtractInput) (*domain.Extraction, error)
}

// ExtractorRegistry manages extractors.
// When multiple extractors match a MIME type, the highest priority one is used.
type ExtractorRegistry interface {
	ContentExtractor

	// Get retrieves the best-matching extractor for a MIME type, or nil.
	Get(mimeType string) Extractor

	// GetAll retrieves all matching extractors, highest priority first.
	GetAll(mimeType string) []Extractor

	// Register registers an extractor.
	Register(extractor Extractor)

	// List returns all registered MIME types.
	List() []string
}

// PostProcessor applies post-processing to text chunks.
// Processors form a pipeline: Normalizer -> Chunker -> Filter.
type PostProcessor interface {
	// Process transforms chunks. The first processor receives a single chunk
	// holding the full text.
	Process(chunks []Chunk) []Chunk

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// Chunk is a piece of page text moving through the pipeline.
type Chunk struct {
	// Content is the text content of the chunk
	Content string

	// Position is the chunk index within the page (0-based)
	Position int

	// StartToken and EndToken bound the chunk in the token stream
	StartToken int
	EndToken   int

	// Metadata contains additional chunk-specific data
	Metadata map[string]string
}

// PostProcessorPipeline chains multiple post-processors in order.
type PostProcessorPipeline interface {
	// Process applies all processors in order to the page text.
	Process(content string) []Chunk

	// Add adds a processor to the pipeline.
	Add(processor PostProcessor)

	// List returns processor names in order.
	List() []string
}
