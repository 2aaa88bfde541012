package postprocessors

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// TextNormalizer tidies extracted text before it is tokenized.
type TextNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*TextNormalizer)(nil)

// NewTextNormalizer creates a new text normalizer.
func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{}
}

// Process normalizes line endings, collapses spaces and blank-line runs.
func (n *TextNormalizer) Process(chunks []driven.Chunk) []driven.Chunk {
	result := make([]driven.Chunk, 0, len(chunks))

	for _, chunk := range chunks {
		content := NormalizeText(chunk.Content)
		if content == "" {
			continue
		}
		chunk.Content = content
		result = append(result, chunk)
	}
	return result
}

// NormalizeText is the normalisation applied by TextNormalizer. Invalid
// UTF-8 becomes U+FFFD and NUL bytes are dropped; Postgres text rejects both.
func NormalizeText(content string) string {
	content = strings.ToValidUTF8(content, "\uFFFD")
	content = strings.ReplaceAll(content, "\x00", "")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	content = strings.Join(lines, "\n")
	content = blankRun.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}

// Name returns the processor name.
func (n *TextNormalizer) Name() string {
	return "normalize"
}

// Order returns 10 - runs before chunking.
func (n *TextNormalizer) Order() int {
	return 10
}

// EmptyFilter drops blank chunks and renumbers the rest.
type EmptyFilter struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*EmptyFilter)(nil)

// NewEmptyFilter creates a new empty-chunk filter.
func NewEmptyFilter() *EmptyFilter {
	return &EmptyFilter{}
}

// Process removes chunks with no visible text.
func (f *EmptyFilter) Process(chunks []driven.Chunk) []driven.Chunk {
	result := make([]driven.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		chunk.Position = len(result)
		result = append(result, chunk)
	}
	return result
}

// Name returns the processor name.
func (f *EmptyFilter) Name() string {
	return "drop_empty"
}

// Order returns 90.
func (f *EmptyFilter) Order() int {
	return 90
}
