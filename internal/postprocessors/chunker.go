package postprocessors

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// ChunkConfig configures token windows.
type ChunkConfig struct {
	// WindowTokens is the maximum tokens per chunk
	WindowTokens int

	// OverlapTokens is shared between consecutive chunks; must be < WindowTokens
	OverlapTokens int
}

// DefaultChunkConfig returns 500-token windows with 50 tokens of overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		WindowTokens:  500,
		OverlapTokens: 50,
	}
}

// Validate checks the window/overlap relationship.
func (c ChunkConfig) Validate() error {
	if c.WindowTokens <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", domain.ErrInvalidInput, c.WindowTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.WindowTokens {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrInvalidInput, c.OverlapTokens, c.WindowTokens)
	}
	return nil
}

// Stride is how far each window advances.
func (c ChunkConfig) Stride() int {
	return c.WindowTokens - c.OverlapTokens
}

// ExpectedChunks returns ceil((L-O)/(W-O)) for L > 0, 1 for L <= W, 0 for L == 0.
func (c ChunkConfig) ExpectedChunks(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	if tokens <= c.WindowTokens {
		return 1
	}
	stride := c.Stride()
	return (tokens - c.OverlapTokens + stride - 1) / stride
}

// TokenChunker splits text into overlapping token windows.
type TokenChunker struct {
	tok    Tokenizer
	config ChunkConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*TokenChunker)(nil)

// NewTokenChunker creates a chunker; the config must be valid.
func NewTokenChunker(tok Tokenizer, config ChunkConfig) (*TokenChunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TokenChunker{tok: tok, config: config}, nil
}

// Process splits each incoming chunk; positions run across the whole output.
func (c *TokenChunker) Process(chunks []driven.Chunk) []driven.Chunk {
	var result []driven.Chunk
	position := 0

	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		for _, w := range c.Windows(c.tok.Encode(chunk.Content)) {
			result = append(result, driven.Chunk{
				Content:    w.Text,
				Position:   position,
				StartToken: w.Start,
				EndToken:   w.End,
				Metadata: map[string]string{
					"tokens": strconv.Itoa(w.End - w.Start),
				},
			})
			position++
		}
	}

	return result
}

// Window is one decoded token range [Start, End).
type Window struct {
	Start int
	End   int
	Text  string
}

// Windows slides over tokens. The last window may be short; iteration stops
// once a window reaches the end of the stream. Window edges that would split
// a multi-byte character are moved back onto a character boundary, so every
// window's text is valid UTF-8 and never longer than WindowTokens.
func (c *TokenChunker) Windows(tokens []int) []Window {
	if len(tokens) == 0 {
		return nil
	}

	stride := c.config.Stride()
	windows := make([]Window, 0, c.config.ExpectedChunks(len(tokens)))
	for grid := 0; ; grid += stride {
		start := c.snapBack(tokens, grid, 0)
		end := start + c.config.WindowTokens
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			end = c.snapBack(tokens, end, start+1)
		}
		windows = append(windows, Window{
			Start: start,
			End:   end,
			Text:  strings.ToValidUTF8(c.tok.Decode(tokens[start:end]), "\uFFFD"),
		})
		if end == len(tokens) {
			break
		}
	}
	return windows
}

// snapBack moves index i back while the token at i starts mid-character,
// never below floor.
func (c *TokenChunker) snapBack(tokens []int, i, floor int) int {
	for i > floor && i < len(tokens) && !RuneBoundary(c.tok.Decode(tokens[i:i+1])) {
		i--
	}
	return i
}

// RuneBoundary reports whether decoded token text begins a character.
func RuneBoundary(decoded string) bool {
	return decoded == "" || utf8.RuneStart(decoded[0])
}

// Name returns the processor name.
func (c *TokenChunker) Name() string {
	return "token_chunker"
}

// Order returns 50.
func (c *TokenChunker) Order() int {
	return 50
}
