package postprocessors

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE vocabulary used for chunk budgets.
const DefaultEncoding = "cl100k_base"

// Tokenizer converts text to token ids and back. Decode of a sub-slice may
// split a multi-byte character; callers snap boundaries with RuneBoundary.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// BPETokenizer wraps a tiktoken encoding.
type BPETokenizer struct {
	enc *tiktoken.Tiktoken
}

var loaderOnce sync.Once

// NewBPETokenizer loads the named encoding from the vocabularies embedded in
// the binary, so no network access or cache directory is needed.
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPETokenizer{enc: enc}, nil
}

// Encode returns token ids for text.
func (t *BPETokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode returns the raw bytes behind tokens as a string.
func (t *BPETokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
