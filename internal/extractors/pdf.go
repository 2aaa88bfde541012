package extractors

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PDFExtractor pulls plain text out of a PDF. It yields no title and no links.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Extract(ctx context.Context, in domain.ExtractInput) (out *domain.Extraction, err error) {
	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: pdf parser: %v", domain.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(in.Body), int64(len(in.Body)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", domain.ErrExtraction, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf text: %v", domain.ErrExtraction, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, fmt.Errorf("%w: read pdf text: %v", domain.ErrExtraction, err)
	}

	return &domain.Extraction{Text: buf.String(), Strategy: e.Name()}, nil
}

func (e *PDFExtractor) Name() string {
	return "pdf"
}

func (e *PDFExtractor) SupportedTypes() []string {
	return []string{"application/pdf", "application/x-pdf"}
}

func (e *PDFExtractor) Priority() int {
	return 50
}
