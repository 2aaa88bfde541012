package extractors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry routes fetched content to the highest-priority matching extractor
// and fills in the fields every branch shares: normalised text, hash and language.
type Registry struct {
	mu         sync.RWMutex
	extractors []driven.Extractor
	detector   LanguageDetector
}

// NewRegistry creates an empty registry using the default language detector.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make([]driven.Extractor, 0),
		detector:   DetectLanguage,
	}
}

// WithLanguageDetector replaces the language detector; nil disables detection.
func (r *Registry) WithLanguageDetector(d LanguageDetector) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detector = d
	return r
}

// Register registers an extractor.
func (r *Registry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extractors = append(r.extractors, extractor)
}

// Get retrieves the best-matching extractor for a MIME type, or nil.
func (r *Registry) Get(mimeType string) driven.Extractor {
	matches := r.GetAll(mimeType)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// GetAll retrieves all extractors that match a MIME type, highest priority first.
func (r *Registry) GetAll(mimeType string) []driven.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []driven.Extractor
	for _, e := range r.extractors {
		if matchesMIMEType(e.SupportedTypes(), mimeType) {
			matches = append(matches, e)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority() > matches[j].Priority()
	})
	return matches
}

// List returns all registered MIME types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typeSet := make(map[string]struct{})
	for _, e := range r.extractors {
		for _, t := range e.SupportedTypes() {
			typeSet[t] = struct{}{}
		}
	}

	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Extract picks an extractor for the input's kind and content type.
func (r *Registry) Extract(ctx context.Context, in domain.ExtractInput) (*domain.Extraction, error) {
	mimeType := routingType(in)
	if in.Kind == domain.ContentKindBinary {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedContent, in.ContentType)
	}

	extractor := r.Get(mimeType)
	if extractor == nil {
		if in.Kind == domain.ContentKindPDF {
			return nil, domain.ErrPDFExtractionUnavailable
		}
		return nil, fmt.Errorf("%w: no extractor for %s", domain.ErrExtraction, mimeType)
	}

	out, err := extractor.Extract(ctx, in)
	if err != nil {
		return nil, err
	}

	out.Text = postprocessors.NormalizeText(out.Text)
	if out.Text == "" {
		return nil, fmt.Errorf("%w: %s produced no text", domain.ErrExtraction, extractor.Name())
	}
	if in.Kind == domain.ContentKindPDF {
		out.Title = ""
		out.Links = nil
	}
	out.Title = strings.TrimSpace(out.Title)
	out.ContentHash = ContentHash(out.Text)

	r.mu.RLock()
	detector := r.detector
	r.mu.RUnlock()
	if detector != nil {
		out.Language = detector(out.Text)
	}
	return out, nil
}

// routingType chooses the MIME type used for registry lookup.
func routingType(in domain.ExtractInput) string {
	mimeType := baseType(in.ContentType)
	switch in.Kind {
	case domain.ContentKindPDF:
		return "application/pdf"
	case domain.ContentKindHTML:
		if mimeType == "" || !strings.Contains(mimeType, "html") && !strings.Contains(mimeType, "xml") {
			return "text/html"
		}
	case domain.ContentKindText:
		if mimeType == "" || !strings.HasPrefix(mimeType, "text/") {
			return "text/plain"
		}
	}
	return mimeType
}

// baseType lowercases and strips parameters such as charset.
func baseType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}

// matchesMIMEType checks if any of the supported types match the given MIME type.
// Supports wildcards such as "text/*".
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = baseType(mimeType)

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))

		if supported == mimeType || supported == "*/*" {
			return true
		}
		if strings.HasSuffix(supported, "/*") && strings.HasPrefix(mimeType, supported[:len(supported)-1]) {
			return true
		}
	}
	return false
}

// DefaultRegistry registers the HTML chain, PDF and plain-text extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewHTMLExtractor(DefaultHTMLStrategies()...))
	r.Register(NewPDFExtractor())
	r.Register(&PlainTextExtractor{})
	return r
}
