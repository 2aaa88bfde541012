package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var (
	_ driven.Fetcher          = (*MockFetcher)(nil)
	_ driven.ContentExtractor = (*MockExtractor)(nil)
)

// MockFetcher serves canned pages keyed by canonical URL.
// Unknown URLs produce an ErrFetch result.
type MockFetcher struct {
	mu      sync.Mutex
	pages   map[string]mockPage
	fetched []string

	FetchFn func(rawURL string, opts driven.FetchOptions) *domain.ScrapeResult
}

type mockPage struct {
	contentType string
	body        string
}

// NewMockFetcher creates a new MockFetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{pages: make(map[string]mockPage)}
}

// AddPage registers a body for a URL
func (m *MockFetcher) AddPage(rawURL, contentType, body string) {
	u, err := domain.CanonicalizeURL(rawURL)
	if err != nil {
		u = rawURL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[u] = mockPage{contentType: contentType, body: body}
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string, opts driven.FetchOptions) *domain.ScrapeResult {
	m.mu.Lock()
	m.fetched = append(m.fetched, rawURL)
	m.mu.Unlock()

	if m.FetchFn != nil {
		return m.FetchFn(rawURL, opts)
	}

	res := domain.NewScrapeResult(rawURL)
	u, err := domain.CanonicalizeURL(rawURL)
	if err != nil {
		return res.Fail(err)
	}
	res.CanonicalURL = u

	m.mu.Lock()
	page, ok := m.pages[u]
	m.mu.Unlock()
	if !ok {
		return res.Fail(fmt.Errorf("%w: %s: status 404", domain.ErrFetch, u))
	}

	res.FinalURL = u
	res.StatusCode = 200
	res.ContentType = page.contentType
	res.Kind = domain.ContentKindText
	if page.contentType == "application/pdf" {
		res.Kind = domain.ContentKindPDF
	}
	res.Body = []byte(page.body)
	return res
}

// Fetched returns the URLs requested so far
func (m *MockFetcher) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

// MockExtractor returns the body as text and the first line as title.
type MockExtractor struct {
	ExtractFn func(in domain.ExtractInput) (*domain.Extraction, error)
}

// NewMockExtractor creates a new MockExtractor
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

func (m *MockExtractor) Extract(ctx context.Context, in domain.ExtractInput) (*domain.Extraction, error) {
	if m.ExtractFn != nil {
		return m.ExtractFn(in)
	}
	text := string(in.Body)
	if text == "" {
		return nil, domain.ErrExtraction
	}
	return &domain.Extraction{
		Text:        text,
		ContentHash: fmt.Sprintf("len-%d", len(text)),
		Strategy:    "mock",
	}, nil
}
