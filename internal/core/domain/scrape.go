package domain

import (
	"strings"
	"time"
)

// ContentKind classifies fetched content
type ContentKind string

const (
	ContentKindHTML   ContentKind = "html"
	ContentKindText   ContentKind = "text"
	ContentKindPDF    ContentKind = "pdf"
	ContentKindBinary ContentKind = "binary" // Rejected without extraction
)

// Metadata keys recorded on a ScrapeResult
const (
	MetaRenderJS      = "render_js"
	MetaCharset       = "charset"
	MetaRobotsAllowed = "robots_allowed"
	MetaTruncated     = "truncated"
	MetaAttempts      = "attempts"
	MetaHeaderPrefix  = "header."
)

// ScrapeResult is the transient outcome of fetching and extracting one URL.
// It is always produced, even on failure; failures set Error.
type ScrapeResult struct {
	SourceURL    string            `json:"source_url"`
	CanonicalURL string            `json:"canonical_url"`
	FinalURL     string            `json:"final_url,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Kind         ContentKind       `json:"kind,omitempty"`
	Title        string            `json:"title,omitempty"`
	Text         string            `json:"text,omitempty"`
	HTML         string            `json:"html,omitempty"`
	Body         []byte            `json:"-"`
	Language     string            `json:"language,omitempty"`
	Links        []string          `json:"links,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ContentHash  string            `json:"content_hash,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`

	// Err keeps the typed failure for errors.Is checks
	Err error `json:"-"`
}

// NewScrapeResult starts a result for a URL
func NewScrapeResult(sourceURL string) *ScrapeResult {
	return &ScrapeResult{
		SourceURL: sourceURL,
		FetchedAt: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// Fail records err on the result and returns it
func (r *ScrapeResult) Fail(err error) *ScrapeResult {
	r.Err = err
	r.Error = err.Error()
	return r
}

// OK reports whether the result carries usable text
func (r *ScrapeResult) OK() bool {
	return r.Error == "" && strings.TrimSpace(r.Text) != ""
}

// URL returns the canonical URL when known, else the source URL
func (r *ScrapeResult) URL() string {
	if r.CanonicalURL != "" {
		return r.CanonicalURL
	}
	return r.SourceURL
}

// ExtractInput is what the extractor needs from a fetch
type ExtractInput struct {
	Body        []byte
	ContentType string
	Kind        ContentKind
	BaseURL     string
}

// Extraction is the extractor's output
type Extraction struct {
	Title       string   `json:"title,omitempty"`
	Text        string   `json:"text"`
	Links       []string `json:"links,omitempty"`
	Language    string   `json:"language,omitempty"`
	ContentHash string   `json:"content_hash"`
	Strategy    string   `json:"strategy"` // Name of the extractor that produced Text
}

// IngestResult reports what happened to one URL of a scrape request
type IngestResult struct {
	URL    string `json:"url"`
	PageID string `json:"page_id,omitempty"`
	Title  string `json:"title,omitempty"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the URL was stored
func (r *IngestResult) OK() bool {
	return r.Error == ""
}

// FailureSummary joins the errors of failed results as "url: error" lines.
// Empty when every result succeeded.
func FailureSummary(results []*IngestResult) string {
	var lines []string
	for _, r := range results {
		if r != nil && !r.OK() {
			lines = append(lines, r.URL+": "+r.Error)
		}
	}
	return strings.Join(lines, "\n")
}

// Stored counts the results that produced a page
func Stored(results []*IngestResult) int {
	n := 0
	for _, r := range results {
		if r != nil && r.OK() {
			n++
		}
	}
	return n
}
