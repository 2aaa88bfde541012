package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// FetchOptions tunes a single fetch
type FetchOptions struct {
	// RenderJS navigates with a headless browser instead of a plain GET
	RenderJS bool
}

// Fetcher retrieves a URL. It never returns an error value: failures are
// recorded on the ScrapeResult together with any transport metadata obtained.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) *domain.ScrapeResult
}

// Renderer loads a page in a headless browser and returns the settled DOM.
type Renderer interface {
	// Render navigates to url, waits for network idle and returns the outer HTML
	// and the final URL after client-side redirects.
	Render(ctx context.Context, url string) (html string, finalURL string, err error)

	// Close releases the browser
	Close() error
}
