package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PageService manages a user's stored pages
type PageService interface {
	// List returns the user's pages
	List(ctx context.Context, userKey string) ([]*domain.PageSummary, error)

	// Get retrieves one page
	Get(ctx context.Context, userKey, pageID string) (*domain.Page, error)

	// Delete removes a page and its chunks
	Delete(ctx context.Context, userKey, pageID string) error

	// ResetUser deletes the user with all pages and chunks
	ResetUser(ctx context.Context, userKey string) error

	// ResetAll clears all pages and chunks for every user
	ResetAll(ctx context.Context) error
}
