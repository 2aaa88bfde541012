package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PageStore persists pages and chunk embeddings per user and answers
// nearest-neighbour queries. Every method taking a userID must only read or
// mutate rows owned by that user.
type PageStore interface {
	// EnsureUser returns the id for a user key, creating the user on first reference.
	EnsureUser(ctx context.Context, userKey string) (string, error)

	// UpsertPage inserts a page or, on (user, url) conflict, replaces its
	// title/content and refreshes created_at. Returns the stored page.
	UpsertPage(ctx context.Context, page *domain.Page) (*domain.Page, error)

	// AddChunks appends chunk embeddings to a page. Every embedding must match
	// Dimensions() or ErrEmbeddingDimensionMismatch is returned and nothing is written.
	AddChunks(ctx context.Context, userID, pageID string, chunks []*domain.Chunk) error

	// SavePage upserts the page and replaces its chunk set in one transaction.
	// Readers see either the previous page and chunks or the new ones.
	SavePage(ctx context.Context, page *domain.Page, chunks []*domain.Chunk) (*domain.Page, error)

	// GetPage retrieves a page owned by the user
	GetPage(ctx context.Context, userID, pageID string) (*domain.Page, error)

	// ListPages returns the user's pages, newest first
	ListPages(ctx context.Context, userID string) ([]*domain.PageSummary, error)

	// DeletePage deletes a page and its chunks. ErrNotFound when not owned.
	DeletePage(ctx context.Context, userID, pageID string) error

	// Search returns the k chunks nearest to query for the user, ascending by
	// distance with chunk id as tiebreak.
	Search(ctx context.Context, userID string, query []float32, k int) ([]*domain.ScoredChunk, error)

	// ChunksForURLs returns every chunk of the user's pages with the given
	// canonical URLs, in URL order then chunk position. Distance is zero.
	ChunksForURLs(ctx context.Context, userID string, urls []string) ([]*domain.ScoredChunk, error)

	// DeleteUser deletes a user with all pages and chunks. Unknown keys are a no-op.
	DeleteUser(ctx context.Context, userKey string) error

	// Reset clears all pages and chunks across all users
	Reset(ctx context.Context) error

	// Dimensions returns the embedding dimension of the chunk column
	Dimensions() int

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error
}
