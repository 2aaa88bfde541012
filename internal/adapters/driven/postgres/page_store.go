package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PageStore = (*PageStore)(nil)

// PageStore implements driven.PageStore on PostgreSQL with pgvector.
// Every query filters by user_id; nothing crosses users.
type PageStore struct {
	db *DB
}

// NewPageStore creates a new PageStore
func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db}
}

// EnsureUser returns the id for a user key, creating it on first use
func (s *PageStore) EnsureUser(ctx context.Context, userKey string) (string, error) {
	userKey = domain.ResolveUserKey(userKey)

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO users (id, key, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key
		RETURNING id
	`

	var id string
	if err := s.db.QueryRowContext(ctx, query, domain.GenerateID(), userKey).Scan(&id); err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}

const upsertPageQuery = `
	INSERT INTO pages (id, user_id, url, title, content, content_hash, language, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (user_id, url) DO UPDATE SET
		title = EXCLUDED.title,
		content = EXCLUDED.content,
		content_hash = EXCLUDED.content_hash,
		language = EXCLUDED.language,
		created_at = EXCLUDED.created_at
	RETURNING id, created_at
`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertPage(ctx context.Context, q queryRower, page *domain.Page) (*domain.Page, error) {
	stored := *page
	if stored.ID == "" {
		stored.ID = domain.GenerateID()
	}
	stored.CreatedAt = time.Now()

	err := q.QueryRowContext(ctx, upsertPageQuery,
		stored.ID,
		stored.UserID,
		stored.URL,
		NullString(stored.Title),
		stored.Content,
		NullString(stored.ContentHash),
		NullString(stored.Language),
		stored.CreatedAt,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert page: %w", err)
	}
	return &stored, nil
}

// UpsertPage inserts or replaces a page on (user_id, url)
func (s *PageStore) UpsertPage(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	return upsertPage(ctx, s.db, page)
}

// AddChunks appends chunks to a page after checking every embedding width
func (s *PageStore) AddChunks(ctx context.Context, userID, pageID string, chunks []*domain.Chunk) error {
	if err := s.checkDimensions(chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM pages WHERE id = $1`, pageID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return insertChunks(ctx, tx, userID, pageID, chunks)
	})
}

// SavePage upserts the page and swaps its chunk set atomically
func (s *PageStore) SavePage(ctx context.Context, page *domain.Page, chunks []*domain.Chunk) (*domain.Page, error) {
	if err := s.checkDimensions(chunks); err != nil {
		return nil, err
	}

	var stored *domain.Page
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = upsertPage(ctx, tx, page)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE page_id = $1`, stored.ID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		return insertChunks(ctx, tx, stored.UserID, stored.ID, chunks)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, userID, pageID string, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, user_id, page_id, position, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = domain.GenerateID()
		}
		_, err := stmt.ExecContext(ctx,
			id,
			userID,
			pageID,
			c.Position,
			c.Text,
			pgvector.NewVector(c.Embedding),
			now,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Position, err)
		}
	}
	return nil
}

func (s *PageStore) checkDimensions(chunks []*domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != s.db.dimensions {
			return fmt.Errorf("%w: chunk %d has %d, want %d",
				domain.ErrEmbeddingDimensionMismatch, c.Position, len(c.Embedding), s.db.dimensions)
		}
	}
	return nil
}

// GetPage retrieves a page owned by the user
func (s *PageStore) GetPage(ctx context.Context, userID, pageID string) (*domain.Page, error) {
	query := `
		SELECT id, user_id, url, title, content, content_hash, language, created_at
		FROM pages
		WHERE id = $1 AND user_id = $2
	`

	var page domain.Page
	var title, hash, lang sql.NullString
	err := s.db.QueryRowContext(ctx, query, pageID, userID).Scan(
		&page.ID,
		&page.UserID,
		&page.URL,
		&title,
		&page.Content,
		&hash,
		&lang,
		&page.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	page.Title = title.String
	page.ContentHash = hash.String
	page.Language = lang.String
	return &page, nil
}

// ListPages returns the user's pages, newest first
func (s *PageStore) ListPages(ctx context.Context, userID string) ([]*domain.PageSummary, error) {
	query := `
		SELECT p.id, p.url, p.title, p.created_at, COUNT(c.id)
		FROM pages p
		LEFT JOIN chunks c ON c.page_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.created_at DESC, p.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*domain.PageSummary
	for rows.Next() {
		var p domain.PageSummary
		var title sql.NullString
		if err := rows.Scan(&p.ID, &p.URL, &title, &p.CreatedAt, &p.ChunkCount); err != nil {
			return nil, err
		}
		p.Title = title.String
		pages = append(pages, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pages, nil
}

// DeletePage deletes a page; chunks go with it via the cascade
func (s *PageStore) DeletePage(ctx context.Context, userID, pageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = $1 AND user_id = $2`, pageID, userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Search returns the user's k nearest chunks by cosine distance
func (s *PageStore) Search(ctx context.Context, userID string, query []float32, k int) ([]*domain.ScoredChunk, error) {
	if len(query) != s.db.dimensions {
		return nil, fmt.Errorf("%w: query has %d, want %d",
			domain.ErrEmbeddingDimensionMismatch, len(query), s.db.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	sqlQuery := `
		SELECT c.id, c.page_id, c.position, c.text, c.created_at,
			   p.url, p.title, c.embedding <=> $2::vector AS distance
		FROM chunks c
		JOIN pages p ON p.id = c.page_id
		WHERE c.user_id = $1
		ORDER BY distance ASC, c.id ASC
		LIMIT $3
	`

	// The HNSW index is shared by all users and filtering happens after the
	// scan, so the settings make the scan keep going until k rows survive.
	var hits []*domain.ScoredChunk
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range searchSettings(k) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("configure search: %w", err)
			}
		}

		rows, err := tx.QueryContext(ctx, sqlQuery, userID, pgvector.NewVector(query), k)
		if err != nil {
			return fmt.Errorf("search chunks: %w", err)
		}
		defer rows.Close()

		hits, err = scanScored(rows, userID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// searchSettings returns the SET LOCAL statements for a k-nearest search.
// Iterative scans need pgvector 0.8 or newer.
func searchSettings(k int) []string {
	ef := k * 4
	if ef < minEFSearch {
		ef = minEFSearch
	}
	if ef > maxEFSearch {
		ef = maxEFSearch
	}
	return []string{
		"SET LOCAL hnsw.iterative_scan = strict_order",
		"SET LOCAL hnsw.ef_search = " + strconv.Itoa(ef),
	}
}

// pgvector's ef_search default and upper limit.
const (
	minEFSearch = 40
	maxEFSearch = 1000
)

// ChunksForURLs returns every chunk of the named pages in URL then position order
func (s *PageStore) ChunksForURLs(ctx context.Context, userID string, urls []string) ([]*domain.ScoredChunk, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	query := `
		SELECT c.id, c.page_id, c.position, c.text, c.created_at, p.url, p.title
		FROM chunks c
		JOIN pages p ON p.id = c.page_id
		WHERE c.user_id = $1 AND p.url = ANY($2::text[])
		ORDER BY array_position($2::text[], p.url), c.position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("chunks for urls: %w", err)
	}
	defer rows.Close()

	return scanScored(rows, userID, false)
}

func scanScored(rows *sql.Rows, userID string, withDistance bool) ([]*domain.ScoredChunk, error) {
	var hits []*domain.ScoredChunk
	for rows.Next() {
		c := &domain.Chunk{UserID: userID}
		hit := &domain.ScoredChunk{Chunk: c}
		var title sql.NullString

		dest := []any{&c.ID, &c.PageID, &c.Position, &c.Text, &c.CreatedAt, &hit.URL, &title}
		if withDistance {
			dest = append(dest, &hit.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		hit.Title = title.String
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// DeleteUser removes a user; pages and chunks cascade
func (s *PageStore) DeleteUser(ctx context.Context, userKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE key = $1`, domain.ResolveUserKey(userKey))
	return err
}

// Reset clears every page and chunk. Users are kept.
func (s *PageStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE chunks, pages`)
	return err
}

// Dimensions returns the embedding column width
func (s *PageStore) Dimensions() int {
	return s.db.dimensions
}

// Ping checks if the database is reachable
func (s *PageStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
