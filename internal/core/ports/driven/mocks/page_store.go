package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.PageStore = (*MockPageStore)(nil)

// MockPageStore is an in-memory PageStore with the same isolation and
// cascade semantics as the Postgres store. Distances are cosine.
type MockPageStore struct {
	mu         sync.RWMutex
	dimensions int
	users      map[string]string // key -> id
	pages      map[string]*domain.Page
	chunks     map[string][]*domain.Chunk // page id -> chunks

	// SaveErr, when set, is returned by SavePage without writing
	SaveErr error
}

// NewMockPageStore creates a new MockPageStore
func NewMockPageStore(dimensions int) *MockPageStore {
	return &MockPageStore{
		dimensions: dimensions,
		users:      make(map[string]string),
		pages:      make(map[string]*domain.Page),
		chunks:     make(map[string][]*domain.Chunk),
	}
}

func (m *MockPageStore) EnsureUser(ctx context.Context, userKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureUser(userKey), nil
}

func (m *MockPageStore) ensureUser(userKey string) string {
	userKey = domain.ResolveUserKey(userKey)
	if id, ok := m.users[userKey]; ok {
		return id
	}
	id := "user-" + domain.GenerateID()
	m.users[userKey] = id
	return id
}

func (m *MockPageStore) UpsertPage(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsert(page), nil
}

func (m *MockPageStore) upsert(page *domain.Page) *domain.Page {
	now := time.Now()
	if existing := m.findByURL(page.UserID, page.URL); existing != nil {
		existing.Title = page.Title
		existing.Content = page.Content
		existing.ContentHash = page.ContentHash
		existing.Language = page.Language
		existing.CreatedAt = now
		cp := *existing
		return &cp
	}

	stored := *page
	if stored.ID == "" {
		stored.ID = domain.GenerateID()
	}
	stored.CreatedAt = now
	m.pages[stored.ID] = &stored
	cp := stored
	return &cp
}

func (m *MockPageStore) findByURL(userID, url string) *domain.Page {
	for _, p := range m.pages {
		if p.UserID == userID && p.URL == url {
			return p
		}
	}
	return nil
}

func (m *MockPageStore) AddChunks(ctx context.Context, userID, pageID string, chunks []*domain.Chunk) error {
	if err := m.checkDimensions(chunks); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	page, ok := m.pages[pageID]
	if !ok || page.UserID != userID {
		return domain.ErrNotFound
	}
	m.chunks[pageID] = append(m.chunks[pageID], m.prepare(userID, pageID, chunks)...)
	return nil
}

func (m *MockPageStore) SavePage(ctx context.Context, page *domain.Page, chunks []*domain.Chunk) (*domain.Page, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	if err := m.checkDimensions(chunks); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.upsert(page)
	m.chunks[stored.ID] = m.prepare(stored.UserID, stored.ID, chunks)
	return stored, nil
}

func (m *MockPageStore) prepare(userID, pageID string, chunks []*domain.Chunk) []*domain.Chunk {
	now := time.Now()
	out := make([]*domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		cp := *c
		if cp.ID == "" {
			cp.ID = domain.GenerateID()
		}
		cp.UserID = userID
		cp.PageID = pageID
		cp.CreatedAt = now
		out = append(out, &cp)
	}
	return out
}

func (m *MockPageStore) checkDimensions(chunks []*domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != m.dimensions {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrEmbeddingDimensionMismatch, len(c.Embedding), m.dimensions)
		}
	}
	return nil
}

func (m *MockPageStore) GetPage(ctx context.Context, userID, pageID string) (*domain.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page, ok := m.pages[pageID]
	if !ok || page.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *page
	return &cp, nil
}

func (m *MockPageStore) ListPages(ctx context.Context, userID string) ([]*domain.PageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.PageSummary
	for _, p := range m.pages {
		if p.UserID == userID {
			out = append(out, p.ToSummary(len(m.chunks[p.ID])))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockPageStore) DeletePage(ctx context.Context, userID, pageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	page, ok := m.pages[pageID]
	if !ok || page.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.pages, pageID)
	delete(m.chunks, pageID)
	return nil
}

func (m *MockPageStore) Search(ctx context.Context, userID string, query []float32, k int) ([]*domain.ScoredChunk, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrEmbeddingDimensionMismatch, len(query), m.dimensions)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*domain.ScoredChunk
	for pageID, chunks := range m.chunks {
		page := m.pages[pageID]
		if page == nil || page.UserID != userID {
			continue
		}
		for _, c := range chunks {
			cp := *c
			hits = append(hits, &domain.ScoredChunk{
				Chunk:    &cp,
				URL:      page.URL,
				Title:    page.Title,
				Distance: CosineDistance(query, c.Embedding),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].Chunk.ID < hits[j].Chunk.ID
		}
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MockPageStore) ChunksForURLs(ctx context.Context, userID string, urls []string) ([]*domain.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.ScoredChunk
	for _, u := range urls {
		page := m.findByURL(userID, u)
		if page == nil {
			continue
		}
		chunks := append([]*domain.Chunk(nil), m.chunks[page.ID]...)
		sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
		for _, c := range chunks {
			cp := *c
			out = append(out, &domain.ScoredChunk{Chunk: &cp, URL: page.URL, Title: page.Title})
		}
	}
	return out, nil
}

func (m *MockPageStore) DeleteUser(ctx context.Context, userKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userKey = domain.ResolveUserKey(userKey)
	id, ok := m.users[userKey]
	if !ok {
		return nil
	}
	for pageID, p := range m.pages {
		if p.UserID == id {
			delete(m.pages, pageID)
			delete(m.chunks, pageID)
		}
	}
	delete(m.users, userKey)
	return nil
}

func (m *MockPageStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = make(map[string]*domain.Page)
	m.chunks = make(map[string][]*domain.Chunk)
	return nil
}

func (m *MockPageStore) Dimensions() int {
	return m.dimensions
}

func (m *MockPageStore) Ping(ctx context.Context) error {
	return nil
}

// Helper methods for testing

// ChunkCount returns the number of chunks stored for a page
func (m *MockPageStore) ChunkCount(pageID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[pageID])
}

// PageCount returns the number of pages across all users
func (m *MockPageStore) PageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// CosineDistance returns 1 - cosine similarity, matching pgvector's <=> operator
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
