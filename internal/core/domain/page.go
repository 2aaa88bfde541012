package domain

import "time"

// Page is one ingested URL owned by a user.
// Unique on (UserID, URL); URL is always in canonical form.
type Page struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash,omitempty"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk represents an embedded token window of a page
type Chunk struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PageID    string    `json:"page_id"`
	Position  int       `json:"position"` // Order produced by the chunker
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PageSummary is the listing view of a page
type PageSummary struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk is a nearest-neighbour hit joined with its page
type ScoredChunk struct {
	Chunk    *Chunk  `json:"chunk"`
	URL      string  `json:"url"`
	Title    string  `json:"title,omitempty"`
	Distance float64 `json:"distance"`
}

// ToSummary converts a Page to PageSummary
func (p *Page) ToSummary(chunkCount int) *PageSummary {
	return &PageSummary{
		ID:         p.ID,
		URL:        p.URL,
		Title:      p.Title,
		ChunkCount: chunkCount,
		CreatedAt:  p.CreatedAt,
	}
}
