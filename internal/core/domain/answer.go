package domain

// PreviewLength is the number of runes kept in Source.ChunkPreview
const PreviewLength = 200

// Answer is a grounded response to a question
type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// Source cites a chunk that grounded an answer
type Source struct {
	URL          string  `json:"url"`
	Title        string  `json:"title,omitempty"`
	Distance     float64 `json:"distance"`
	ChunkPreview string  `json:"chunk_preview"`
}

// Summary is the result of summarising explicit URLs
type Summary struct {
	URLs       []string `json:"urls"`
	Summary    string   `json:"summary"`
	ChunkCount int      `json:"chunk_count"`
}

// NewSource builds a Source from a search hit
func NewSource(sc *ScoredChunk) Source {
	return Source{
		URL:          sc.URL,
		Title:        sc.Title,
		Distance:     sc.Distance,
		ChunkPreview: Preview(sc.Chunk.Text, PreviewLength),
	}
}

// Preview returns at most n runes of s.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
