package postprocessors

import (
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline chains post-processors, sorted by Order before each run.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process runs the page text through every processor in order.
// Empty text yields no chunks.
func (p *Pipeline) Process(content string) []driven.Chunk {
	if content == "" {
		return nil
	}

	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	chunks := []driven.Chunk{{Content: content}}
	for _, proc := range processors {
		chunks = proc.Process(chunks)
		if len(chunks) == 0 {
			return nil
		}
	}
	return chunks
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	sort.SliceStable(p.processors, func(i, j int) bool {
		return p.processors[i].Order() < p.processors[j].Order()
	})
	p.sorted = true

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline builds normalize -> token chunker -> empty filter.
func DefaultPipeline(tok Tokenizer, cfg ChunkConfig) (*Pipeline, error) {
	chunker, err := NewTokenChunker(tok, cfg)
	if err != nil {
		return nil, err
	}

	p := NewPipeline()
	p.Add(NewTextNormalizer())
	p.Add(chunker)
	p.Add(NewEmptyFilter())
	return p, nil
}
