package services

import (
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

const testDimensions = 64

// wordTokenizer maps each space-separated word to a token; reversible for
// single-spaced text.
type wordTokenizer struct {
	vocab map[string]int
	words []string
}

func newWordTokenizer() *wordTokenizer {
	return &wordTokenizer{vocab: make(map[string]int)}
}

func (w *wordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.vocab[f]
		if !ok {
			id = len(w.words)
			w.vocab[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

func (w *wordTokenizer) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = w.words[t]
	}
	return strings.Join(parts, " ")
}

// fixture wires the services over in-memory collaborators.
type fixture struct {
	store    *mocks.MockPageStore
	queue    *mocks.MockTaskQueue
	lock     *mocks.MockDistributedLock
	fetcher  *mocks.MockFetcher
	embedder *mocks.MockEmbeddingService
	llm      *mocks.MockLLMService
	runtime  *runtime.Services

	ingest *ingestService
	answer *answerService
	pages  *pageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pipeline, err := postprocessors.DefaultPipeline(newWordTokenizer(), postprocessors.ChunkConfig{
		WindowTokens:  40,
		OverlapTokens: 5,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	f := &fixture{
		store:    mocks.NewMockPageStore(testDimensions),
		queue:    mocks.NewMockTaskQueue(),
		lock:     mocks.NewMockDistributedLock(),
		fetcher:  mocks.NewMockFetcher(),
		embedder: mocks.NewMockEmbeddingService(),
		llm:      mocks.NewMockLLMService(),
		runtime:  runtime.NewServices(domain.NewRuntimeConfig("postgres")),
	}
	f.embedder.SetDimensions(testDimensions)
	f.runtime.SetEmbeddingService(f.embedder)
	f.runtime.SetLLMService(f.llm)

	f.ingest = NewIngestService(IngestConfig{
		Store:          f.store,
		Queue:          f.queue,
		Lock:           f.lock,
		Fetcher:        f.fetcher,
		Extractor:      mocks.NewMockExtractor(),
		Pipeline:       pipeline,
		Services:       f.runtime,
		EmbedBatchSize: 2,
	}).(*ingestService)
	f.answer = NewAnswerService(AnswerConfig{Store: f.store, Services: f.runtime}).(*answerService)
	f.pages = NewPageService(f.store, nil).(*pageService)
	return f
}

// words returns n distinct filler words.
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix + strings.Repeat("x", i%7) + string(rune('a'+i%26))
	}
	return strings.Join(parts, " ")
}
