package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

const refundPage = "Refunds are accepted within 30 days of purchase. Items must be unused and in original packaging."

func TestIngestService_ScrapeNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.AddPage("https://shop.example/refunds", "text/plain", refundPage)

	results, err := f.ingest.ScrapeNow(ctx, "alice", []string{"shop.example/refunds#top"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	r := results[0]
	if !r.OK() {
		t.Fatalf("expected success, got %q", r.Error)
	}
	if r.URL != "https://shop.example/refunds" {
		t.Errorf("expected canonical url, got %s", r.URL)
	}
	if r.Chunks != 1 {
		t.Errorf("expected 1 chunk, got %d", r.Chunks)
	}
	if f.store.ChunkCount(r.PageID) != 1 {
		t.Errorf("expected 1 stored chunk, got %d", f.store.ChunkCount(r.PageID))
	}

	lockName := "ingest:alice:https://shop.example/refunds"
	if acquired := f.lock.Acquired(); len(acquired) != 1 || acquired[0] != lockName {
		t.Errorf("expected lock %s, got %v", lockName, acquired)
	}
	if f.lock.IsHeld(lockName) {
		t.Error("lock should be released after ingest")
	}
}

func TestIngestService_ScrapeNow_ChunksInBatches(t *testing.T) {
	f := newFixture(t)
	f.fetcher.AddPage("https://long.example/", "text/plain", words("w", 150))

	results, err := f.ingest.ScrapeNow(context.Background(), "", []string{"https://long.example/"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// ceil((150-5)/(40-5)) = 5 windows, embedded 2 per call
	if results[0].Chunks != 5 {
		t.Fatalf("expected 5 chunks, got %d (%s)", results[0].Chunks, results[0].Error)
	}
	if f.embedder.Calls() != 3 {
		t.Errorf("expected 3 embedding calls, got %d", f.embedder.Calls())
	}
}

func TestIngestService_ScrapeNow_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.AddPage("https://ok.example/", "text/plain", refundPage)

	results, err := f.ingest.ScrapeNow(context.Background(), "bob",
		[]string{"https://missing.example/", "ftp://bad", "https://ok.example/"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].OK() || !strings.Contains(results[0].Error, "fetch failed") {
		t.Errorf("expected fetch failure, got %+v", results[0])
	}
	if results[1].OK() || !strings.Contains(results[1].Error, "invalid input") {
		t.Errorf("expected invalid input, got %+v", results[1])
	}
	if !results[2].OK() {
		t.Errorf("expected third url to succeed, got %q", results[2].Error)
	}
	if domain.Stored(results) != 1 {
		t.Errorf("expected 1 stored, got %d", domain.Stored(results))
	}
}

func TestIngestService_ScrapeNow_LockHeld(t *testing.T) {
	f := newFixture(t)
	f.fetcher.AddPage("https://busy.example/", "text/plain", refundPage)
	f.lock.SetLockHeld("ingest:alice:https://busy.example/", time.Minute)

	results, _ := f.ingest.ScrapeNow(context.Background(), "alice", []string{"https://busy.example/"}, false)
	if results[0].Error != domain.ErrIngestInProgress.Error() {
		t.Errorf("expected ErrIngestInProgress, got %q", results[0].Error)
	}
	if len(f.fetcher.Fetched()) != 0 {
		t.Error("page should not be fetched while locked")
	}
}

func TestIngestService_ScrapeNow_EmbeddingFailureKeepsOldChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.AddPage("https://shop.example/", "text/plain", refundPage)

	first, _ := f.ingest.ScrapeNow(ctx, "alice", []string{"https://shop.example/"}, false)
	pageID := first[0].PageID

	f.embedder.SetFailNext(true)
	second, _ := f.ingest.ScrapeNow(ctx, "alice", []string{"https://shop.example/"}, false)
	if second[0].OK() {
		t.Fatal("expected embedding failure")
	}
	if !strings.Contains(second[0].Error, domain.ErrGenerationService.Error()) {
		t.Errorf("expected generation error, got %q", second[0].Error)
	}
	if f.store.ChunkCount(pageID) != 1 {
		t.Errorf("previous chunks should survive, got %d", f.store.ChunkCount(pageID))
	}
}

func TestIngestService_ScrapeNow_DimensionMismatch(t *testing.T) {
	f := newFixture(t)
	f.embedder.SetDimensions(8)
	f.fetcher.AddPage("https://shop.example/", "text/plain", refundPage)

	results, _ := f.ingest.ScrapeNow(context.Background(), "alice", []string{"https://shop.example/"}, false)
	if !strings.Contains(results[0].Error, domain.ErrEmbeddingDimensionMismatch.Error()) {
		t.Errorf("expected dimension mismatch, got %q", results[0].Error)
	}
	if f.store.PageCount() != 0 {
		t.Error("nothing should be written")
	}
}

func TestIngestService_ScrapeNow_NoEmbedding(t *testing.T) {
	f := newFixture(t)
	f.runtime.SetEmbeddingService(nil)
	f.fetcher.AddPage("https://shop.example/", "text/plain", refundPage)

	results, _ := f.ingest.ScrapeNow(context.Background(), "alice", []string{"https://shop.example/"}, false)
	if !strings.Contains(results[0].Error, domain.ErrServiceUnavailable.Error()) {
		t.Errorf("expected service unavailable, got %q", results[0].Error)
	}
}

func TestIngestService_ScrapeNow_Empty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ingest.ScrapeNow(context.Background(), "alice", nil, false); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestService_Scrape_Enqueues(t *testing.T) {
	f := newFixture(t)

	task, err := f.ingest.Scrape(context.Background(), " alice ", []string{"A.example/x", " ", "a.example/x"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type != domain.TaskTypeScrape || task.UserID != "alice" {
		t.Errorf("unexpected task: %+v", task)
	}
	if urls := task.URLs(); len(urls) != 1 || urls[0] != "https://a.example/x" {
		t.Errorf("expected one canonical url, got %v", urls)
	}
	if !task.RenderJS() {
		t.Error("expected render_js")
	}
	if len(f.queue.Pending()) != 1 {
		t.Error("expected task in queue")
	}

	if _, err := f.ingest.Scrape(context.Background(), "alice", []string{"  "}, false); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank urls, got %v", err)
	}
	if _, err := f.ingest.Scrape(context.Background(), "alice", []string{"mailto:x@y"}, false); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad scheme, got %v", err)
	}
}

func TestIngestService_RunTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.AddPage("https://shop.example/", "text/plain", refundPage)

	task, _ := f.ingest.Scrape(ctx, "alice", []string{"https://shop.example/", "https://gone.example/"}, false)
	results, err := f.ingest.RunTask(ctx, task)
	if err != nil {
		t.Fatalf("partial success should not fail the task: %v", err)
	}
	note := domain.FailureSummary(results)
	if !strings.HasPrefix(note, "https://gone.example/: ") {
		t.Errorf("unexpected failure summary %q", note)
	}

	failing, _ := f.ingest.Scrape(ctx, "alice", []string{"https://gone.example/"}, false)
	if _, err := f.ingest.RunTask(ctx, failing); err == nil {
		t.Error("expected error when no url is stored")
	}

	if _, err := f.ingest.RunTask(ctx, &domain.Task{Type: "bogus"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}

func TestIngestService_Rescrape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.AddPage("https://shop.example/", "text/plain", refundPage)

	first, _ := f.ingest.ScrapeNow(ctx, "alice", []string{"https://shop.example/"}, false)
	pageID := first[0].PageID

	if _, err := f.ingest.Rescrape(ctx, "bob", pageID, false); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("other users must not rescrape, got %v", err)
	}

	f.fetcher.AddPage("https://shop.example/", "text/plain", "Refunds are now accepted within 60 days.")
	task, err := f.ingest.Rescrape(ctx, "alice", pageID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.PageID() != pageID {
		t.Errorf("expected page id in payload, got %q", task.PageID())
	}

	results, err := f.ingest.RunTask(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].PageID != pageID {
		t.Errorf("rescrape should keep the page id, got %s", results[0].PageID)
	}

	page, _ := f.pages.Get(ctx, "alice", pageID)
	if !strings.Contains(page.Content, "60 days") {
		t.Errorf("expected new content, got %q", page.Content)
	}
}

func TestIngestService_RescrapeDeletedPage(t *testing.T) {
	f := newFixture(t)
	task := domain.NewRescrapeTask("alice", "missing", "https://shop.example/", false)

	if _, err := f.ingest.RunTask(context.Background(), task); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIngestService_Tasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, _ := f.ingest.Scrape(ctx, "alice", []string{"https://shop.example/"}, false)

	if _, err := f.ingest.TaskStatus(ctx, "bob", task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign task, got %v", err)
	}
	got, err := f.ingest.TaskStatus(ctx, "alice", task.ID)
	if err != nil || got.ID != task.ID {
		t.Fatalf("expected own task, got %v, %v", got, err)
	}

	list, _ := f.ingest.ListTasks(ctx, "alice", 0)
	if len(list) != 1 {
		t.Errorf("expected 1 task, got %d", len(list))
	}

	if err := f.ingest.CancelTask(ctx, "bob", task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound cancelling a foreign task, got %v", err)
	}
	if err := f.ingest.CancelTask(ctx, "alice", task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.ingest.CancelTask(ctx, "alice", task.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a finished task, got %v", err)
	}

	stats, err := f.ingest.QueueStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Errorf("expected empty queue, got %d", stats.PendingCount)
	}
}

func TestIngestService_RenderJSPassedThrough(t *testing.T) {
	f := newFixture(t)
	var seen driven.FetchOptions
	f.fetcher.FetchFn = func(rawURL string, opts driven.FetchOptions) *domain.ScrapeResult {
		seen = opts
		return domain.NewScrapeResult(rawURL).Fail(domain.ErrRendererUnavailable)
	}

	results, _ := f.ingest.ScrapeNow(context.Background(), "alice", []string{"https://spa.example/"}, true)
	if !seen.RenderJS {
		t.Error("expected RenderJS option")
	}
	if results[0].Error != domain.ErrRendererUnavailable.Error() {
		t.Errorf("expected renderer error, got %q", results[0].Error)
	}
}
