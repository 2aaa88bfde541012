package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/metrics"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
)

// Ensure ingestService implements IngestService
var _ driving.IngestService = (*ingestService)(nil)

const (
	defaultEmbedBatchSize   = 64
	defaultEmbedConcurrency = 4
	defaultIngestLockTTL    = 5 * time.Minute
	defaultTaskListLimit    = 50
)

// IngestConfig holds dependencies for the ingest service.
type IngestConfig struct {
	Store     driven.PageStore
	Queue     driven.TaskQueue
	Lock      driven.DistributedLock
	Fetcher   driven.Fetcher
	Extractor driven.ContentExtractor
	Pipeline  driven.PostProcessorPipeline
	Services  *runtime.Services
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// EmbedBatchSize is the number of chunks per embedding call
	EmbedBatchSize int
	// EmbedConcurrency bounds parallel embedding calls per page
	EmbedConcurrency int
	// LockTTL bounds how long one page ingestion may hold its lock
	LockTTL time.Duration
}

// ingestService runs the per-URL flow:
//  1. canonicalise and take the (user, url) lock
//  2. fetch
//  3. extract
//  4. chunk
//  5. embed in parallel batches
//  6. save page and chunks in one transaction
type ingestService struct {
	store     driven.PageStore
	queue     driven.TaskQueue
	lock      driven.DistributedLock
	fetcher   driven.Fetcher
	extractor driven.ContentExtractor
	pipeline  driven.PostProcessorPipeline
	services  *runtime.Services
	metrics   *metrics.Metrics
	logger    *slog.Logger

	batchSize   int
	concurrency int
	lockTTL     time.Duration
}

// NewIngestService creates a new IngestService
func NewIngestService(cfg IngestConfig) driving.IngestService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatchSize
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaultEmbedConcurrency
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultIngestLockTTL
	}

	return &ingestService{
		store:       cfg.Store,
		queue:       cfg.Queue,
		lock:        cfg.Lock,
		fetcher:     cfg.Fetcher,
		extractor:   cfg.Extractor,
		pipeline:    cfg.Pipeline,
		services:    cfg.Services,
		metrics:     cfg.Metrics,
		logger:      logger,
		batchSize:   cfg.EmbedBatchSize,
		concurrency: cfg.EmbedConcurrency,
		lockTTL:     cfg.LockTTL,
	}
}

// Scrape validates urls and enqueues a scrape task
func (s *ingestService) Scrape(ctx context.Context, userKey string, urls []string, renderJS bool) (*domain.Task, error) {
	canonical, err := validateURLs(urls)
	if err != nil {
		return nil, err
	}

	task := domain.NewScrapeTask(userKey, canonical, renderJS)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue scrape: %w", err)
	}

	s.logger.Info("scrape enqueued", "task_id", task.ID, "user", task.UserID, "urls", len(canonical))
	return task, nil
}

// ScrapeNow ingests urls one after another
func (s *ingestService) ScrapeNow(ctx context.Context, userKey string, urls []string, renderJS bool) ([]*domain.IngestResult, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no urls", domain.ErrInvalidInput)
	}

	userKey = domain.ResolveUserKey(userKey)
	userID, err := s.store.EnsureUser(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	results := make([]*domain.IngestResult, 0, len(urls))
	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			results = append(results, &domain.IngestResult{URL: raw, Error: err.Error()})
			continue
		}
		results = append(results, s.ingestURL(ctx, userKey, userID, raw, renderJS))
	}
	return results, nil
}

// Rescrape enqueues re-ingestion of a stored page
func (s *ingestService) Rescrape(ctx context.Context, userKey, pageID string, renderJS bool) (*domain.Task, error) {
	userKey = domain.ResolveUserKey(userKey)
	userID, err := s.store.EnsureUser(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	page, err := s.store.GetPage(ctx, userID, pageID)
	if err != nil {
		return nil, err
	}

	task := domain.NewRescrapeTask(userKey, page.ID, page.URL, renderJS)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue rescrape: %w", err)
	}

	s.logger.Info("rescrape enqueued", "task_id", task.ID, "page_id", page.ID, "url", page.URL)
	return task, nil
}

// RunTask executes a task taken off the queue
func (s *ingestService) RunTask(ctx context.Context, task *domain.Task) ([]*domain.IngestResult, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: nil task", domain.ErrInvalidInput)
	}

	var (
		results []*domain.IngestResult
		err     error
	)
	switch task.Type {
	case domain.TaskTypeScrape:
		results, err = s.ScrapeNow(ctx, task.UserID, task.URLs(), task.RenderJS())
	case domain.TaskTypeRescrape:
		results, err = s.rescrapeNow(ctx, task)
	default:
		return nil, fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidInput, task.Type)
	}
	if err != nil {
		return results, err
	}

	if domain.Stored(results) == 0 {
		return results, fmt.Errorf("no url stored:\n%s", domain.FailureSummary(results))
	}
	return results, nil
}

// rescrapeNow re-ingests the page URL. The old chunks stay until SavePage
// swaps in the new set.
func (s *ingestService) rescrapeNow(ctx context.Context, task *domain.Task) ([]*domain.IngestResult, error) {
	userID, err := s.store.EnsureUser(ctx, task.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	page, err := s.store.GetPage(ctx, userID, task.PageID())
	if err != nil {
		// Deleted since the task was queued.
		return nil, fmt.Errorf("rescrape page %s: %w", task.PageID(), err)
	}

	return []*domain.IngestResult{s.ingestURL(ctx, task.UserID, userID, page.URL, task.RenderJS())}, nil
}

// ingestURL runs the full pipeline for one URL. Failures land on the result.
func (s *ingestService) ingestURL(ctx context.Context, userKey, userID, raw string, renderJS bool) *domain.IngestResult {
	result := &domain.IngestResult{URL: raw}

	canonical, err := domain.CanonicalizeURL(raw)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.URL = canonical

	lockName := "ingest:" + userKey + ":" + canonical
	acquired, err := s.lock.Acquire(ctx, lockName, s.lockTTL)
	if err != nil {
		result.Error = fmt.Sprintf("acquire lock: %v", err)
		return result
	}
	if !acquired {
		result.Error = domain.ErrIngestInProgress.Error()
		return result
	}
	defer func() {
		// Release with a fresh context so a cancelled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, lockName); err != nil {
			s.logger.Warn("failed to release ingest lock", "lock", lockName, "error", err)
		}
	}()

	start := time.Now()
	page, chunks, err := s.process(ctx, userID, canonical, renderJS)
	if err != nil {
		s.logger.Warn("ingest failed", "url", canonical, "user", userKey, "error", err)
		result.Error = err.Error()
		return result
	}

	stored, err := s.store.SavePage(ctx, page, chunks)
	if err != nil {
		s.logger.Error("failed to save page", "url", canonical, "error", err)
		result.Error = fmt.Sprintf("save page: %v", err)
		return result
	}
	s.metrics.AddChunksStored(len(chunks))

	result.PageID = stored.ID
	result.Title = stored.Title
	result.Chunks = len(chunks)

	s.logger.Info("page ingested",
		"url", canonical,
		"user", userKey,
		"chunks", len(chunks),
		"duration", time.Since(start))
	return result
}

// process fetches, extracts, chunks and embeds one URL without writing.
func (s *ingestService) process(ctx context.Context, userID, canonical string, renderJS bool) (*domain.Page, []*domain.Chunk, error) {
	embedder, err := s.services.RequireEmbedding()
	if err != nil {
		return nil, nil, err
	}

	res := s.fetcher.Fetch(ctx, canonical, driven.FetchOptions{RenderJS: renderJS})
	s.metrics.ObserveFetch(res.Err)
	if res.Error != "" {
		if res.Err != nil {
			return nil, nil, res.Err
		}
		return nil, nil, errors.New(res.Error)
	}

	base := res.FinalURL
	if base == "" {
		base = res.URL()
	}
	ext, err := s.extractor.Extract(ctx, domain.ExtractInput{
		Body:        res.Body,
		ContentType: res.ContentType,
		Kind:        res.Kind,
		BaseURL:     base,
	})
	if err != nil {
		return nil, nil, err
	}
	res.Title = ext.Title
	res.Text = ext.Text
	res.Language = ext.Language
	res.Links = ext.Links
	res.ContentHash = ext.ContentHash
	if !res.OK() {
		return nil, nil, fmt.Errorf("%w: no text", domain.ErrExtraction)
	}

	pieces := s.pipeline.Process(res.Text)
	if len(pieces) == 0 {
		return nil, nil, fmt.Errorf("%w: no chunks", domain.ErrExtraction)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}
	vectors, err := s.embed(ctx, embedder, texts)
	if err != nil {
		return nil, nil, err
	}

	want := s.store.Dimensions()
	chunks := make([]*domain.Chunk, len(pieces))
	for i, p := range pieces {
		if len(vectors[i]) != want {
			return nil, nil, fmt.Errorf("%w: model %s returned %d, store expects %d",
				domain.ErrEmbeddingDimensionMismatch, embedder.Model(), len(vectors[i]), want)
		}
		chunks[i] = &domain.Chunk{
			ID:        uuid.NewString(),
			UserID:    userID,
			Position:  p.Position,
			Text:      p.Content,
			Embedding: vectors[i],
		}
	}

	page := &domain.Page{
		ID:          uuid.NewString(),
		UserID:      userID,
		URL:         res.URL(),
		Title:       res.Title,
		Content:     res.Text,
		ContentHash: res.ContentHash,
		Language:    res.Language,
	}
	return page, chunks, nil
}

// embed splits texts into batches and embeds them with bounded parallelism.
// The output keeps input order.
func (s *ingestService) embed(ctx context.Context, embedder driven.EmbeddingService, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return generationFailure("embed chunks", err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%w: embed chunks: got %d vectors for %d texts",
					domain.ErrGenerationService, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TaskStatus returns a task when it belongs to the user
func (s *ingestService) TaskStatus(ctx context.Context, userKey, taskID string) (*domain.Task, error) {
	task, err := s.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != domain.ResolveUserKey(userKey) {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

// ListTasks returns the user's most recent tasks
func (s *ingestService) ListTasks(ctx context.Context, userKey string, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = defaultTaskListLimit
	}
	return s.queue.ListTasks(ctx, driven.TaskFilter{
		UserID: domain.ResolveUserKey(userKey),
		Limit:  limit,
	})
}

// CancelTask cancels a pending task of the user
func (s *ingestService) CancelTask(ctx context.Context, userKey, taskID string) error {
	if _, err := s.TaskStatus(ctx, userKey, taskID); err != nil {
		return err
	}
	return s.queue.CancelTask(ctx, taskID)
}

// QueueStats reports queue depth
func (s *ingestService) QueueStats(ctx context.Context) (*driven.QueueStats, error) {
	return s.queue.Stats(ctx)
}

// validateURLs canonicalises urls; an empty list or any invalid entry is ErrInvalidInput.
func validateURLs(urls []string) ([]string, error) {
	nonBlank := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			nonBlank = append(nonBlank, u)
		}
	}
	if len(nonBlank) == 0 {
		return nil, fmt.Errorf("%w: no urls", domain.ErrInvalidInput)
	}
	return domain.CanonicalizeURLs(nonBlank)
}

// generationFailure tags err with ErrGenerationService unless it already is.
func generationFailure(op string, err error) error {
	if errors.Is(err, domain.ErrGenerationService) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrGenerationService, op, err)
}
