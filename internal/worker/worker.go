package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/metrics"
)

// TaskRunner executes one dequeued task. The error is set only when the
// task produced nothing; partial failures come back on the results.
type TaskRunner interface {
	RunTask(ctx context.Context, task *domain.Task) ([]*domain.IngestResult, error)
}

// Worker processes scrape and rescrape tasks from the task queue.
type Worker struct {
	taskQueue driven.TaskQueue
	runner    TaskRunner
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds
	purgeInterval  time.Duration
	retention      time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Runner         TaskRunner
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again

	// PurgeInterval is how often finished tasks are purged; 0 disables purging
	PurgeInterval time.Duration
	// Retention is how long finished tasks stay visible to TaskStatus
	Retention time.Duration
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		runner:         cfg.Runner,
		metrics:        cfg.Metrics,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		purgeInterval:  cfg.PurgeInterval,
		retention:      retention,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
		"purge_interval", w.purgeInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	if w.purgeInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.purgeLoop(ctx)
		}()
	}

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs a single task and settles it on the queue.
// A task with at least one stored URL is acked with the per-URL failures
// as its note; otherwise it is nacked for retry.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "user", task.UserID)
	logger.Info("processing task", "attempt", task.Attempts)

	release := w.holdClaim(ctx, task.ID, logger)
	startTime := time.Now()
	results, err := w.runner.RunTask(ctx, task)
	duration := time.Since(startTime)
	release()
	w.metrics.ObserveTask(string(task.Type), err)

	if err != nil {
		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		// Nack the task so it can be retried
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	note := domain.FailureSummary(results)
	logger.Info("task completed",
		"duration", duration,
		"stored", domain.Stored(results),
		"failed", len(results)-domain.Stored(results),
	)

	if ackErr := w.taskQueue.Ack(ctx, task.ID, note); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// holdClaim keeps extending the task's claim at a third of the queue's claim
// timeout until the returned func is called. Queues without claim timeouts
// get a no-op.
func (w *Worker) holdClaim(ctx context.Context, taskID string, logger *slog.Logger) func() {
	ext, ok := w.taskQueue.(driven.ClaimExtender)
	if !ok || ext.ClaimTimeout() <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(ext.ClaimTimeout() / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.ExtendClaim(ctx, taskID); err != nil {
					logger.Warn("failed to extend task claim", "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// purgeLoop drops finished tasks older than the retention window.
func (w *Worker) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *Worker) purge(ctx context.Context) {
	n, err := w.taskQueue.PurgeTasks(ctx, int(w.retention.Seconds()))
	if err != nil {
		w.logger.Warn("failed to purge tasks", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("purged finished tasks", "count", n)
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
