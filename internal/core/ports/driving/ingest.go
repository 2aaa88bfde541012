package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// IngestService fetches, extracts, chunks, embeds and stores pages
type IngestService interface {
	// Scrape enqueues background ingestion of urls and returns the task
	Scrape(ctx context.Context, userKey string, urls []string, renderJS bool) (*domain.Task, error)

	// ScrapeNow ingests urls synchronously. Per-URL failures are reported on
	// the matching result and never abort the others.
	ScrapeNow(ctx context.Context, userKey string, urls []string, renderJS bool) ([]*domain.IngestResult, error)

	// Rescrape enqueues re-ingestion of an existing page owned by the user
	Rescrape(ctx context.Context, userKey, pageID string, renderJS bool) (*domain.Task, error)

	// RunTask executes a dequeued scrape or rescrape task. The error is set
	// only when no URL of the task was stored.
	RunTask(ctx context.Context, task *domain.Task) ([]*domain.IngestResult, error)

	// TaskStatus returns a task owned by the user
	TaskStatus(ctx context.Context, userKey, taskID string) (*domain.Task, error)

	// ListTasks returns the user's tasks, newest first
	ListTasks(ctx context.Context, userKey string, limit int) ([]*domain.Task, error)

	// CancelTask cancels a pending task owned by the user
	CancelTask(ctx context.Context, userKey, taskID string) error

	// QueueStats reports queue depth across all users
	QueueStats(ctx context.Context) (*driven.QueueStats, error)
}
