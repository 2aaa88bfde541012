package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a random (version 4) UUID string.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeScrape ingests a list of URLs for a user
	TaskTypeScrape TaskType = "scrape"
	// TaskTypeRescrape re-ingests an existing page
	TaskTypeRescrape TaskType = "rescrape"
)

// Payload keys
const (
	PayloadURLs     = "urls"
	PayloadRenderJS = "render_js"
	PayloadPageID   = "page_id"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// UserID is the user key the task runs for
	UserID string `json:"user_id"`

	// Payload contains task-specific data
	// For scrape: {"urls": "https://a\nhttps://b", "render_js": "false"}
	// For rescrape: {"page_id": "...", "urls": "https://a", "render_js": "false"}
	Payload map[string]string `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	Priority int `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed, or per-URL failures
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for retries)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, userID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		UserID:       ResolveUserKey(userID),
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewScrapeTask creates a task to ingest urls for a user
func NewScrapeTask(userID string, urls []string, renderJS bool) *Task {
	return NewTask(TaskTypeScrape, userID, map[string]string{
		PayloadURLs:     strings.Join(urls, "\n"),
		PayloadRenderJS: strconv.FormatBool(renderJS),
	})
}

// NewRescrapeTask creates a task to re-ingest an existing page
func NewRescrapeTask(userID, pageID, pageURL string, renderJS bool) *Task {
	return NewTask(TaskTypeRescrape, userID, map[string]string{
		PayloadPageID:   pageID,
		PayloadURLs:     pageURL,
		PayloadRenderJS: strconv.FormatBool(renderJS),
	})
}

// URLs extracts the url list from the payload
func (t *Task) URLs() []string {
	if t.Payload == nil || t.Payload[PayloadURLs] == "" {
		return nil
	}
	return strings.Split(t.Payload[PayloadURLs], "\n")
}

// RenderJS reports whether JS rendering was requested
func (t *Task) RenderJS() bool {
	if t.Payload == nil {
		return false
	}
	v, _ := strconv.ParseBool(t.Payload[PayloadRenderJS])
	return v
}

// PageID extracts the page_id from the payload (for rescrape tasks)
func (t *Task) PageID() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload[PayloadPageID]
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && !time.Now().Before(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state.
// note carries per-URL failures of a partially successful scrape.
func (t *Task) MarkCompleted(note string) {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = note
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// 2s, 4s, 8s... capped at 5 minutes
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	t.ScheduledFor = now.Add(backoff)
}

// TaskResult represents the outcome of processing a task
type TaskResult struct {
	TaskID      string          `json:"task_id"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Duration    time.Duration   `json:"duration"`
	Results     []*IngestResult `json:"results,omitempty"`
	ItemsCount  int             `json:"items_count,omitempty"`  // pages stored
	ErrorsCount int             `json:"errors_count,omitempty"` // urls failed
}
