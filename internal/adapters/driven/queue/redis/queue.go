package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

const (
	taskStream     = "sercha-rag:tasks"
	taskGroup      = "sercha-rag:workers"
	scheduledTasks = "sercha-rag:scheduled"

	taskKeyPrefix  = "sercha-rag:task:"
	userKeyPrefix  = "sercha-rag:user-tasks:"
	msgKeySuffix   = ":msg"
	consumerPrefix = "worker-"

	// taskTTL bounds how long task records survive without a purge
	taskTTL = 24 * time.Hour

	// defaultClaimTimeout is how long a delivered task may sit unacked
	// without an extension before another worker takes it over
	defaultClaimTimeout = 5 * time.Minute
)

// ErrClaimLost means another consumer took over the task's stream message.
var ErrClaimLost = errors.New("task claim lost")

// Verify interface compliance
var (
	_ driven.TaskQueue     = (*Queue)(nil)
	_ driven.ClaimExtender = (*Queue)(nil)
)

// Queue implements TaskQueue using Redis Streams with a consumer group.
// Task bodies live in plain keys; the stream only carries IDs. Delayed
// retries sit in a sorted set until due.
type Queue struct {
	client       *redis.Client
	consumerName string
	claimTimeout time.Duration
}

// NewQueue creates a new Redis-backed task queue.
// consumerName should be unique per worker process.
func NewQueue(client *redis.Client, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}

	q := &Queue{
		client:       client,
		consumerName: consumerName,
		claimTimeout: defaultClaimTimeout,
	}

	err := q.client.XGroupCreateMkStream(context.Background(), taskStream, taskGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

func taskKey(id string) string { return taskKeyPrefix + id }

func userIndexKey(userID string) string { return userKeyPrefix + userID }

func streamValues(task *domain.Task) map[string]interface{} {
	return map[string]interface{}{
		"task_id":  task.ID,
		"type":     string(task.Type),
		"user_id":  task.UserID,
		"priority": task.Priority,
	}
}

// stage queues the writes that make a task visible.
func (q *Queue) stage(ctx context.Context, pipe redis.Pipeliner, task *domain.Task, now time.Time) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	pipe.Set(ctx, taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, userIndexKey(task.UserID), redis.Z{
		Score:  float64(task.CreatedAt.UnixNano()),
		Member: task.ID,
	})
	pipe.Expire(ctx, userIndexKey(task.UserID), taskTTL)

	if task.ScheduledFor.After(now) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: taskStream, Values: streamValues(task)})
	}
	return nil
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds tasks in one MULTI/EXEC.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	now := time.Now()
	pipe := q.client.TxPipeline()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := q.stage(ctx, pipe, task, now); err != nil {
			return err
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue tasks: %w", err)
	}
	return nil
}

// Dequeue blocks until a task is delivered or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.DequeueWithTimeout(ctx, 0)
}

// DequeueWithTimeout waits up to timeout seconds (0 blocks) for a task.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// Best effort; a failure here only delays retries.
	_ = q.promoteScheduledTasks(ctx)

	if task, err := q.claimAbandonedTask(ctx); err == nil && task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    time.Duration(timeout) * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver loads the task behind a stream message and marks it processing.
// Messages without a live task are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, ok := msg.Values["task_id"].(string)
	if !ok {
		q.drop(ctx, msg.ID)
		return nil, nil
	}

	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		q.drop(ctx, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task data: %w", err)
	}
	if task.Status != domain.TaskStatusPending {
		// Cancelled while queued.
		q.drop(ctx, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, taskKey(task.ID), data, taskTTL)
	pipe.Set(ctx, taskKey(task.ID)+msgKeySuffix, msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to mark task processing: %w", err)
	}
	return task, nil
}

func (q *Queue) drop(ctx context.Context, msgID string) {
	q.client.XAck(ctx, taskStream, taskGroup, msgID)
	q.client.XDel(ctx, taskStream, msgID)
}

// finish acks the stream message for a task and stores its new state.
func (q *Queue) finish(ctx context.Context, task *domain.Task, reschedule bool) error {
	msgID, err := q.client.Get(ctx, taskKey(task.ID)+msgKeySuffix).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	pipe.Set(ctx, taskKey(task.ID), data, taskTTL)
	if reschedule {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	}
	pipe.Del(ctx, taskKey(task.ID)+msgKeySuffix)

	_, err = pipe.Exec(ctx)
	return err
}

// Ack marks a task completed with an optional note.
func (q *Queue) Ack(ctx context.Context, taskID string, note string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	task.MarkCompleted(note)
	if err := q.finish(ctx, task, false); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}
	return nil
}

// Nack schedules a retry with back-off, or fails the task when out of attempts.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	retry := task.CanRetry()
	if retry {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}

	if err := q.finish(ctx, task, retry); err != nil {
		return fmt.Errorf("failed to nack task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// ListTasks reads the user's task index, newest first.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	ids, err := q.client.ZRevRange(ctx, userIndexKey(filter.UserID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var tasks []*domain.Task
	skipped := 0
	var stale []interface{}
	for _, id := range ids {
		task, err := q.GetTask(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}

		tasks = append(tasks, task)
		if filter.Limit > 0 && len(tasks) >= filter.Limit {
			break
		}
	}

	if len(stale) > 0 {
		q.client.ZRem(ctx, userIndexKey(filter.UserID), stale...)
	}
	return tasks, nil
}

// CancelTask fails a task that has not been picked up.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidInput, taskID, task.Status)
	}

	task.MarkFailed("cancelled")
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	// A stream entry may remain; deliver drops it on sight.
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, scheduledTasks, taskID)
	pipe.Set(ctx, taskKey(taskID), data, taskTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// scanTasks calls fn for every stored task.
func (q *Queue) scanTasks(ctx context.Context, fn func(key string, task *domain.Task)) error {
	iter := q.client.Scan(ctx, 0, taskKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, msgKeySuffix) {
			continue
		}

		data, err := q.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var task domain.Task
		if json.Unmarshal(data, &task) != nil {
			continue
		}
		fn(key, &task)
	}
	return iter.Err()
}

// PurgeTasks removes completed and failed tasks older than the given seconds.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	purged := 0

	err := q.scanTasks(ctx, func(key string, task *domain.Task) {
		done := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if done && task.UpdatedAt.Before(cutoff) {
			q.client.Del(ctx, key)
			q.client.ZRem(ctx, userIndexKey(task.UserID), task.ID)
			purged++
		}
	})
	if err != nil {
		return purged, fmt.Errorf("failed to scan tasks: %w", err)
	}
	return purged, nil
}

// Stats returns queue statistics. Completed and failed counts need a scan.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	var oldest time.Time

	err := q.scanTasks(ctx, func(_ string, task *domain.Task) {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if oldest.IsZero() || task.CreatedAt.Before(oldest) {
				oldest = task.CreatedAt
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}

	if !oldest.IsZero() {
		stats.OldestPendingAge = int64(time.Since(oldest).Seconds())
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared.
func (q *Queue) Close() error {
	return nil
}

// promoteScheduledTasks moves due retries onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	ids, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := q.client.Pipeline()
	for _, id := range ids {
		// ZRem decides which promoter wins when several workers race.
		removed, err := q.client.ZRem(ctx, scheduledTasks, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, id)
		if err != nil {
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: taskStream, Values: streamValues(task)})
	}

	_, err = pipe.Exec(ctx)
	return err
}

// ClaimTimeout returns how long a claim lasts without an extension.
func (q *Queue) ClaimTimeout() time.Duration {
	return q.claimTimeout
}

// ExtendClaim resets the idle time of the task's stream message, provided
// this consumer still owns it.
func (q *Queue) ExtendClaim(ctx context.Context, taskID string) error {
	msgID, err := q.client.Get(ctx, taskKey(taskID)+msgKeySuffix).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: task %s has no delivery", ErrClaimLost, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	owned, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   taskStream,
		Group:    taskGroup,
		Start:    msgID,
		End:      msgID,
		Count:    1,
		Consumer: q.consumerName,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read pending entry: %w", err)
	}
	if len(owned) == 0 {
		return fmt.Errorf("%w: task %s", ErrClaimLost, taskID)
	}

	err = q.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   taskStream,
		Group:    taskGroup,
		Consumer: q.consumerName,
		Messages: []string{msgID},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to extend claim: %w", err)
	}
	return nil
}

// claimAbandonedTask takes over a message left unacked past claimTimeout.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		// The previous owner died mid-task, so the record says processing.
		msg := claimed[0]
		taskID, _ := msg.Values["task_id"].(string)
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			q.drop(ctx, msg.ID)
			continue
		}
		task.Status = domain.TaskStatusPending
		data, _ := json.Marshal(task)
		q.client.Set(ctx, taskKey(task.ID), data, taskTTL)

		if t, err := q.deliver(ctx, msg); err == nil && t != nil {
			return t, nil
		}
	}

	return nil, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
