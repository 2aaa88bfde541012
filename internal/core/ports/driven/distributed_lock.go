package driven

import (
	"context"
	"time"
)

// DistributedLock serialises work on a named resource across workers.
// Ingestion takes one lock per (user, url) so two workers never rewrite
// the same page at once.
type DistributedLock interface {
	// Acquire tries to take the lock without blocking.
	// Returns false when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops the lock. Safe to call when not held or expired.
	Release(ctx context.Context, name string) error

	// Extend pushes out the TTL of a held lock.
	// Backends without TTL treat this as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
