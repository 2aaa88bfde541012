package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
)

func lifecycle(name, frame, loader string) *page.EventLifecycleEvent {
	return &page.EventLifecycleEvent{Name: name, FrameID: cdp.FrameID(frame), LoaderID: cdp.LoaderID(loader)}
}

func idleReached(w *idleWaiter) bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func TestIdleWaiter_WaitsForNavigationIdle(t *testing.T) {
	w := newIdleWaiter()

	// The blank tab goes idle before the navigation starts.
	w.observe(lifecycle(lifecycleInit, "main", "blank"))
	w.observe(lifecycle(lifecycleNetworkIdle, "main", "blank"))
	assert.False(t, idleReached(w), "idle before arm must be ignored")

	w.arm()
	w.observe(lifecycle(lifecycleInit, "main", "nav"))
	w.observe(lifecycle("load", "main", "nav"))
	w.observe(lifecycle(lifecycleInit, "iframe", "ad"))
	w.observe(lifecycle(lifecycleNetworkIdle, "iframe", "ad"))
	assert.False(t, idleReached(w), "subframe idle must be ignored")

	w.observe(lifecycle(lifecycleNetworkIdle, "main", "blank"))
	assert.False(t, idleReached(w), "stale loader must be ignored")

	w.observe(lifecycle(lifecycleNetworkIdle, "main", "nav"))
	assert.True(t, idleReached(w))

	// Repeated idle events are harmless.
	w.observe(lifecycle(lifecycleNetworkIdle, "main", "nav"))
}

func TestIdleWaiter_FollowsRedirectInSameFrame(t *testing.T) {
	w := newIdleWaiter()
	w.arm()

	w.observe(lifecycle(lifecycleInit, "main", "first"))
	w.observe(lifecycle(lifecycleInit, "main", "second"))
	w.observe(lifecycle(lifecycleNetworkIdle, "main", "first"))
	assert.False(t, idleReached(w))

	w.observe(lifecycle(lifecycleNetworkIdle, "main", "second"))
	assert.True(t, idleReached(w))
}

func TestIdleWaiter_WaitHonoursContext(t *testing.T) {
	w := newIdleWaiter()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.wait()(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	w.arm()
	w.observe(lifecycle(lifecycleInit, "main", "nav"))
	w.observe(lifecycle(lifecycleNetworkIdle, "main", "nav"))
	assert.NoError(t, w.wait()(context.Background()))
}
