package fetcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Renderer = (*ChromeRenderer)(nil)

// Chrome fires networkIdle once a document has had no open connections
// for 500ms.
const (
	lifecycleInit        = "init"
	lifecycleNetworkIdle = "networkIdle"
)

// idleWaiter follows page lifecycle events and closes done when the
// navigation started after arm reaches networkIdle in its own frame.
// Subframe loads and the blank tab's initial document are ignored.
type idleWaiter struct {
	mu     sync.Mutex
	armed  bool
	frame  cdp.FrameID
	loader cdp.LoaderID
	once   sync.Once
	done   chan struct{}
}

func newIdleWaiter() *idleWaiter {
	return &idleWaiter{done: make(chan struct{})}
}

func (w *idleWaiter) arm() {
	w.mu.Lock()
	w.armed = true
	w.mu.Unlock()
}

// observe is the target listener.
func (w *idleWaiter) observe(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return
	}

	switch e.Name {
	case lifecycleInit:
		// The first document after arm is the navigation's; later inits in the
		// same frame are redirects or script navigations.
		if w.frame == "" || w.frame == e.FrameID {
			w.frame = e.FrameID
			w.loader = e.LoaderID
		}
	case lifecycleNetworkIdle:
		if w.frame != "" && e.FrameID == w.frame && e.LoaderID == w.loader {
			w.once.Do(func() { close(w.done) })
		}
	}
}

// wait blocks until networkIdle or ctx ends.
func (w *idleWaiter) wait() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for network idle: %w", ctx.Err())
		}
	}
}

// ChromeRenderer renders pages in a shared headless Chrome. Each Render opens
// its own tab.
type ChromeRenderer struct {
	userAgent string

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewChromeRenderer starts a headless browser. execPath may be empty to let
// chromedp locate Chrome.
func NewChromeRenderer(userAgent, execPath string) (*ChromeRenderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing binary fails at startup.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &ChromeRenderer{
		userAgent:   userAgent,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

// Render navigates to url in a fresh tab, waits until the network goes idle,
// then returns the outer HTML and the final location. The caller's context
// bounds the whole render.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, string, error) {
	r.mu.Lock()
	browserCtx := r.browserCtx
	r.mu.Unlock()
	if browserCtx == nil {
		return "", "", fmt.Errorf("renderer closed")
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	idle := newIdleWaiter()
	chromedp.ListenTarget(tabCtx, idle.observe)

	var html, location string
	err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(context.Context) error {
			idle.arm()
			return nil
		}),
		chromedp.Navigate(url),
		idle.wait(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		return "", "", err
	}
	return html, location, nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.allocCancel()
		r.cancel = nil
		r.browserCtx = nil
	}
	return nil
}
