package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Fetcher = (*HTTPFetcher)(nil)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.9"
)

// recordedHeaders are copied into result metadata as header.<name>.
var recordedHeaders = []string{"content-type", "last-modified", "etag"}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var errTooManyRedirects = errors.New("too many redirects")

// permanentError stops the retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// HTTPFetcher fetches pages over HTTP with retries, per-host politeness and an
// optional headless browser for script-rendered pages.
type HTTPFetcher struct {
	cfg      Config
	client   *http.Client
	renderer driven.Renderer
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*hostLimiter
	idleTTL  time.Duration
	lastGC   time.Time
}

type hostLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a fetcher. renderer may be nil.
func New(cfg Config, renderer driven.Renderer, logger *slog.Logger) *HTTPFetcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	return &HTTPFetcher{
		cfg:      cfg,
		client:   client,
		renderer: renderer,
		logger:   logger.With("component", "fetcher"),
		limiters: make(map[string]*hostLimiter),
		idleTTL:  10 * time.Minute,
		lastGC:   time.Now(),
	}
}

// HasRenderer reports whether JS rendering is available.
func (f *HTTPFetcher) HasRenderer() bool {
	return f.renderer != nil
}

// response is what survives a successful transfer.
type response struct {
	status    int
	header    http.Header
	body      []byte
	truncated bool
	finalURL  string
}

// Fetch retrieves rawURL. The returned result always describes the attempt;
// failures are recorded on it rather than returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts driven.FetchOptions) *domain.ScrapeResult {
	result := domain.NewScrapeResult(rawURL)
	result.Metadata[domain.MetaRenderJS] = strconv.FormatBool(opts.RenderJS)

	canonical, err := domain.CanonicalizeURL(rawURL)
	if err != nil {
		return result.Fail(err)
	}
	result.CanonicalURL = canonical

	u, err := url.Parse(canonical)
	if err != nil {
		return result.Fail(fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}

	allowed := true
	if !f.cfg.IgnoreRobots {
		robotsCtx, cancel := context.WithTimeout(ctx, f.cfg.RobotsTimeout)
		allowed = robotsAllowed(robotsCtx, f.client, u, f.cfg.UserAgent)
		cancel()
	}
	result.Metadata[domain.MetaRobotsAllowed] = strconv.FormatBool(allowed)
	if !allowed {
		f.logger.Info("blocked by robots.txt", "url", canonical)
		return result.Fail(fmt.Errorf("%w: %s", domain.ErrRobotsBlocked, canonical))
	}

	if err := f.wait(ctx, u.Host); err != nil {
		return result.Fail(fmt.Errorf("%w: %v", domain.ErrFetch, err))
	}

	if opts.RenderJS {
		return f.render(ctx, result)
	}
	return f.get(ctx, result, u)
}

func (f *HTTPFetcher) render(ctx context.Context, result *domain.ScrapeResult) *domain.ScrapeResult {
	if f.renderer == nil {
		return result.Fail(domain.ErrRendererUnavailable)
	}

	renderCtx, cancel := context.WithTimeout(ctx, f.cfg.RenderTimeout)
	defer cancel()

	markup, finalURL, err := f.renderer.Render(renderCtx, result.CanonicalURL)
	if err != nil {
		f.logger.Warn("render failed", "url", result.CanonicalURL, "error", err)
		return result.Fail(fmt.Errorf("%w: render %s: %v", domain.ErrFetch, result.CanonicalURL, err))
	}

	if finalURL == "" {
		finalURL = result.CanonicalURL
	}
	result.FinalURL = finalURL
	result.StatusCode = http.StatusOK
	result.ContentType = "text/html; charset=utf-8"
	result.Kind = domain.ContentKindHTML
	result.HTML = markup
	result.Body = []byte(markup)
	result.Metadata[domain.MetaCharset] = "utf-8"
	result.Metadata[domain.MetaTruncated] = "false"
	return result
}

func (f *HTTPFetcher) get(ctx context.Context, result *domain.ScrapeResult, u *url.URL) *domain.ScrapeResult {
	var (
		resp     *response
		attempts uint
		status   int
	)

	err := retry.Do(
		func() error {
			attempts++
			r, err := f.do(ctx, result.CanonicalURL)
			if r != nil {
				status = r.status
			}
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.cfg.Attempts),
		retry.Delay(f.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("retrying fetch", "url", result.CanonicalURL, "attempt", n+1, "error", err)
		}),
	)

	result.Metadata[domain.MetaAttempts] = strconv.FormatUint(uint64(attempts), 10)
	if status != 0 {
		result.StatusCode = status
	}
	if err != nil {
		f.logger.Warn("fetch failed", "url", result.CanonicalURL, "attempts", attempts, "error", err)
		return result.Fail(fmt.Errorf("%w: %s: %v", domain.ErrFetch, result.CanonicalURL, err))
	}

	result.FinalURL = resp.finalURL
	result.ContentType = resp.header.Get("Content-Type")
	result.Metadata[domain.MetaTruncated] = strconv.FormatBool(resp.truncated)
	for _, name := range recordedHeaders {
		if v := resp.header.Get(name); v != "" {
			result.Metadata[domain.MetaHeaderPrefix+name] = v
		}
	}

	path := u.Path
	if final, err := url.Parse(resp.finalURL); err == nil && final.Path != "" {
		path = final.Path
	}
	result.Kind = classify(result.ContentType, path)

	switch result.Kind {
	case domain.ContentKindBinary:
		return result.Fail(fmt.Errorf("%w: %s", domain.ErrUnsupportedContent, mediaType(result.ContentType)))
	case domain.ContentKindPDF:
		result.Body = resp.body
		return result
	}

	body, name := decode(resp.body, result.ContentType)
	result.Body = body
	result.Metadata[domain.MetaCharset] = name
	if result.Kind == domain.ContentKindHTML {
		result.HTML = string(body)
	}
	return result
}

// do performs one GET. Non-2xx statuses come back as *statusError alongside
// the partial response so the caller can record the code.
func (f *HTTPFetcher) do(ctx context.Context, target string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &permanentError{err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &response{
		status:   resp.StatusCode,
		header:   resp.Header,
		finalURL: resp.Request.URL.String(),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return out, &statusError{code: resp.StatusCode}
	}

	// Read one byte past the cap to detect truncation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return out, err
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		body = body[:f.cfg.MaxBodyBytes]
		out.truncated = true
	}
	out.body = body
	return out, nil
}

func isRetryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return retryableStatus[se.code]
	}
	if errors.Is(err, errTooManyRedirects) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// wait blocks on the host's politeness limiter.
// Hosts not seen for idleTTL are dropped.
func (f *HTTPFetcher) wait(ctx context.Context, host string) error {
	if f.cfg.HostRPS <= 0 {
		return nil
	}

	f.mu.Lock()
	now := time.Now()
	if now.Sub(f.lastGC) > f.idleTTL {
		for h, e := range f.limiters {
			if now.Sub(e.lastSeen) > f.idleTTL {
				delete(f.limiters, h)
			}
		}
		f.lastGC = now
	}
	e, ok := f.limiters[host]
	if !ok {
		e = &hostLimiter{limiter: rate.NewLimiter(rate.Limit(f.cfg.HostRPS), f.cfg.HostBurst)}
		f.limiters[host] = e
	}
	e.lastSeen = now
	f.mu.Unlock()

	return e.limiter.Wait(ctx)
}

// decode converts body to UTF-8 using the declared charset, falling back to
// sniffing. It returns the decoded body and the charset name. The result is
// always valid UTF-8; stray bytes, including a character cut by the body size
// limit, become U+FFFD.
func decode(body []byte, contentType string) ([]byte, string) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || enc == nil {
		return bytes.ToValidUTF8(body, replacementChar), "utf-8"
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return bytes.ToValidUTF8(body, replacementChar), name
	}
	return bytes.ToValidUTF8(out, replacementChar), name
}

var replacementChar = []byte("\uFFFD")

// Close releases the renderer, if any.
func (f *HTTPFetcher) Close() error {
	if f.renderer != nil {
		return f.renderer.Close()
	}
	return nil
}
