package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.HostRPS = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestFetcher(cfg Config, renderer driven.Renderer) *HTTPFetcher {
	return New(cfg, renderer, nil)
}

type fakeRenderer struct {
	html     string
	finalURL string
	err      error
	calls    int
}

func (r *fakeRenderer) Render(ctx context.Context, url string) (string, string, error) {
	r.calls++
	if r.err != nil {
		return "", "", r.err
	}
	return r.html, r.finalURL, nil
}

func (r *fakeRenderer) Close() error { return nil }

func TestFetch_HTML(t *testing.T) {
	var gotUA, gotAccept, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"abc"`)
		fmt.Fprint(w, "<html><head><title>Hi</title></head><body><p>Hello</p></body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(testConfig(), nil)
	res := f.Fetch(context.Background(), srv.URL+"/page#frag", driven.FetchOptions{})

	require.Empty(t, res.Error)
	assert.Equal(t, srv.URL+"/page", res.CanonicalURL)
	assert.Equal(t, srv.URL+"/page", res.FinalURL)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.ContentKindHTML, res.Kind)
	assert.Contains(t, res.HTML, "<p>Hello</p>")
	assert.Equal(t, res.HTML, string(res.Body))

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, acceptHeader, gotAccept)
	assert.Equal(t, acceptLanguageHeader, gotLang)

	assert.Equal(t, "false", res.Metadata[domain.MetaRenderJS])
	assert.Equal(t, "true", res.Metadata[domain.MetaRobotsAllowed])
	assert.Equal(t, "false", res.Metadata[domain.MetaTruncated])
	assert.Equal(t, "1", res.Metadata[domain.MetaAttempts])
	assert.Equal(t, "utf-8", res.Metadata[domain.MetaCharset])
	assert.Equal(t, `"abc"`, res.Metadata[domain.MetaHeaderPrefix+"etag"])
	assert.Equal(t, "text/html; charset=utf-8", res.Metadata[domain.MetaHeaderPrefix+"content-type"])
}

func TestFetch_RobotsBlocked(t *testing.T) {
	var pageHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		atomic.AddInt32(&pageHits, 1)
		fmt.Fprint(w, "secret")
	}))
	defer srv.Close()

	f := newTestFetcher(testConfig(), nil)
	res := f.Fetch(context.Background(), srv.URL+"/private/doc", driven.FetchOptions{})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrRobotsBlocked))
	assert.Equal(t, "false", res.Metadata[domain.MetaRobotsAllowed])
	assert.Equal(t, int32(0), atomic.LoadInt32(&pageHits), "page must not be requested")
	assert.False(t, res.OK())
}

func TestFetch_RobotsIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "open")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.IgnoreRobots = true
	res := newTestFetcher(cfg, nil).Fetch(context.Background(), srv.URL+"/x", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, "true", res.Metadata[domain.MetaRobotsAllowed])
}

func TestFetch_RobotsServerErrorIsAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/x", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, domain.ContentKindText, res.Kind)
	assert.Equal(t, "ok", string(res.Body))
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "finally")
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/flaky", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, "3", res.Metadata[domain.MetaAttempts])
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "finally", string(res.Body))
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/busy", driven.FetchOptions{})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrFetch))
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
	assert.Equal(t, "4", res.Metadata[domain.MetaAttempts])
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/missing", driven.FetchOptions{})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrFetch))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		n := atomic.AddInt32(&hits, 1)
		http.Redirect(w, r, fmt.Sprintf("/loop/%d", n), http.StatusFound)
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/loop/0", driven.FetchOptions{})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrFetch))
	assert.Equal(t, "1", res.Metadata[domain.MetaAttempts])
	assert.Equal(t, int32(8), atomic.LoadInt32(&hits))
}

func TestFetch_FollowsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/old":
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<p>moved</p>")
		}
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/old", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, srv.URL+"/old", res.CanonicalURL)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
}

func TestFetch_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("a", 100))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 10
	res := newTestFetcher(cfg, nil).Fetch(context.Background(), srv.URL+"/big", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Len(t, res.Body, 10)
	assert.Equal(t, "true", res.Metadata[domain.MetaTruncated])
}

func TestFetch_BinaryRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/logo.png", driven.FetchOptions{})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrUnsupportedContent))
	assert.Equal(t, domain.ContentKindBinary, res.Kind)
}

func TestFetch_PDFBySuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, "%PDF-1.4 raw")
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/report.PDF", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, domain.ContentKindPDF, res.Kind)
	assert.Equal(t, "%PDF-1.4 raw", string(res.Body))
	assert.Empty(t, res.HTML)
}

func TestFetch_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		_, _ = w.Write([]byte("caf\xe9"))
	}))
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/latin", driven.FetchOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, "café", string(res.Body))
	assert.Equal(t, "windows-1252", res.Metadata[domain.MetaCharset])
}

func TestFetch_InvalidURL(t *testing.T) {
	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), "ftp://example.com/file", driven.FetchOptions{})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrInvalidInput))
	assert.Equal(t, "ftp://example.com/file", res.SourceURL)
}

func TestFetch_RenderWithoutRenderer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res := newTestFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/app", driven.FetchOptions{RenderJS: true})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrRendererUnavailable))
	assert.Equal(t, "true", res.Metadata[domain.MetaRenderJS])
}

func TestFetch_RenderJS(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := &fakeRenderer{html: "<html><body>rendered</body></html>", finalURL: srv.URL + "/app/home"}
	f := newTestFetcher(testConfig(), r)
	assert.True(t, f.HasRenderer())

	res := f.Fetch(context.Background(), srv.URL+"/app", driven.FetchOptions{RenderJS: true})

	require.NoError(t, res.Err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, domain.ContentKindHTML, res.Kind)
	assert.Equal(t, srv.URL+"/app/home", res.FinalURL)
	assert.Contains(t, res.HTML, "rendered")
	assert.Equal(t, "true", res.Metadata[domain.MetaRenderJS])
}

func TestFetch_RenderFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := &fakeRenderer{err: errors.New("navigation timeout")}
	res := newTestFetcher(testConfig(), r).Fetch(context.Background(), srv.URL+"/app", driven.FetchOptions{RenderJS: true})

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrFetch))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		path        string
		want        domain.ContentKind
	}{
		{"text/html; charset=utf-8", "/", domain.ContentKindHTML},
		{"application/xhtml+xml", "/", domain.ContentKindHTML},
		{"application/xml", "/feed", domain.ContentKindHTML},
		{"text/xml", "/feed", domain.ContentKindHTML},
		{"", "/", domain.ContentKindHTML},
		{"text/plain", "/a.txt", domain.ContentKindText},
		{"text/markdown", "/README.md", domain.ContentKindText},
		{"application/pdf", "/doc", domain.ContentKindPDF},
		{"APPLICATION/PDF", "/doc", domain.ContentKindPDF},
		{"application/octet-stream", "/doc.pdf", domain.ContentKindPDF},
		{"application/json", "/api", domain.ContentKindBinary},
		{"image/jpeg", "/x.jpg", domain.ContentKindBinary},
	}

	for _, tt := range tests {
		t.Run(tt.contentType+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.contentType, tt.path))
		})
	}
}

func TestHostLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.HostRPS = 1000
	f := newTestFetcher(cfg, nil)

	require.NoError(t, f.wait(context.Background(), "a.example"))
	require.NoError(t, f.wait(context.Background(), "b.example"))
	assert.Len(t, f.limiters, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.HostRPS = 0.001
	slow := newTestFetcher(cfg, nil)
	require.NoError(t, slow.wait(context.Background(), "c.example"))
	assert.Error(t, slow.wait(ctx, "c.example"))
}

func TestHostLimiter_EvictsIdleHosts(t *testing.T) {
	cfg := testConfig()
	cfg.HostRPS = 1000
	f := newTestFetcher(cfg, nil)

	require.NoError(t, f.wait(context.Background(), "old.example"))
	require.NoError(t, f.wait(context.Background(), "busy.example"))

	f.limiters["old.example"].lastSeen = time.Now().Add(-time.Hour)
	f.lastGC = time.Now().Add(-time.Hour)

	require.NoError(t, f.wait(context.Background(), "busy.example"))
	assert.NotContains(t, f.limiters, "old.example")
	assert.Contains(t, f.limiters, "busy.example")
}

func TestDecode_RepairsInvalidUTF8(t *testing.T) {
	// A three-byte character cut after its first two bytes.
	body := []byte("<p>caf\xc3\xa9 \xe6\x97")

	out, name := decode(body, "text/html; charset=utf-8")
	assert.Equal(t, "utf-8", name)
	assert.True(t, utf8.Valid(out))
	assert.Equal(t, "<p>café \uFFFD", string(out))

	latin, name := decode([]byte("caf\xe9"), "text/plain; charset=iso-8859-1")
	assert.Equal(t, "windows-1252", name)
	assert.Equal(t, "café", string(latin))
}
