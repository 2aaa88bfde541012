package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPage_ToSummary(t *testing.T) {
	now := time.Now()
	page := &Page{ID: "p1", UserID: "u1", URL: "https://example.com/", Title: "Example", CreatedAt: now}

	s := page.ToSummary(4)

	if s.ID != "p1" || s.URL != page.URL || s.Title != "Example" {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.ChunkCount != 4 {
		t.Errorf("expected 4 chunks, got %d", s.ChunkCount)
	}
	if !s.CreatedAt.Equal(now) {
		t.Error("expected CreatedAt to be copied")
	}
}

func TestResolveUserKey(t *testing.T) {
	if got := ResolveUserKey(""); got != DefaultUserKey {
		t.Errorf("expected %s, got %s", DefaultUserKey, got)
	}
	if got := ResolveUserKey(" alice "); got != "alice" {
		t.Errorf("expected alice, got %s", got)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 250)
	if got := Preview(long, PreviewLength); len([]rune(got)) != PreviewLength {
		t.Errorf("expected %d runes, got %d", PreviewLength, len([]rune(got)))
	}
	if got := Preview("short", PreviewLength); got != "short" {
		t.Errorf("expected short, got %s", got)
	}
}

func TestNewSource(t *testing.T) {
	sc := &ScoredChunk{
		Chunk:    &Chunk{ID: "c1", Text: strings.Repeat("a", 300)},
		URL:      "https://example.com/",
		Title:    "Example",
		Distance: 0.12,
	}

	src := NewSource(sc)

	if src.URL != sc.URL || src.Title != sc.Title || src.Distance != sc.Distance {
		t.Errorf("unexpected source %+v", src)
	}
	if len(src.ChunkPreview) != PreviewLength {
		t.Errorf("expected preview of %d, got %d", PreviewLength, len(src.ChunkPreview))
	}
}

func TestScrapeResult(t *testing.T) {
	r := NewScrapeResult("example.com")
	if r.OK() {
		t.Error("empty result should not be OK")
	}
	if r.URL() != "example.com" {
		t.Errorf("expected source url fallback, got %s", r.URL())
	}

	r.CanonicalURL = "https://example.com"
	r.Text = "hello"
	if !r.OK() {
		t.Error("expected OK with text and no error")
	}

	r.Fail(ErrRobotsBlocked)
	if r.OK() {
		t.Error("failed result should not be OK")
	}
	if !errors.Is(r.Err, ErrRobotsBlocked) || r.Error != ErrRobotsBlocked.Error() {
		t.Errorf("unexpected error fields %q %v", r.Error, r.Err)
	}
}
