package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUserMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		target   string
		expected string
	}{
		{"header", "alice", "/", "alice"},
		{"header is trimmed", "  alice  ", "/", "alice"},
		{"query fallback", "", "/?user=bob", "bob"},
		{"header wins over query", "alice", "/?user=bob", "alice"},
		{"default", "", "/", "default"},
		{"blank header falls back to query", "   ", "/?user=carol", "carol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := NewUserMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetUserKey(r.Context())
			}))

			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set(UserHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestGetUserKey_EmptyContext(t *testing.T) {
	if got := GetUserKey(context.Background()); got != "default" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewRecoveryMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("expected panic to be logged, got %q", buf.String())
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/brew", nil)
	req.Header.Set(UserHeader, "alice")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"method=GET", "path=/brew", "status=418", "user=alice"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log line %q", want, out)
		}
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allowed origin", func(t *testing.T) {
		handler := NewCORSMiddleware([]string{"https://app.example"}).Handler(next)
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "https://app.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
			t.Error("expected CORS header for allowed origin")
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), UserHeader) {
			t.Error("expected user header to be allowed")
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		handler := NewCORSMiddleware([]string{"https://app.example"}).Handler(next)
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("expected no CORS header for disallowed origin")
		}
	})

	t.Run("preflight", func(t *testing.T) {
		handler := NewCORSMiddleware([]string{"*"}).Handler(next)
		req := httptest.NewRequest("OPTIONS", "/api/v1/ask", nil)
		req.Header.Set("Origin", "https://any.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rec.Code)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimitMiddleware(0.001, 2)
	handler := NewUserMiddleware().Handler(limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func(user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(UserHeader, user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("alice") != http.StatusOK || send("alice") != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Errorf("other users have their own bucket, got %d", code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	limiter := NewRateLimitMiddleware(0, 0)

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		limiter.Handler(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
}
