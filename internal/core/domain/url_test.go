package domain

import (
	"errors"
	"testing"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"adds https scheme", "example.com/docs", "https://example.com/docs"},
		{"trims whitespace", "  https://example.com/a  ", "https://example.com/a"},
		{"drops fragment", "https://example.com/a#section-2", "https://example.com/a"},
		{"lowercases host", "https://Example.COM/Path", "https://example.com/Path"},
		{"keeps query", "http://example.com/a?b=1", "http://example.com/a?b=1"},
		{"keeps port", "EXAMPLE.com:8080/x", "https://example.com:8080/x"},
		{"url in query without scheme", "example.com/r?next=https://other.example/x", "https://example.com/r?next=https://other.example/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeURL(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"example.com",
		"HTTPS://Example.com/a%20b?q=x#frag",
		"http://example.com:80/path/../x",
		"https://example.com/ünïcode",
	}

	for _, in := range inputs {
		once, err := CanonicalizeURL(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", in, err)
		}
		twice, err := CanonicalizeURL(once)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestCanonicalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://example.com/file", "https://"} {
		if _, err := CanonicalizeURL(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%q: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestCanonicalizeURLs_Dedupes(t *testing.T) {
	got, err := CanonicalizeURLs([]string{"example.com/a", "https://EXAMPLE.com/a#x", "example.com/b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "https://example.com/a" || got[1] != "https://example.com/b" {
		t.Errorf("unexpected result %v", got)
	}
}
