package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var leadingScheme = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// CanonicalizeURL normalises a URL into the identity form used for page upserts.
// Whitespace is trimmed, https is assumed when no scheme is given, the fragment
// is dropped and the host is lowercased. Applying it twice is a no-op.
func CanonicalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	if !leadingScheme.MatchString(raw) {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidInput, raw)
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// CanonicalizeURLs canonicalises a list, dropping duplicates while keeping order.
// The first invalid entry aborts with its error.
func CanonicalizeURLs(raws []string) ([]string, error) {
	out := make([]string, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		u, err := CanonicalizeURL(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}
