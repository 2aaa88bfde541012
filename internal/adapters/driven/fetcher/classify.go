package fetcher

import (
	"mime"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var htmlTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"application/xml":       true,
	"text/xml":              true,
}

// mediaType lowercases the content type and strips its parameters.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
		if idx := strings.Index(mt, ";"); idx != -1 {
			mt = mt[:idx]
		}
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// classify decides how a response body is handled.
func classify(contentType, path string) domain.ContentKind {
	mt := mediaType(contentType)

	switch {
	case mt == "application/pdf" || mt == "application/x-pdf":
		return domain.ContentKindPDF
	case strings.HasSuffix(strings.ToLower(path), ".pdf"):
		return domain.ContentKindPDF
	case mt == "" || htmlTypes[mt]:
		return domain.ContentKindHTML
	case strings.HasPrefix(mt, "text/"):
		return domain.ContentKindText
	default:
		return domain.ContentKindBinary
	}
}
