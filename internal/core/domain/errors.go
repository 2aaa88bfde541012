package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates a backing service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRobotsBlocked indicates robots.txt disallows fetching the URL.
	// The target page is never requested when this is returned.
	ErrRobotsBlocked = errors.New("blocked by robots.txt")

	// ErrFetch indicates a transport failure, timeout, bad status or
	// redirect-limit exhaustion after all retries
	ErrFetch = errors.New("fetch failed")

	// ErrUnsupportedContent indicates a binary content type that is not PDF
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrRendererUnavailable indicates JS rendering was requested without a renderer
	ErrRendererUnavailable = errors.New("js renderer unavailable")

	// ErrExtraction indicates every extraction strategy produced no text
	ErrExtraction = errors.New("extraction failed")

	// ErrPDFExtractionUnavailable indicates no PDF extractor is registered
	ErrPDFExtractionUnavailable = errors.New("pdf extraction unavailable")

	// ErrEmbeddingDimensionMismatch indicates a vector does not match the store dimension
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNoMatchingContent indicates retrieval found zero chunks for the scope
	ErrNoMatchingContent = errors.New("no matching content")

	// ErrGenerationService indicates the completion or embedding call failed
	ErrGenerationService = errors.New("generation service error")

	// ErrIngestInProgress indicates another worker holds the page lock
	ErrIngestInProgress = errors.New("ingest already in progress")
)
