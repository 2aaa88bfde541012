package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var (
	_ driven.EmbeddingService = (*OllamaEmbedding)(nil)
	_ driven.LLMService       = (*OllamaLLM)(nil)
)

const (
	DefaultOllamaBaseURL        = "http://localhost:11434"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
	DefaultOllamaLLMModel       = "llama3.2"

	// nomic-embed-text output size
	defaultOllamaDimensions = 768
)

// ollamaClient holds what both Ollama services share.
type ollamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

func newOllamaClient(baseURL, model string, timeout time.Duration) ollamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return ollamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ollamaClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ping lists local models; it succeeds whenever the daemon is up.
func (c *ollamaClient) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: API returned status %d", resp.StatusCode)
	}
	return nil
}

// OllamaEmbedding implements EmbeddingService against a local Ollama daemon
type OllamaEmbedding struct {
	ollamaClient
	dimensions int
}

// NewOllamaEmbedding creates an Ollama embedding service.
// Ollama does not report the vector size up front, so dimensions must
// match the model; 0 assumes nomic-embed-text.
func NewOllamaEmbedding(baseURL, model string, dimensions int) (driven.EmbeddingService, error) {
	if model == "" {
		model = DefaultOllamaEmbeddingModel
	}
	if dimensions <= 0 {
		dimensions = defaultOllamaDimensions
	}
	return &OllamaEmbedding{
		ollamaClient: newOllamaClient(baseURL, model, 60*time.Second),
		dimensions:   dimensions,
	}, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends all texts in one /api/embed call
func (o *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp ollamaEmbedResponse
	if err := o.post(ctx, "/api/embed", ollamaEmbedRequest{Model: o.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EmbedQuery generates an embedding for a question
func (o *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := o.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (o *OllamaEmbedding) Dimensions() int { return o.dimensions }

func (o *OllamaEmbedding) Model() string { return o.model }

func (o *OllamaEmbedding) HealthCheck(ctx context.Context) error { return o.ping(ctx) }

func (o *OllamaEmbedding) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// OllamaLLM implements LLMService with non-streaming /api/chat
type OllamaLLM struct {
	ollamaClient
}

// NewOllamaLLM creates an Ollama chat service
func NewOllamaLLM(baseURL, model string) (driven.LLMService, error) {
	if model == "" {
		model = DefaultOllamaLLMModel
	}
	return &OllamaLLM{ollamaClient: newOllamaClient(baseURL, model, 300*time.Second)}, nil
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

// Generate runs one chat turn and returns the assistant message
func (o *OllamaLLM) Generate(ctx context.Context, systemPrompt, prompt string, opts driven.GenerateOptions) (string, error) {
	req := ollamaChatRequest{
		Model:    o.model,
		Messages: buildMessages(systemPrompt, prompt),
		Options:  map[string]any{"temperature": opts.Temperature},
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}

	var resp ollamaChatResponse
	if err := o.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return resp.Message.Content, nil
}

func (o *OllamaLLM) Model() string { return o.model }

func (o *OllamaLLM) Ping(ctx context.Context) error { return o.ping(ctx) }

func (o *OllamaLLM) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
