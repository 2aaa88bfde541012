package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

func newOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1, 0})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected stream=false")
		}
		if req.Options["temperature"] != 0.2 {
			t.Errorf("expected temperature 0.2, got %v", req.Options["temperature"])
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: chatMessage{Role: "assistant", Content: "echo: " + req.Messages[len(req.Messages)-1].Content},
		})
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOllamaEmbedding_Embed(t *testing.T) {
	server := newOllamaServer(t)

	svc, err := NewOllamaEmbedding(server.URL+"/", "", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Model() != DefaultOllamaEmbeddingModel {
		t.Errorf("expected default model, got %s", svc.Model())
	}
	if svc.Dimensions() != 3 {
		t.Errorf("expected 3 dimensions, got %d", svc.Dimensions())
	}

	embs, err := svc.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embs) != 2 || embs[1][0] != 1 {
		t.Errorf("unexpected embeddings: %v", embs)
	}

	q, err := svc.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q) != 3 {
		t.Errorf("expected 3 values, got %d", len(q))
	}

	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Errorf("unexpected health check error: %v", err)
	}
}

func TestOllamaEmbedding_DefaultDimensions(t *testing.T) {
	svc, _ := NewOllamaEmbedding("", "", 0)
	if svc.Dimensions() != 768 {
		t.Errorf("expected 768, got %d", svc.Dimensions())
	}
}

func TestOllamaEmbedding_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	svc, _ := NewOllamaEmbedding(server.URL, "", 3)
	if _, err := svc.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error for missing embeddings")
	}
}

func TestOllamaLLM_Generate(t *testing.T) {
	server := newOllamaServer(t)

	llm, _ := NewOllamaLLM(server.URL, "")
	got, err := llm.Generate(context.Background(), "sys", "hello", driven.GenerateOptions{Temperature: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "echo: hello" {
		t.Errorf("expected echo, got %q", got)
	}
	if err := llm.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
}

func TestOllamaLLM_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	llm, _ := NewOllamaLLM(server.URL, "missing")
	if _, err := llm.Generate(context.Background(), "", "hi", driven.GenerateOptions{}); err == nil {
		t.Error("expected error for 404")
	}
	if err := llm.Ping(context.Background()); err == nil {
		t.Error("expected ping error for 404")
	}
}
