package domain

import (
	"sync"
	"testing"
)

func TestNewRuntimeConfig(t *testing.T) {
	config := NewRuntimeConfig("postgres")

	if config == nil {
		t.Fatal("expected non-nil config")
	}
	if config.QueueBackend != "postgres" {
		t.Errorf("expected postgres, got %s", config.QueueBackend)
	}
	if config.EmbeddingAvailable() || config.LLMAvailable() || config.RendererAvailable() {
		t.Error("expected all services to be unavailable initially")
	}
}

func TestRuntimeConfig_Capabilities(t *testing.T) {
	config := NewRuntimeConfig("redis")

	if config.CanIngest() || config.CanAnswer() {
		t.Error("expected no capabilities initially")
	}

	config.SetEmbeddingAvailable(true)
	if !config.CanIngest() {
		t.Error("expected ingest with embedding")
	}
	if config.CanAnswer() {
		t.Error("answer needs the LLM too")
	}

	config.SetLLMAvailable(true)
	if !config.CanAnswer() {
		t.Error("expected answer with embedding and LLM")
	}

	config.SetEmbeddingAvailable(false)
	if config.CanIngest() || config.CanAnswer() {
		t.Error("expected capabilities to drop with embedding")
	}

	config.SetRendererAvailable(true)
	if !config.RendererAvailable() {
		t.Error("expected renderer to be available")
	}
}

func TestRuntimeConfig_ConcurrentAccess(t *testing.T) {
	config := NewRuntimeConfig("redis")
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			config.SetEmbeddingAvailable(v)
			config.SetLLMAvailable(!v)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = config.CanAnswer()
			_ = config.CanIngest()
		}()
	}
	wg.Wait()
}
