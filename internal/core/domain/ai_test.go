package domain

import (
	"errors"
	"testing"
)

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings EmbeddingSettings
		expected bool
	}{
		{"empty", EmbeddingSettings{}, false},
		{"openai without key", EmbeddingSettings{Provider: AIProviderOpenAI}, false},
		{"openai with key", EmbeddingSettings{Provider: AIProviderOpenAI, APIKey: "sk-x"}, true},
		{"ollama without key", EmbeddingSettings{Provider: AIProviderOllama}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.IsConfigured(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestLLMSettings_IsConfigured(t *testing.T) {
	if (&LLMSettings{}).IsConfigured() {
		t.Error("empty settings should not be configured")
	}
	if !(&LLMSettings{Provider: AIProviderOllama, Model: "llama3"}).IsConfigured() {
		t.Error("ollama should not need a key")
	}
}

func TestAISettings_Validate(t *testing.T) {
	ok := &AISettings{Embedding: EmbeddingSettings{Provider: AIProviderOpenAI}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := &AISettings{LLM: LLMSettings{Provider: "cohere"}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidProvider) {
		t.Errorf("expected ErrInvalidProvider, got %v", err)
	}
}
