package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.LLMService = (*MockLLMService)(nil)

// LLMCall records one Generate invocation
type LLMCall struct {
	SystemPrompt string
	Prompt       string
	Options      driven.GenerateOptions
}

// MockLLMService is a mock implementation of LLMService for testing.
// By default it answers with the context block of the prompt, which is
// enough for assertions about grounded content.
type MockLLMService struct {
	mu    sync.Mutex
	calls []LLMCall

	GenerateFn func(systemPrompt, prompt string, opts driven.GenerateOptions) (string, error)
	PingFn     func() error
}

// NewMockLLMService creates a new MockLLMService
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{}
}

func (m *MockLLMService) Generate(ctx context.Context, systemPrompt, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, LLMCall{SystemPrompt: systemPrompt, Prompt: prompt, Options: opts})
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(systemPrompt, prompt, opts)
	}
	return "Answer: " + contextOf(prompt), nil
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

func (m *MockLLMService) Close() error {
	return nil
}

// Calls returns a copy of the recorded calls
func (m *MockLLMService) Calls() []LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LLMCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// contextOf returns the text between "Context:" and "Question:", or the whole prompt
func contextOf(prompt string) string {
	start := strings.Index(prompt, "Context:")
	if start < 0 {
		return strings.TrimSpace(prompt)
	}
	rest := prompt[start+len("Context:"):]
	if end := strings.Index(rest, "Question:"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
