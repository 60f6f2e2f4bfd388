package mock

import (
	"context"
	"sync"

	"github.com/poiesic/searchgate/ai"
	"github.com/poiesic/searchgate/core"
)

// MockSummarizer is a test double for ai.Summarizer.
type MockSummarizer struct {
	// SummarizeFunc allows custom behavior injection.
	// If nil, uses default behavior.
	SummarizeFunc func(ctx context.Context, query string, web *core.WebResults, community *core.CommunityResults) (string, error)

	mu        sync.Mutex
	callCount int
}

var _ ai.Summarizer = (*MockSummarizer)(nil)

// NewMockSummarizer creates a mock summarizer with default behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// WithSummarizeFunc sets custom behavior and returns the mock for chaining.
func (m *MockSummarizer) WithSummarizeFunc(fn func(ctx context.Context, query string, web *core.WebResults, community *core.CommunityResults) (string, error)) *MockSummarizer {
	m.SummarizeFunc = fn
	return m
}

// Summarize returns a deterministic answer.
// Default behavior: "summary of <query>".
func (m *MockSummarizer) Summarize(ctx context.Context, query string, web *core.WebResults, community *core.CommunityResults) (string, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.SummarizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, query, web, community)
	}
	return "summary of " + query, nil
}

// CallCount returns the number of times Summarize was called.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockSummarizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.SummarizeFunc = nil
}
