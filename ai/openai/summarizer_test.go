package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/searchgate/ai"
	"github.com/poiesic/searchgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel records the last request and returns a canned reply.
type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func humanText(t *testing.T, messages []llms.MessageContent) string {
	t.Helper()
	require.Len(t, messages, 2)
	part, ok := messages[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestSummarizer_Summarize(t *testing.T) {
	model := &fakeModel{reply: "  Hooks let components keep state [1].  "}
	s := newSummarizerWithModel(model, ai.NewConfig(ai.WithMaxSources(1)))

	web := &core.WebResults{
		Answer: "Hooks are functions.",
		Results: []core.WebResult{
			{Title: "Hooks at a Glance", URL: "https://react.dev/learn", Content: "Intro\x00 to hooks"},
			{Title: "Second", URL: "https://example.com"},
		},
	}
	community := &core.CommunityResults{Posts: []core.Post{{Title: "Understanding hooks", Body: "useState explained"}}}

	answer, err := s.Summarize(context.Background(), "react hooks?", web, community)
	require.NoError(t, err)
	assert.Equal(t, "Hooks let components keep state [1].", answer)

	prompt := humanText(t, model.messages)
	assert.Contains(t, prompt, "Question: react hooks?")
	assert.Contains(t, prompt, "[1] Hooks at a Glance (https://react.dev/learn)")
	assert.NotContains(t, prompt, "Second", "max sources caps the web list")
	assert.Contains(t, prompt, "Understanding hooks")
	assert.NotContains(t, prompt, "\x00")
}

func TestSummarizer_Errors(t *testing.T) {
	cfg := ai.NewConfig()

	s := newSummarizerWithModel(&fakeModel{}, cfg)
	_, err := s.Summarize(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	web := &core.WebResults{Answer: "a"}
	_, err = s.Summarize(context.Background(), "q", web, nil)
	assert.ErrorIs(t, err, ErrEmptyAnswer, "blank reply")

	boom := errors.New("connection refused")
	s = newSummarizerWithModel(&fakeModel{err: boom}, cfg)
	_, err = s.Summarize(context.Background(), "q", web, nil)
	assert.ErrorIs(t, err, boom)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	got := truncate(strings.Repeat("ü", 20), 5)
	assert.Equal(t, strings.Repeat("ü", 5)+"…", got)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(&ai.Config{})
	assert.Error(t, err)
}
