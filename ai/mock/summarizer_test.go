package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/searchgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSummarizer(t *testing.T) {
	m := NewMockSummarizer()

	got, err := m.Summarize(context.Background(), "react hooks", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "summary of react hooks", got)

	boom := errors.New("offline")
	m.WithSummarizeFunc(func(context.Context, string, *core.WebResults, *core.CommunityResults) (string, error) {
		return "", boom
	})
	_, err = m.Summarize(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, m.CallCount())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	defer p.Close()

	_, err := p.Summarizer().Summarize(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.(*MockProvider).GetMockSummarizer().CallCount())
}
