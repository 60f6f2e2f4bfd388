package community

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	posts := []core.Post{
		{ID: "p1", Title: "Understanding React hooks", Body: "useState and useEffect explained with examples", Tags: []string{"react"}, CreatedAt: base},
		{ID: "p2", Title: "Custom React hooks for data fetching", Body: "Build a useFetch hook that handles loading state", CreatedAt: base},
		{ID: "p3", Title: "Go generics in practice", Body: "Type parameters and constraints for collection helpers", CreatedAt: base},
	}
	links := []core.Link{
		{ID: "l1", PostID: "p1", Title: "Hooks reference", URL: "https://react.dev/reference/react/hooks", Description: "Official React hooks documentation"},
		{ID: "l2", PostID: "p3", Title: "Generics tutorial", URL: "https://go.dev/doc/tutorial/generics"},
	}
	comments := []core.Comment{
		{ID: "c2", PostID: "p1", Body: "The dependency array tripped me up", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c1", PostID: "p1", Body: "Great explanation of react hooks", CreatedAt: base.Add(time.Hour)},
	}
	require.NoError(t, idx.Add(context.Background(), posts, links, comments))
	return idx
}

func postIDs(posts []core.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestIndex_Search(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "react hooks", []string{"react", "hooks", "react hooks"}, 5)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"p1", "p2"}, postIDs(res.Posts))
	require.Len(t, res.Links, 1)
	assert.Equal(t, "l1", res.Links[0].ID)
	require.NotEmpty(t, res.Comments)
	assert.Equal(t, "c1", res.Comments[0].ID)
	for _, p := range res.Posts {
		assert.Positive(t, p.Score)
	}
}

func TestIndex_SearchLimitAppliesPerKind(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "react hooks", nil, 1)
	require.NoError(t, err)
	assert.Len(t, res.Posts, 1)
	assert.LessOrEqual(t, len(res.Links), 1)
	assert.LessOrEqual(t, len(res.Comments), 1)
}

func TestIndex_SearchNoMatch(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "kubernetes operators", nil, 5)
	require.NoError(t, err)
	assert.True(t, res.Empty())

	res, err = idx.Search(context.Background(), "   ", nil, 5)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.NotNil(t, res.Posts)
}

func TestIndex_GetPost(t *testing.T) {
	idx := newTestIndex(t)

	details, err := idx.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Understanding React hooks", details.Post.Title)
	require.Len(t, details.Links, 1)
	require.Len(t, details.Comments, 2)
	assert.Equal(t, "c1", details.Comments[0].ID)
	assert.Equal(t, "c2", details.Comments[1].ID)

	_, err = idx.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestIndex_FindSimilar(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.FindSimilar(context.Background(), "p1", "", 5)
	require.NoError(t, err)
	assert.NotContains(t, postIDs(res.Posts), "p1")
	assert.Contains(t, postIDs(res.Posts), "p2")

	res, err = idx.FindSimilar(context.Background(), "", "generics constraints", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, postIDs(res.Posts))

	_, err = idx.FindSimilar(context.Background(), "missing", "", 5)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestIndex_AddRejectsMissingID(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.Add(context.Background(), []core.Post{{Title: "no id"}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidItem)
	assert.Equal(t, 7, idx.Count())
}

func TestIndex_Load(t *testing.T) {
	idx, err := NewIndex()
	require.NoError(t, err)
	defer idx.Close()

	doc := `{
		"posts": [{"id": "p9", "title": "Rust ownership", "body": "Borrowing rules"}],
		"links": [{"id": "l9", "post_id": "p9", "title": "The Book", "url": "https://doc.rust-lang.org/book/"}],
		"comments": []
	}`
	require.NoError(t, idx.Load(context.Background(), strings.NewReader(doc)))
	assert.Equal(t, 2, idx.Count())

	err = idx.Load(context.Background(), strings.NewReader("not json"))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestIndex_Closed(t *testing.T) {
	idx, err := NewIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "anything", nil, 5)
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, idx.Add(context.Background(), nil, nil, nil), ErrIndexClosed)
}
