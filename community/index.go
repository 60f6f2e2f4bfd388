package community

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/poiesic/searchgate/core"
)

// Searcher finds community content relevant to a query.
type Searcher interface {
	// Search returns up to limit posts, links and comments each.
	Search(ctx context.Context, query string, keywords []string, limit int) (*core.CommunityResults, error)
}

// Catalog looks up community content by identity.
type Catalog interface {
	GetPost(ctx context.Context, postID string) (*core.PostDetails, error)
	// FindSimilar returns items similar to a post, or to text when postID is empty.
	FindSimilar(ctx context.Context, postID, text string, limit int) (*core.CommunityResults, error)
}

const (
	kindPost    = "post"
	kindLink    = "link"
	kindComment = "comment"

	// hits fetched per requested item, to leave room for every kind
	overfetch = 3
)

// document is the bleve representation of any community item.
type document struct {
	Kind   string `json:"kind"`
	PostID string `json:"post_id"`
	Text   string `json:"text"`
}

// Index is an in-memory bleve index over community content.
type Index struct {
	index bleve.Index

	mu       sync.RWMutex
	posts    map[string]core.Post
	links    map[string]core.Link
	comments map[string]core.Comment
	closed   bool

	logger *slog.Logger
}

var (
	_ Searcher = (*Index)(nil)
	_ Catalog  = (*Index)(nil)
)

// IndexOption configures an Index.
type IndexOption func(*Index) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger.With("component", "community")
		return nil
	}
}

// NewIndex creates an empty in-memory index.
func NewIndex(opts ...IndexOption) (*Index, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create community index: %w", err)
	}

	i := &Index{
		index:    idx,
		posts:    make(map[string]core.Post),
		links:    make(map[string]core.Link),
		comments: make(map[string]core.Comment),
		logger:   slog.Default().With("component", "community"),
	}

	for _, opt := range opts {
		if err := opt(i); err != nil {
			idx.Close()
			return nil, err
		}
	}

	return i, nil
}

func newMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	keyword := bleve.NewKeywordFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("kind", keyword)
	doc.AddFieldMappingsAt("post_id", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func docID(kind, id string) string {
	return kind + "/" + id
}

func splitDocID(docID string) (kind, id string, ok bool) {
	return strings.Cut(docID, "/")
}

// Add indexes posts, links and comments. Items with an existing ID replace
// the previous version.
func (i *Index) Add(ctx context.Context, posts []core.Post, links []core.Link, comments []core.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrIndexClosed
	}

	batch := i.index.NewBatch()
	for _, p := range posts {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: post without id", ErrInvalidItem)
		}
		if err := batch.Index(docID(kindPost, p.ID), document{
			Kind:   kindPost,
			PostID: p.ID,
			Text:   strings.Join(append([]string{p.Title, p.Body}, p.Tags...), " "),
		}); err != nil {
			return fmt.Errorf("failed to index post %s: %w", p.ID, err)
		}
	}
	for _, l := range links {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("%w: link without id", ErrInvalidItem)
		}
		if err := batch.Index(docID(kindLink, l.ID), document{
			Kind:   kindLink,
			PostID: l.PostID,
			Text:   l.Title + " " + l.Description + " " + l.URL,
		}); err != nil {
			return fmt.Errorf("failed to index link %s: %w", l.ID, err)
		}
	}
	for _, c := range comments {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("%w: comment without id", ErrInvalidItem)
		}
		if err := batch.Index(docID(kindComment, c.ID), document{
			Kind:   kindComment,
			PostID: c.PostID,
			Text:   c.Body,
		}); err != nil {
			return fmt.Errorf("failed to index comment %s: %w", c.ID, err)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to write community batch: %w", err)
	}

	for _, p := range posts {
		i.posts[p.ID] = p
	}
	for _, l := range links {
		i.links[l.ID] = l
	}
	for _, c := range comments {
		i.comments[c.ID] = c
	}

	i.logger.Debug("indexed community content", "posts", len(posts), "links", len(links), "comments", len(comments))
	return nil
}

// Count returns the number of indexed items.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.posts) + len(i.links) + len(i.comments)
}

// Search matches the raw query and the extracted keywords against every item.
// Keywords are matched as phrases so bigrams keep their word order.
func (i *Index) Search(ctx context.Context, text string, keywords []string, limit int) (*core.CommunityResults, error) {
	queries := make([]query.Query, 0, len(keywords)+1)
	if strings.TrimSpace(text) != "" {
		q := bleve.NewMatchQuery(text)
		q.SetField("text")
		queries = append(queries, q)
	}
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		q := bleve.NewMatchPhraseQuery(kw)
		q.SetField("text")
		queries = append(queries, q)
	}

	return i.run(ctx, queries, limit, "")
}

// GetPost returns a post with its links and comments.
func (i *Index) GetPost(ctx context.Context, postID string) (*core.PostDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrIndexClosed
	}

	post, ok := i.posts[postID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}

	details := &core.PostDetails{
		Post:     post,
		Links:    []core.Link{},
		Comments: []core.Comment{},
	}
	for _, l := range i.links {
		if l.PostID == postID {
			details.Links = append(details.Links, l)
		}
	}
	for _, c := range i.comments {
		if c.PostID == postID {
			details.Comments = append(details.Comments, c)
		}
	}
	slices.SortFunc(details.Links, func(a, b core.Link) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(details.Comments, func(a, b core.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return details, nil
}

// FindSimilar returns items whose text resembles the given post, or text
// when postID is empty. The source post itself is excluded.
func (i *Index) FindSimilar(ctx context.Context, postID, text string, limit int) (*core.CommunityResults, error) {
	if postID != "" {
		i.mu.RLock()
		post, ok := i.posts[postID]
		i.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
		}
		text = strings.Join(append([]string{post.Title, post.Body}, post.Tags...), " ")
	}

	if strings.TrimSpace(text) == "" {
		return &core.CommunityResults{Posts: []core.Post{}, Links: []core.Link{}, Comments: []core.Comment{}}, nil
	}

	q := bleve.NewMatchQuery(text)
	q.SetField("text")
	return i.run(ctx, []query.Query{q}, limit, docID(kindPost, postID))
}

func (i *Index) run(ctx context.Context, queries []query.Query, limit int, exclude string) (*core.CommunityResults, error) {
	results := &core.CommunityResults{Posts: []core.Post{}, Links: []core.Link{}, Comments: []core.Comment{}}
	if len(queries) == 0 || limit <= 0 {
		return results, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrIndexClosed
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit*overfetch, 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("community search failed: %w", err)
	}

	for _, hit := range res.Hits {
		if hit.ID == exclude {
			continue
		}
		kind, id, ok := splitDocID(hit.ID)
		if !ok {
			continue
		}
		switch kind {
		case kindPost:
			if p, ok := i.posts[id]; ok && len(results.Posts) < limit {
				p.Score = hit.Score
				results.Posts = append(results.Posts, p)
			}
		case kindLink:
			if l, ok := i.links[id]; ok && len(results.Links) < limit {
				l.Score = hit.Score
				results.Links = append(results.Links, l)
			}
		case kindComment:
			if c, ok := i.comments[id]; ok && len(results.Comments) < limit {
				c.Score = hit.Score
				results.Comments = append(results.Comments, c)
			}
		}
	}

	return results, nil
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.index.Close()
}
