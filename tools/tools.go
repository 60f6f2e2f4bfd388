package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/searchgate/community"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/dispatch"
	"github.com/poiesic/searchgate/orchestrator"
	"github.com/poiesic/searchgate/quota"
)

// Operation names.
const (
	SearchCommunity     = "database_search_community"
	GetPostDetails      = "database_get_post_details"
	FindSimilarContent  = "database_find_similar_content"
	WebSearchWithTavily = "web_search_with_tavily"
	WebCheckQuota       = "web_check_quota"
	QuotaGetStatus      = "quota_get_status"
	QuotaCheckWebSearch = "quota_check_web_search"
)

const (
	maxLimit            = 50
	maxWebResults       = 20
	defaultSimilarLimit = 5
)

var (
	ErrSearcherRequired = errors.New("orchestrator is required")
	ErrCatalogRequired  = errors.New("community catalog is required")
	ErrQuotaRequired    = errors.New("quota reader is required")
)

// Searcher runs orchestrated searches.
type Searcher interface {
	Search(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// QuotaReader reports quota without spending it.
type QuotaReader interface {
	Check(ctx context.Context, subjectID, resource string) (quota.Decision, error)
	Status(ctx context.Context, subjectID string) ([]quota.Decision, error)
}

// Handlers holds the collaborators the operations delegate to.
type Handlers struct {
	searcher Searcher
	catalog  community.Catalog
	quota    QuotaReader
	logger   *slog.Logger
}

// NewHandlers creates the operation handlers.
func NewHandlers(searcher Searcher, catalog community.Catalog, quotas QuotaReader, logger *slog.Logger) (*Handlers, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if quotas == nil {
		return nil, ErrQuotaRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		searcher: searcher,
		catalog:  catalog,
		quota:    quotas,
		logger:   logger.With("component", "tools"),
	}, nil
}

// Register adds every operation to d.
func (h *Handlers) Register(d *dispatch.Dispatcher) error {
	for _, t := range h.table() {
		if err := d.RegisterTool(t.info, t.handler); err != nil {
			return err
		}
	}
	return nil
}

type entry struct {
	info    dispatch.ToolInfo
	handler dispatch.Handler
}

func (h *Handlers) table() []entry {
	return []entry{
		{
			info: dispatch.ToolInfo{
				Name:        SearchCommunity,
				Description: "Search community posts, links and comments. Set escalate to also run a quota-limited web search.",
				InputSchema: schema([]string{"query"}, map[string]any{
					"query":      prop("string", "What to search for"),
					"subject_id": prop("string", "Caller identity, required when escalate is true"),
					"limit":      prop("integer", "Maximum items per kind"),
					"escalate":   prop("boolean", "Request a web search in addition to community search"),
				}),
			},
			handler: h.searchCommunity,
		},
		{
			info: dispatch.ToolInfo{
				Name:        GetPostDetails,
				Description: "Fetch a community post with its links and comments.",
				InputSchema: schema([]string{"post_id"}, map[string]any{
					"post_id": prop("string", "Post identifier"),
				}),
			},
			handler: h.getPostDetails,
		},
		{
			info: dispatch.ToolInfo{
				Name:        FindSimilarContent,
				Description: "Find community content similar to a post or to free text.",
				InputSchema: schema(nil, map[string]any{
					"post_id": prop("string", "Post to compare against"),
					"query":   prop("string", "Text to compare against when no post is given"),
					"limit":   prop("integer", "Maximum items per kind"),
				}),
			},
			handler: h.findSimilar,
		},
		{
			info: dispatch.ToolInfo{
				Name:        WebSearchWithTavily,
				Description: "Search the web through Tavily, spending one unit of the caller's daily quota.",
				InputSchema: schema([]string{"query", "subject_id"}, map[string]any{
					"query":          prop("string", "What to search for"),
					"subject_id":     prop("string", "Caller identity"),
					"max_results":    prop("integer", "Maximum web results"),
					"include_images": prop("boolean", "Include image URLs"),
				}),
			},
			handler: h.webSearch,
		},
		{
			info: dispatch.ToolInfo{
				Name:        WebCheckQuota,
				Description: "Report the caller's remaining web search quota without spending it.",
				InputSchema: schema([]string{"subject_id"}, map[string]any{
					"subject_id": prop("string", "Caller identity"),
				}),
			},
			handler: h.webCheckQuota,
		},
		{
			info: dispatch.ToolInfo{
				Name:        QuotaGetStatus,
				Description: "Report quota status for every metered resource.",
				InputSchema: schema([]string{"subject_id"}, map[string]any{
					"subject_id": prop("string", "Caller identity"),
				}),
			},
			handler: h.quotaStatus,
		},
		{
			info: dispatch.ToolInfo{
				Name:        QuotaCheckWebSearch,
				Description: "Tell whether the caller can run a web search right now.",
				InputSchema: schema([]string{"subject_id"}, map[string]any{
					"subject_id": prop("string", "Caller identity"),
				}),
			},
			handler: h.quotaCheckWebSearch,
		},
	}
}

func (h *Handlers) searchCommunity(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	args, err := parseArguments(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	q, err := args.requiredString("query")
	if err != nil {
		return dispatch.Response{}, err
	}
	subject, err := args.optionalString("subject_id")
	if err != nil {
		return dispatch.Response{}, err
	}
	limit, err := args.optionalInt("limit", 0, 1, maxLimit)
	if err != nil {
		return dispatch.Response{}, err
	}
	escalate, err := args.optionalBool("escalate", false)
	if err != nil {
		return dispatch.Response{}, err
	}

	return h.search(ctx, orchestrator.Request{
		Query:     q,
		SubjectID: subject,
		Escalate:  escalate,
		Limit:     limit,
	})
}

func (h *Handlers) webSearch(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	args, err := parseArguments(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	q, err := args.requiredString("query")
	if err != nil {
		return dispatch.Response{}, err
	}
	subject, err := args.requiredString("subject_id")
	if err != nil {
		return dispatch.Response{}, err
	}
	maxResults, err := args.optionalInt("max_results", 0, 1, maxWebResults)
	if err != nil {
		return dispatch.Response{}, err
	}
	images, err := args.optionalBool("include_images", false)
	if err != nil {
		return dispatch.Response{}, err
	}

	return h.search(ctx, orchestrator.Request{
		Query:         q,
		SubjectID:     subject,
		Escalate:      true,
		MaxResults:    maxResults,
		IncludeImages: images,
	})
}

func (h *Handlers) search(ctx context.Context, req orchestrator.Request) (dispatch.Response, error) {
	result, err := h.searcher.Search(ctx, req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) || errors.Is(err, orchestrator.ErrSubjectRequired) {
			return dispatch.Response{}, fmt.Errorf("%w: %w", dispatch.ErrInvalidArguments, err)
		}
		h.logger.Warn("search failed", "query", req.Query, "err", err)
		return dispatch.Response{}, fmt.Errorf("search failed: %w", err)
	}
	return dispatch.JSONResponse(result)
}

func (h *Handlers) getPostDetails(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	args, err := parseArguments(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	postID, err := args.requiredString("post_id")
	if err != nil {
		return dispatch.Response{}, err
	}

	details, err := h.catalog.GetPost(ctx, postID)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.JSONResponse(details)
}

func (h *Handlers) findSimilar(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	args, err := parseArguments(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	postID, err := args.optionalString("post_id")
	if err != nil {
		return dispatch.Response{}, err
	}
	text, err := args.optionalString("query")
	if err != nil {
		return dispatch.Response{}, err
	}
	if postID == "" && text == "" {
		return dispatch.Response{}, fmt.Errorf("%w: post_id or query is required", dispatch.ErrInvalidArguments)
	}
	limit, err := args.optionalInt("limit", defaultSimilarLimit, 1, maxLimit)
	if err != nil {
		return dispatch.Response{}, err
	}

	results, err := h.catalog.FindSimilar(ctx, postID, text, limit)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.JSONResponse(results)
}

type quotaView struct {
	Resource  string `json:"resource"`
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Tier      string `json:"tier"`
	ResetsAt  string `json:"resets_at,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
}

func newQuotaView(d quota.Decision) quotaView {
	v := quotaView{
		Resource:  d.Resource,
		Allowed:   d.Allowed,
		Remaining: d.Remaining,
		Limit:     d.Limit,
		Tier:      d.Tier,
		Degraded:  d.Degraded,
	}
	if !d.ResetsAt.IsZero() {
		v.ResetsAt = d.ResetsAt.UTC().Format(time.RFC3339)
	}
	return v
}

func (h *Handlers) subject(raw map[string]any) (string, error) {
	args, err := parseArguments(raw)
	if err != nil {
		return "", err
	}
	return args.requiredString("subject_id")
}

func (h *Handlers) webCheckQuota(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	subject, err := h.subject(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	d, err := h.quota.Check(ctx, subject, core.ResourceWebSearch)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.JSONResponse(newQuotaView(d))
}

func (h *Handlers) quotaStatus(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	subject, err := h.subject(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	decisions, err := h.quota.Status(ctx, subject)
	if err != nil {
		return dispatch.Response{}, err
	}

	views := make([]quotaView, 0, len(decisions))
	for _, d := range decisions {
		views = append(views, newQuotaView(d))
	}
	return dispatch.JSONResponse(struct {
		SubjectID string      `json:"subject_id"`
		Quotas    []quotaView `json:"quotas"`
	}{SubjectID: subject, Quotas: views})
}

func (h *Handlers) quotaCheckWebSearch(ctx context.Context, raw map[string]any) (dispatch.Response, error) {
	subject, err := h.subject(raw)
	if err != nil {
		return dispatch.Response{}, err
	}
	d, err := h.quota.Check(ctx, subject, core.ResourceWebSearch)
	if err != nil {
		return dispatch.Response{}, err
	}

	return dispatch.JSONResponse(struct {
		CanSearch bool   `json:"can_search"`
		Remaining int    `json:"remaining"`
		Message   string `json:"message"`
	}{
		CanSearch: d.Allowed,
		Remaining: d.Remaining,
		Message:   quotaMessage(d),
	})
}

func quotaMessage(d quota.Decision) string {
	if d.Allowed {
		if d.Remaining == 1 {
			return "You have 1 web search remaining today."
		}
		return fmt.Sprintf("You have %d web searches remaining today.", d.Remaining)
	}
	msg := "You have reached your daily web search limit."
	if !d.ResetsAt.IsZero() {
		msg += " Your quota resets at " + d.ResetsAt.UTC().Format("15:04 MST") + "."
	}
	return msg
}

func schema(required []string, properties map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
