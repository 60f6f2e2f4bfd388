package orchestrator

import (
	"github.com/poiesic/searchgate/core"
)

// Status summarizes whether every collaborator behaved.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Request is a single search request.
type Request struct {
	Query     string
	SubjectID string
	// Escalate asks for a paid web search in addition to community search.
	Escalate      bool
	Limit         int // community items per kind
	MaxResults    int // web results
	IncludeImages bool
}

// Result is the layered response of a search.
type Result struct {
	Query               string                 `json:"query"`
	Keywords            []string               `json:"keywords"`
	Community           *core.CommunityResults `json:"community"`
	Web                 *core.WebResults       `json:"web,omitempty"`
	PrimaryContent      string                 `json:"primaryContent,omitempty"`
	EscalationRequested bool                   `json:"escalationRequested"`
	EscalationUsed      bool                   `json:"escalationUsed"`
	CacheHit            bool                   `json:"cacheHit"`
	QuotaRemaining      int                    `json:"quotaRemaining"`
	QuotaLimit          int                    `json:"quotaLimit"`
	QuotaExceeded       bool                   `json:"quotaExceeded"`
	WebSearchFailed     bool                   `json:"webSearchFailed"`
	Notice              string                 `json:"notice,omitempty"`
	ContentSource       core.ContentSource     `json:"contentSource"`
	Status              Status                 `json:"status"`
}

// degrade marks the result as served without one of its collaborators.
func (r *Result) degrade() {
	r.Status = StatusDegraded
}

// fallbackContent picks the primary content when no summary is available:
// the provider's answer, then the first web result, then the first post.
func fallbackContent(web *core.WebResults, community *core.CommunityResults) string {
	if web != nil {
		if web.Answer != "" {
			return web.Answer
		}
		for _, r := range web.Results {
			if r.Content != "" {
				return r.Content
			}
		}
	}
	if community != nil && len(community.Posts) > 0 {
		p := community.Posts[0]
		if p.Body != "" {
			return p.Body
		}
		return p.Title
	}
	return ""
}
