// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"time"
)

// ResourceWebSearch is the quota resource consumed by paid web search escalation.
const ResourceWebSearch = "web_search"

// DefaultWindow is the length of a quota window: one UTC calendar day.
const DefaultWindow = 24 * time.Hour

// Allowance is the quota a subject is entitled to for one resource.
// It is resolved fresh from the subject's tier on every check.
type Allowance struct {
	Tier   string
	Limit  int
	Window time.Duration
}

// QuotaRecord tracks consumption of a resource by a subject within a window.
type QuotaRecord struct {
	SubjectID   string
	Resource    string
	Tier        string
	Allowance   int
	Consumed    int
	WindowStart time.Time
}

// Remaining returns how many units are left in the active window.
// A tier downgrade can leave Consumed above Allowance; Remaining never goes negative.
func (r *QuotaRecord) Remaining() int {
	if r == nil {
		return 0
	}
	remaining := r.Allowance - r.Consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WindowEnd returns the instant at which the record's window rolls over.
func (r *QuotaRecord) WindowEnd(window time.Duration) time.Time {
	return r.WindowStart.Add(window)
}

// Expired reports whether now falls at or after the end of the record's window.
func (r *QuotaRecord) Expired(now time.Time, window time.Duration) bool {
	return !now.Before(r.WindowEnd(window))
}

// Rollover resets the record to the window containing now if its window has elapsed.
// Returns true if the record was modified.
func (r *QuotaRecord) Rollover(now time.Time, window time.Duration) bool {
	if !r.Expired(now, window) {
		return false
	}
	r.Consumed = 0
	r.WindowStart = WindowStart(now, window)
	return true
}

// WindowStart returns the start of the window containing t.
// Windows are aligned to the Unix epoch in UTC, so a 24h window is a calendar day.
func WindowStart(t time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = DefaultWindow
	}
	return t.UTC().Truncate(window)
}

// CacheEntry is a cached external search payload addressed by query fingerprint.
// Entries are immutable; a re-set replaces the whole entry.
type CacheEntry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Fresh reports whether the entry is still readable under the given TTL.
func (e *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) < ttl
}

// WebResult is a single hit returned by the external web search provider.
type WebResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// WebResults is the payload cached for an escalated query.
type WebResults struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer,omitempty"`
	Results []WebResult `json:"results"`
	Images  []string    `json:"images,omitempty"`
}

// Empty reports whether the provider returned nothing usable.
func (w *WebResults) Empty() bool {
	return w == nil || (len(w.Results) == 0 && w.Answer == "")
}

// Post is a community discussion post.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score,omitempty"`
}

// Link is a resource link shared in the community.
type Link struct {
	ID          string  `json:"id"`
	PostID      string  `json:"post_id,omitempty"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score,omitempty"`
}

// CommunityResults groups the items returned by a community search.
type CommunityResults struct {
	Posts    []Post    `json:"posts"`
	Links    []Link    `json:"links"`
	Comments []Comment `json:"comments"`
}

// Empty reports whether no community item matched.
func (c *CommunityResults) Empty() bool {
	return c == nil || (len(c.Posts) == 0 && len(c.Links) == 0 && len(c.Comments) == 0)
}

// Count returns the total number of items.
func (c *CommunityResults) Count() int {
	if c == nil {
		return 0
	}
	return len(c.Posts) + len(c.Links) + len(c.Comments)
}

// PostDetails is a post together with everything attached to it.
type PostDetails struct {
	Post     Post      `json:"post"`
	Links    []Link    `json:"links"`
	Comments []Comment `json:"comments"`
}

// NotificationType identifies the kind of quota notification.
type NotificationType string

const (
	// NotificationWarning is emitted when remaining quota drops to the low-water mark.
	NotificationWarning NotificationType = "warning"
	// NotificationExhausted is emitted when remaining quota reaches zero.
	NotificationExhausted NotificationType = "exhausted"
)

// Notification is a quota event delivered to the notification sink.
type Notification struct {
	ID        string
	SubjectID string
	Type      NotificationType
	Message   string
	Data      map[string]string
	DedupeKey string // at most one notification per key is ever created
	CreatedAt time.Time
}

// ContentSource classifies where the content of a response came from.
type ContentSource string

const (
	ContentSourceCommunity ContentSource = "community"
	ContentSourceWeb       ContentSource = "web"
	ContentSourceBoth      ContentSource = "both"
	ContentSourceNone      ContentSource = "none"
)

// ClassifySource derives the content source from what a response carries.
func ClassifySource(community *CommunityResults, web *WebResults) ContentSource {
	hasCommunity := !community.Empty()
	hasWeb := !web.Empty()
	switch {
	case hasCommunity && hasWeb:
		return ContentSourceBoth
	case hasWeb:
		return ContentSourceWeb
	case hasCommunity:
		return ContentSourceCommunity
	default:
		return ContentSourceNone
	}
}
