// Package websearch defines the paid external web search collaborator.
package websearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/searchgate/core"
)

// ErrUpstream marks any failure of the external provider: non-2xx status,
// network error, timeout or an open circuit.
var ErrUpstream = errors.New("upstream provider error")

// Provider performs a paid web search.
//
// Implementations should return promptly once ctx is done. Callers bound every
// call with a deadline and stop waiting when it passes, whether or not the
// implementation honours ctx.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int, includeImages bool) (*core.WebResults, error)
}

// UpstreamError carries details of a failed provider call.
type UpstreamError struct {
	Provider   string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s returned status %d: %v", ErrUpstream, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUpstream, e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, query string, maxResults int, includeImages bool) (*core.WebResults, error)

// Search calls f.
func (f ProviderFunc) Search(ctx context.Context, query string, maxResults int, includeImages bool) (*core.WebResults, error) {
	return f(ctx, query, maxResults, includeImages)
}
