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

package ai

import (
	"context"

	"github.com/poiesic/searchgate/core"
)

// Summarizer composes a single answer from web and community material.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Summarize returns the primary content for a response to query.
	// Either source may be nil or empty.
	Summarize(ctx context.Context, query string, web *core.WebResults, community *core.CommunityResults) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, query string, web *core.WebResults, community *core.CommunityResults) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, query string, web *core.WebResults, community *core.CommunityResults) (string, error) {
	return f(ctx, query, web, community)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Summarizer returns the answer composition service.
	// The returned Summarizer is safe for concurrent use.
	Summarizer() Summarizer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
