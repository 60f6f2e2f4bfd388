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

package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/searchgate/core"
)

const snippetLength = 400

const systemPrompt = `You answer questions for members of a discussion community.

You are given the member's question, results from a web search, and posts from the
community. Write a short, direct answer in plain prose.

Rules:
- Use only the material provided. Do not invent facts, links or quotes.
- Prefer community posts when they answer the question; cite them by title.
- Cite web sources by their number in square brackets, for example [2].
- If the material does not answer the question, say so in one sentence.
- Do not include any preamble, greeting, or closing remarks.`

// buildUserPrompt lays out the question and up to maxSources items per source.
func buildUserPrompt(query string, web *core.WebResults, community *core.CommunityResults, maxSources int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", scrubString(query))

	if !web.Empty() {
		b.WriteString("\nWeb results:\n")
		if web.Answer != "" {
			fmt.Fprintf(&b, "Search engine summary: %s\n", truncate(scrubString(web.Answer), snippetLength))
		}
		for i, r := range web.Results {
			if i >= maxSources {
				break
			}
			fmt.Fprintf(&b, "[%d] %s (%s)\n    %s\n", i+1, scrubString(r.Title), r.URL, truncate(scrubString(r.Content), snippetLength))
		}
	}

	if community != nil && len(community.Posts) > 0 {
		b.WriteString("\nCommunity posts:\n")
		for i, p := range community.Posts {
			if i >= maxSources {
				break
			}
			fmt.Fprintf(&b, "- %s: %s\n", scrubString(p.Title), truncate(scrubString(p.Body), snippetLength))
		}
	}

	return b.String()
}
