package orchestrator

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
)

// DefaultMaxKeywords caps the keywords passed to community search.
const DefaultMaxKeywords = 8

// Stop words dropped before keywords are built
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "if": true, "so": true, "about": true,
	"how": true, "what": true, "why": true, "when": true, "where": true, "which": true,
	"who": true, "i": true, "me": true, "my": true, "we": true, "our": true,
	"your": true, "can": true, "could": true, "should": true, "would": true,
	"does": true, "did": true, "into": true, "there": true, "any": true,
	// contraction stems left once the apostrophe suffix is dropped
	"don": true, "doesn": true, "didn": true, "isn": true, "aren": true,
	"wasn": true, "weren": true, "won": true, "wouldn": true, "shouldn": true,
	"couldn": true, "let": true,
}

// tokenizeAndFilter lowercases text, drops everything from an apostrophe inside
// a word to the end of that word, turns every other non-alphanumeric rune into a space, splits
// on whitespace, and removes stop words and purely numeric tokens.
func tokenizeAndFilter(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	elided, inWord := false, false
	for _, r := range strings.ToLower(text) {
		switch {
		case (r == '\'' || r == '’') && inWord:
			elided = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			inWord = true
			if !elided {
				b.WriteRune(r)
			}
		default:
			elided, inWord = false, false
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	filtered := words[:0]
	for _, word := range words {
		if stopWords[word] || isNumeric(word) {
			continue
		}
		filtered = append(filtered, word)
	}
	return filtered
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ExtractKeywords returns up to limit keywords for text: the filtered words and
// every adjacent pair of them, ranked by frequency and then by length so that
// repeated terms and specific phrases come first.
func ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxKeywords
	}

	words := tokenizeAndFilter(text)
	if len(words) == 0 {
		return []string{}
	}

	type candidate struct {
		term  string
		count int
		first int
	}
	seen := make(map[string]*candidate)
	order := 0
	add := func(term string) {
		if c, ok := seen[term]; ok {
			c.count++
			return
		}
		seen[term] = &candidate{term: term, count: 1, first: order}
		order++
	}

	for i, w := range words {
		add(w)
		if i > 0 && words[i-1] != w {
			add(words[i-1] + " " + w)
		}
	}

	ranked := make([]*candidate, 0, len(seen))
	for _, c := range seen {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(a, b *candidate) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		if c := cmp.Compare(len(b.term), len(a.term)); c != 0 {
			return c
		}
		return cmp.Compare(a.first, b.first)
	})

	keywords := make([]string, 0, min(limit, len(ranked)))
	for _, c := range ranked {
		if len(keywords) == limit {
			break
		}
		keywords = append(keywords, c.term)
	}
	return keywords
}
