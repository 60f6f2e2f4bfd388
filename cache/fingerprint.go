package cache

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-crypt/x/blake2b"
)

const (
	// DefaultMaxKeyLength bounds the length of a fingerprint in bytes.
	DefaultMaxKeyLength = 100

	digestSeparator = "~"
	digestBytes     = 8 // 16 hex characters

	// MinMaxKeyLength is the smallest usable key bound: the digest suffix plus
	// one byte of query text.
	MinMaxKeyLength = len(digestSeparator) + 2*digestBytes + 1
)

// Fingerprint derives the cache key of a query.
//
// The query is lower-cased, every rune that is not a letter or digit becomes a
// space, whitespace runs collapse to one space and the result is trimmed, so
// queries differing only in case, punctuation or spacing share a key.
//
// maxLen values below MinMaxKeyLength are raised to it. Keys longer than
// maxLen keep a prefix of the normalized text followed by
// "~" and a BLAKE2b digest of the full normalized text. Long queries sharing a
// prefix therefore never collide. A query that normalizes to nothing is keyed
// by the digest of its lower-cased raw text.
func Fingerprint(query string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLength
	}
	maxLen = max(maxLen, MinMaxKeyLength)

	normalized := Normalize(query)
	if normalized == "" {
		return digestSeparator + digest(strings.ToLower(query))
	}
	if len(normalized) <= maxLen {
		return normalized
	}

	suffix := digestSeparator + digest(normalized)
	prefix := truncateRunes(normalized, max(maxLen-len(suffix), 0))
	return strings.TrimRight(prefix, " ") + suffix
}

// Normalize lower-cases text, replaces non-alphanumeric runes with spaces and
// collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range strings.ToLower(text) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncateRunes returns the longest prefix of s at most n bytes long that
// ends on a rune boundary.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func digest(s string) string {
	h, _ := blake2b.New(digestBytes, nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
