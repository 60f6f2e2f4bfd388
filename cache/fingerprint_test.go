package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Go Generics Tutorial", "go generics tutorial"},
		{"  go   generics\ttutorial\n", "go generics tutorial"},
		{"go-generics: tutorial?!", "go generics tutorial"},
		{"C++ vs. Rust", "c vs rust"},
		{"Café ÜBER straße", "café über straße"},
		{"version 1.22 release", "version 1 22 release"},
		{"?!...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFingerprint_EquivalentQueriesShareKey(t *testing.T) {
	a := Fingerprint("How do I use Go generics?", 100)
	b := Fingerprint("how do i use go generics", 100)
	c := Fingerprint("  HOW do I use   Go-generics!! ", 100)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.Equal(t, "how do i use go generics", a)
}

func TestFingerprint_Idempotent(t *testing.T) {
	for _, q := range []string{"Go Generics?", "a b c", "Ünïcödé query"} {
		k := Fingerprint(q, 100)
		assert.Equal(t, k, Fingerprint(k, 100), q)
	}
}

func TestFingerprint_LongQueriesDoNotCollide(t *testing.T) {
	prefix := strings.Repeat("golang concurrency patterns ", 10)
	a := Fingerprint(prefix+"with channels", 100)
	b := Fingerprint(prefix+"with mutexes", 100)

	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 100)
	assert.LessOrEqual(t, len(b), 100)
	assert.True(t, strings.HasPrefix(a, "golang concurrency patterns"))
	assert.Contains(t, a, "~")

	// Same long query, same key
	assert.Equal(t, a, Fingerprint(strings.ToUpper(prefix)+"WITH CHANNELS", 100))
}

func TestFingerprint_ShortQueryKeepsFullText(t *testing.T) {
	q := strings.Repeat("x", 100)
	assert.Equal(t, q, Fingerprint(q, 100))
	assert.NotEqual(t, q+"x", Fingerprint(q+"x", 100))
}

func TestFingerprint_TruncatesOnRuneBoundary(t *testing.T) {
	k := Fingerprint(strings.Repeat("ü", 200), 50)
	assert.LessOrEqual(t, len(k), 50)
	assert.True(t, strings.HasPrefix(k, "ü"))
	for _, r := range k {
		assert.NotEqual(t, '�', r)
	}
}

func TestFingerprint_PunctuationOnlyQueries(t *testing.T) {
	a := Fingerprint("???", 100)
	b := Fingerprint("!!!", 100)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "~"))
	assert.Len(t, a, 17)
}

func TestFingerprint_SmallBoundStillFits(t *testing.T) {
	long := strings.Repeat("react hooks ", 20)
	for _, n := range []int{1, 16, MinMaxKeyLength} {
		k := Fingerprint(long, n)
		assert.LessOrEqual(t, len(k), max(n, MinMaxKeyLength))
		assert.True(t, strings.HasPrefix(k, "r"), k)
	}
	assert.Len(t, Fingerprint(long, MinMaxKeyLength), MinMaxKeyLength)
}

func TestFingerprint_DefaultMaxLength(t *testing.T) {
	long := strings.Repeat("word ", 100)
	assert.Equal(t, Fingerprint(long, DefaultMaxKeyLength), Fingerprint(long, 0))
}
