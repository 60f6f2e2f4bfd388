package storage

import (
	"testing"
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaRecordSerialization(t *testing.T) {
	record := &core.QuotaRecord{
		SubjectID:   "user-42",
		Resource:    core.ResourceWebSearch,
		Tier:        "pro",
		Allowance:   100,
		Consumed:    37,
		WindowStart: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}

	decoded, err := UnmarshalQuotaRecord(MarshalQuotaRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record.SubjectID, decoded.SubjectID)
	assert.Equal(t, record.Tier, decoded.Tier)
	assert.Equal(t, record.Allowance, decoded.Allowance)
	assert.Equal(t, record.Consumed, decoded.Consumed)
	assert.True(t, record.WindowStart.Equal(decoded.WindowStart))
	assert.Equal(t, time.UTC, decoded.WindowStart.Location())
}

func TestWebResultsSerialization(t *testing.T) {
	results := &core.WebResults{
		Query:  "go generics tutorial",
		Answer: "Generics landed in Go 1.18.",
		Results: []core.WebResult{
			{Title: "Tutorial", URL: "https://go.dev/doc/tutorial/generics", Content: "Getting started", Score: 0.93},
			{Title: "Blog", URL: "https://go.dev/blog/intro-generics", Content: "An introduction", Score: 0.71},
		},
		Images: []string{"https://go.dev/images/gopher.png"},
	}

	decoded, err := UnmarshalWebResults(MarshalWebResults(results))
	require.NoError(t, err)
	assert.Equal(t, results, decoded)
}

func TestCacheEntrySerialization_CarriesPayload(t *testing.T) {
	payload := MarshalWebResults(&core.WebResults{Query: "q", Results: []core.WebResult{{URL: "https://example.com"}}})
	entry := &core.CacheEntry{
		Key:       "q",
		Payload:   payload,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCacheEntry(MarshalCacheEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry.Key, decoded.Key)
	assert.Equal(t, entry.Payload, decoded.Payload)
	assert.True(t, entry.CreatedAt.Equal(decoded.CreatedAt))

	inner, err := UnmarshalWebResults(decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", inner.Results[0].URL)
}

func TestNotificationSerialization(t *testing.T) {
	n := &core.Notification{
		ID:        "0b6f1c5e-8a43-4c1f-9b2a-4f0f3b1d9e11",
		SubjectID: "user-1",
		Type:      core.NotificationWarning,
		Message:   "3 web searches left today",
		Data:      map[string]string{"remaining": "3", "resource": core.ResourceWebSearch},
		DedupeKey: "warning:user-1:web_search:1773446400",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalNotification(MarshalNotification(n))
	require.NoError(t, err)
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, n.Type, decoded.Type)
	assert.Equal(t, n.Data, decoded.Data)
	assert.Equal(t, n.DedupeKey, decoded.DedupeKey)
	assert.True(t, n.CreatedAt.Equal(decoded.CreatedAt))
}

func TestUnmarshal_Truncated(t *testing.T) {
	data := MarshalQuotaRecord(&core.QuotaRecord{SubjectID: "user-1", Resource: core.ResourceWebSearch, Allowance: 10})

	_, err := UnmarshalQuotaRecord(data[:3])
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalNotification(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
