package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowStart(t *testing.T) {
	tests := []struct {
		name   string
		at     time.Time
		window time.Duration
		want   time.Time
	}{
		{
			name:   "mid-day aligns to midnight UTC",
			at:     time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
			window: 24 * time.Hour,
			want:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "exact boundary starts the new window",
			at:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			window: 24 * time.Hour,
			want:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "non-UTC input is normalized",
			at:     time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600)),
			window: 24 * time.Hour,
			want:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "hourly window",
			at:     time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
			window: time.Hour,
			want:   time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC),
		},
		{
			name:   "zero window falls back to a day",
			at:     time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
			window: 0,
			want:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(WindowStart(tt.at, tt.window)), "got %v", WindowStart(tt.at, tt.window))
		})
	}
}

func TestQuotaRecord_Rollover(t *testing.T) {
	day := 24 * time.Hour
	start := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	t.Run("inside window is untouched", func(t *testing.T) {
		rec := &QuotaRecord{Allowance: 10, Consumed: 4, WindowStart: start}
		changed := rec.Rollover(start.Add(23*time.Hour), day)
		assert.False(t, changed)
		assert.Equal(t, 4, rec.Consumed)
		assert.Equal(t, 6, rec.Remaining())
	})

	t.Run("boundary resets", func(t *testing.T) {
		rec := &QuotaRecord{Allowance: 10, Consumed: 10, WindowStart: start}
		changed := rec.Rollover(start.Add(day), day)
		assert.True(t, changed)
		assert.Equal(t, 0, rec.Consumed)
		assert.True(t, start.Add(day).Equal(rec.WindowStart))
	})

	t.Run("several windows later advances to the current one", func(t *testing.T) {
		rec := &QuotaRecord{Allowance: 10, Consumed: 7, WindowStart: start}
		now := start.Add(3*day + 5*time.Hour)
		assert.True(t, rec.Rollover(now, day))
		assert.True(t, start.Add(3*day).Equal(rec.WindowStart))
	})

	t.Run("rollover happens once per boundary", func(t *testing.T) {
		rec := &QuotaRecord{Allowance: 10, Consumed: 10, WindowStart: start}
		assert.True(t, rec.Rollover(start.Add(day), day))
		rec.Consumed = 1
		assert.False(t, rec.Rollover(start.Add(day+time.Minute), day))
		assert.Equal(t, 1, rec.Consumed)
	})
}

func TestQuotaRecord_Remaining(t *testing.T) {
	assert.Equal(t, 0, (*QuotaRecord)(nil).Remaining())
	assert.Equal(t, 3, (&QuotaRecord{Allowance: 5, Consumed: 2}).Remaining())
	// Tier downgrade below current consumption
	assert.Equal(t, 0, (&QuotaRecord{Allowance: 5, Consumed: 9}).Remaining())
}

func TestCacheEntry_Fresh(t *testing.T) {
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	entry := &CacheEntry{Key: "k", CreatedAt: created}
	ttl := 24 * time.Hour

	assert.True(t, entry.Fresh(created, ttl))
	assert.True(t, entry.Fresh(created.Add(ttl-time.Nanosecond), ttl))
	assert.False(t, entry.Fresh(created.Add(ttl), ttl))
}

func TestClassifySource(t *testing.T) {
	community := &CommunityResults{Posts: []Post{{ID: "p1"}}}
	web := &WebResults{Results: []WebResult{{URL: "https://example.com"}}}

	assert.Equal(t, ContentSourceBoth, ClassifySource(community, web))
	assert.Equal(t, ContentSourceCommunity, ClassifySource(community, nil))
	assert.Equal(t, ContentSourceWeb, ClassifySource(&CommunityResults{}, web))
	assert.Equal(t, ContentSourceNone, ClassifySource(nil, &WebResults{}))
	assert.Equal(t, ContentSourceWeb, ClassifySource(nil, &WebResults{Answer: "42"}))
}
