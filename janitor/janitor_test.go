package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/searchgate/cache"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage/badger"
)

type countingCleaner struct {
	calls    atomic.Int32
	failures int32
	removed  int
}

func (c *countingCleaner) Cleanup(context.Context) (int, error) {
	n := c.calls.Add(1)
	if n <= c.failures {
		return 0, errors.New("store unavailable")
	}
	return c.removed, nil
}

func TestRunOnce_SweepsExpiredEntries(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c, err := cache.New(store.Cache(), cache.WithTTL(time.Hour), cache.WithClock(clock))
	require.NoError(t, err)

	ctx := context.Background()
	c.Set(ctx, "old query", &core.WebResults{Query: "old query", Answer: "old"})
	now = now.Add(2 * time.Hour)
	c.Set(ctx, "new query", &core.WebResults{Query: "new query", Answer: "new"})

	j, err := New(c)
	require.NoError(t, err)

	removed, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, hit := c.Get(ctx, "new query")
	assert.True(t, hit)

	removed, err = j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRunOnce_RetriesFailures(t *testing.T) {
	cleaner := &countingCleaner{failures: 2, removed: 4}
	j, err := New(cleaner, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	removed, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.EqualValues(t, 3, cleaner.calls.Load())
}

func TestRunOnce_GivesUp(t *testing.T) {
	cleaner := &countingCleaner{failures: 10}
	j, err := New(cleaner, WithRetry(2, time.Millisecond))
	require.NoError(t, err)

	_, err = j.RunOnce(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, cleaner.calls.Load())
}

func TestStart_TicksUntilCancelled(t *testing.T) {
	cleaner := &countingCleaner{removed: 1}
	j, err := New(cleaner, WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, j.Start(ctx))
	assert.ErrorIs(t, j.Start(ctx), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	j.Wait()
	after := cleaner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, cleaner.calls.Load())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrCleanerRequired)

	_, err = New(&countingCleaner{}, WithInterval(0))
	assert.Error(t, err)

	_, err = New(&countingCleaner{}, WithRetry(0, time.Second))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}
