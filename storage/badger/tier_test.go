package badger

import (
	"context"
	"testing"

	"github.com/poiesic/searchgate/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTier_SetGetClear(t *testing.T) {
	repo := newTestStore(t).Tiers()
	ctx := context.Background()

	_, err := repo.GetTier(ctx, "user-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.SetTier(ctx, "user-1", "pro"))
	tier, err := repo.GetTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "pro", tier)

	require.NoError(t, repo.SetTier(ctx, "user-1", ""))
	_, err = repo.GetTier(ctx, "user-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
