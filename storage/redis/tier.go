package redis

import (
	"context"
	"strings"

	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
)

type tierStore Store

var _ storage.TierStore = (*tierStore)(nil)

func (t *tierStore) hashKey() string {
	return (*Store)(t).key("tiers")
}

// GetTier returns the subject's explicit tier assignment.
func (t *tierStore) GetTier(ctx context.Context, subjectID string) (string, error) {
	tier, err := t.client.HGet(ctx, t.hashKey(), subjectID).Result()
	if err != nil {
		return "", translate(err)
	}
	return tier, nil
}

// SetTier assigns a tier; an empty tier removes the assignment.
func (t *tierStore) SetTier(ctx context.Context, subjectID, tier string) error {
	if strings.TrimSpace(subjectID) == "" {
		return core.ErrEmptySubject
	}
	if tier == "" {
		return translate(t.client.HDel(ctx, t.hashKey(), subjectID).Err())
	}
	return translate(t.client.HSet(ctx, t.hashKey(), subjectID, tier).Err())
}
