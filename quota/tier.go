package quota

import (
	"context"
	"errors"

	"github.com/poiesic/searchgate/storage"
)

// TierResolver maps a subject to its subscription tier.
// It is consulted on every check and consume so tier changes apply immediately.
type TierResolver interface {
	ResolveTier(ctx context.Context, subjectID string) (string, error)
}

// TierResolverFunc adapts a function to the TierResolver interface.
type TierResolverFunc func(ctx context.Context, subjectID string) (string, error)

func (f TierResolverFunc) ResolveTier(ctx context.Context, subjectID string) (string, error) {
	return f(ctx, subjectID)
}

// StoreTierResolver reads explicit assignments from a TierStore and falls back
// to a default tier for subjects without one.
type StoreTierResolver struct {
	store       storage.TierStore
	defaultTier string
}

// NewStoreTierResolver creates a resolver over store.
func NewStoreTierResolver(store storage.TierStore, defaultTier string) *StoreTierResolver {
	return &StoreTierResolver{store: store, defaultTier: defaultTier}
}

// ResolveTier returns the subject's assigned tier, or the default tier when
// the subject has no assignment. Store failures return the default tier
// together with the error.
func (r *StoreTierResolver) ResolveTier(ctx context.Context, subjectID string) (string, error) {
	tier, err := r.store.GetTier(ctx, subjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return r.defaultTier, nil
		}
		return r.defaultTier, err
	}
	if tier == "" {
		return r.defaultTier, nil
	}
	return tier, nil
}
