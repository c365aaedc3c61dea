package user

import (
	"context"

	"github.com/alignlab/alignd/pkg/model"
)

// CheckStorageQuota reports whether the user's subscription leaves room for
// required additional bytes of storage.
func (s *Service) CheckStorageQuota(
	ctx context.Context, id model.UserID, required int64,
) (bool, error) {
	user, err := s.users.ByID(ctx, id)
	if err != nil {
		return false, err
	}
	tier, err := s.users.TierByID(ctx, user.TierID)
	if err != nil {
		return false, err
	}
	available := tier.TotalStorageLimit - user.UsedStorage
	return available >= required, nil
}

// AddStorageUsage attributes delta bytes of storage to the user. Negative
// deltas release storage; the counter never goes below zero.
func (s *Service) AddStorageUsage(ctx context.Context, id model.UserID, delta int64) error {
	return s.users.UpdateStorage(ctx, id, delta)
}
