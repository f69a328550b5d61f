// Package graph maintains the directed follow relation between users.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perchsocial/perch/internal/platform/pagination"
	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

const (
	defaultListEdgesPageSize = 10
	maxListEdgesPageSize     = 50
)

// ErrSelfFollow is returned when a user attempts to follow themselves.
var ErrSelfFollow = errors.New("user cannot follow themselves")

// Service exposes follow graph operations.
type Service struct {
	store storage.FollowStore
	clock func() time.Time
}

// NewService creates a graph service backed by follow storage.
func NewService(store storage.FollowStore) *Service {
	return &Service{
		store: store,
		clock: time.Now,
	}
}

// Follow records that followerID follows followedID. Repeating an existing
// follow succeeds without effect.
func (s *Service) Follow(ctx context.Context, followerID int64, followedID int64) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("follow store is not configured")
	}
	if followerID <= 0 {
		return fmt.Errorf("follower id is required")
	}
	if followedID <= 0 {
		return fmt.Errorf("followed id is required")
	}
	if followerID == followedID {
		return ErrSelfFollow
	}

	now := time.Now()
	if s.clock != nil {
		now = s.clock()
	}
	err := s.store.CreateFollow(ctx, storage.FollowEdge{
		FollowedID: followedID,
		FollowerID: followerID,
		CreatedAt:  now,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

// Unfollow removes the follower's edge toward followedID. Removing an absent
// edge succeeds without effect.
func (s *Service) Unfollow(ctx context.Context, followerID int64, followedID int64) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("follow store is not configured")
	}
	if followerID <= 0 {
		return fmt.Errorf("follower id is required")
	}
	if followedID <= 0 {
		return fmt.Errorf("followed id is required")
	}

	if err := s.store.DeleteFollow(ctx, followerID, followedID); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

// IsFollowing reports whether followerID currently follows followedID.
func (s *Service) IsFollowing(ctx context.Context, followerID int64, followedID int64) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("follow store is not configured")
	}
	has, err := s.store.HasFollow(ctx, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("is following: %w", err)
	}
	return has, nil
}

// Followers returns one page of user IDs that follow userID.
func (s *Service) Followers(ctx context.Context, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	if s == nil || s.store == nil {
		return storage.UserIDPage{}, fmt.Errorf("follow store is not configured")
	}
	if userID <= 0 {
		return storage.UserIDPage{}, fmt.Errorf("user id is required")
	}
	pageSize = pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultListEdgesPageSize,
		Max:     maxListEdgesPageSize,
	})
	page, err := s.store.ListFollowerIDs(ctx, userID, pageSize, pageToken)
	if err != nil {
		return storage.UserIDPage{}, fmt.Errorf("list followers: %w", err)
	}
	return page, nil
}

// Following returns one page of user IDs that userID follows.
func (s *Service) Following(ctx context.Context, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	if s == nil || s.store == nil {
		return storage.UserIDPage{}, fmt.Errorf("follow store is not configured")
	}
	if userID <= 0 {
		return storage.UserIDPage{}, fmt.Errorf("user id is required")
	}
	pageSize = pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultListEdgesPageSize,
		Max:     maxListEdgesPageSize,
	})
	page, err := s.store.ListFollowingIDs(ctx, userID, pageSize, pageToken)
	if err != nil {
		return storage.UserIDPage{}, fmt.Errorf("list following: %w", err)
	}
	return page, nil
}

// Counts returns the follower and following totals for userID.
func (s *Service) Counts(ctx context.Context, userID int64) (followers int64, following int64, err error) {
	if s == nil || s.store == nil {
		return 0, 0, fmt.Errorf("follow store is not configured")
	}
	followers, err = s.store.CountFollowers(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("count followers: %w", err)
	}
	following, err = s.store.CountFollowing(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("count following: %w", err)
	}
	return followers, following, nil
}
