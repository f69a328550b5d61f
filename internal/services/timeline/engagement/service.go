// Package engagement maintains per-user likes on messages.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

// ErrSelfLike is returned when a user attempts to like their own message.
var ErrSelfLike = errors.New("user cannot like their own message")

type likeAndMessageStore interface {
	storage.LikeStore
	storage.MessageStore
}

// Service exposes like operations.
type Service struct {
	store likeAndMessageStore
	clock func() time.Time
}

// NewService creates an engagement service backed by like and message storage.
func NewService(store likeAndMessageStore) *Service {
	return &Service{
		store: store,
		clock: time.Now,
	}
}

// Like records that userID liked messageID. Repeating an existing like
// succeeds without effect.
func (s *Service) Like(ctx context.Context, userID int64, messageID int64) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("like store is not configured")
	}
	if userID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if messageID <= 0 {
		return fmt.Errorf("message id is required")
	}

	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ErrDanglingReference
		}
		return fmt.Errorf("like: %w", err)
	}
	if message.AuthorID == userID {
		return ErrSelfLike
	}

	now := time.Now()
	if s.clock != nil {
		now = s.clock()
	}
	err = s.store.CreateLike(ctx, storage.Like{
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: now,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("like: %w", err)
	}
	return nil
}

// Unlike removes the user's like on messageID. Removing an absent like
// succeeds without effect.
func (s *Service) Unlike(ctx context.Context, userID int64, messageID int64) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("like store is not configured")
	}
	if userID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if messageID <= 0 {
		return fmt.Errorf("message id is required")
	}

	if err := s.store.DeleteLike(ctx, userID, messageID); err != nil {
		return fmt.Errorf("unlike: %w", err)
	}
	return nil
}

// HasLiked reports whether userID has liked messageID.
func (s *Service) HasLiked(ctx context.Context, userID int64, messageID int64) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("like store is not configured")
	}
	has, err := s.store.HasLike(ctx, userID, messageID)
	if err != nil {
		return false, fmt.Errorf("has liked: %w", err)
	}
	return has, nil
}

// LikeCount returns the number of likes on one message.
func (s *Service) LikeCount(ctx context.Context, messageID int64) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("like store is not configured")
	}
	count, err := s.store.CountLikesForMessage(ctx, messageID)
	if err != nil {
		return 0, fmt.Errorf("like count: %w", err)
	}
	return count, nil
}

// LikeCounts returns like counts for each of messageIDs; messages without
// likes map to zero.
func (s *Service) LikeCounts(ctx context.Context, messageIDs []int64) (map[int64]int64, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("like store is not configured")
	}
	counts, err := s.store.LikeCountsForMessages(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("like counts: %w", err)
	}
	for _, id := range messageIDs {
		if _, ok := counts[id]; !ok {
			counts[id] = 0
		}
	}
	return counts, nil
}

// LikedByUser reports which of messageIDs userID has liked.
func (s *Service) LikedByUser(ctx context.Context, userID int64, messageIDs []int64) (map[int64]bool, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("like store is not configured")
	}
	liked, err := s.store.LikedMessageIDs(ctx, userID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("liked by user: %w", err)
	}
	return liked, nil
}
