// Package storage defines persistence contracts for timeline service state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
var ErrAlreadyExists = errors.New("record already exists")

// ErrDanglingReference indicates a write referenced a user or message that
// does not exist.
var ErrDanglingReference = errors.New("referenced record does not exist")

// User stores one account record. Accounts are created and owned by the
// authentication collaborator; this core only reads them and cascades their
// deletion.
type User struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt time.Time
}

// Message stores one authored message.
type Message struct {
	ID        int64
	AuthorID  int64
	Text      string
	CreatedAt time.Time
}

// FollowEdge stores one directed follow relationship: FollowerID follows
// FollowedID. The pair is the identity; there is no surrogate key.
type FollowEdge struct {
	FollowedID int64
	FollowerID int64
	CreatedAt  time.Time
}

// Like stores one (user, message) like. The surrogate ID exists for storage
// convenience only; the pair is unique.
type Like struct {
	ID        int64
	UserID    int64
	MessageID int64
	CreatedAt time.Time
}

// FeedKey is the keyset position for reverse-chronological message listings:
// a listing resumes strictly after the message with this (CreatedAt, ID)
// pair. The zero value means "start from the newest message".
type FeedKey struct {
	CreatedAt time.Time
	MessageID int64
}

// IsZero reports whether the key marks the start of a listing.
func (k FeedKey) IsZero() bool {
	return k.CreatedAt.IsZero() && k.MessageID == 0
}

// LikedMessage pairs a message with the like that selected it, so liked-by
// listings can paginate on like recency.
type LikedMessage struct {
	Message Message
	LikeID  int64
}

// UserIDPage stores one page of user identifiers from a follow-edge query.
type UserIDPage struct {
	UserIDs       []int64
	NextPageToken string
}

// UserStore persists account records on behalf of the auth collaborator.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, userID int64) (User, error)
	// DeleteUser removes the user and, atomically, every message the user
	// authored, every like the user made, and every follow edge the user
	// appears in on either side.
	DeleteUser(ctx context.Context, userID int64) error
}

// MessageStore persists authored messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, message Message) (Message, error)
	GetMessage(ctx context.Context, messageID int64) (Message, error)
	DeleteMessage(ctx context.Context, messageID int64) error
	// ListMessagesByAuthors returns up to limit messages authored by any of
	// authorIDs, ordered by (created_at DESC, id DESC), starting strictly
	// after the position marked by before.
	ListMessagesByAuthors(ctx context.Context, authorIDs []int64, limit int, before FeedKey) ([]Message, error)
	CountMessagesByAuthor(ctx context.Context, authorID int64) (int64, error)
}

// FollowStore persists directed follow edges with set semantics.
type FollowStore interface {
	// CreateFollow inserts one edge. A duplicate pair fails with
	// ErrAlreadyExists; an unknown user on either side fails with
	// ErrDanglingReference.
	CreateFollow(ctx context.Context, edge FollowEdge) error
	// DeleteFollow removes the edge if present; removing an absent edge is
	// not an error.
	DeleteFollow(ctx context.Context, followerID int64, followedID int64) error
	HasFollow(ctx context.Context, followerID int64, followedID int64) (bool, error)
	ListFollowerIDs(ctx context.Context, userID int64, pageSize int, pageToken string) (UserIDPage, error)
	ListFollowingIDs(ctx context.Context, userID int64, pageSize int, pageToken string) (UserIDPage, error)
	// AllFollowingIDs returns the complete followee set for feed scoping.
	AllFollowingIDs(ctx context.Context, userID int64) ([]int64, error)
	CountFollowers(ctx context.Context, userID int64) (int64, error)
	CountFollowing(ctx context.Context, userID int64) (int64, error)
}

// LikeStore persists (user, message) likes with set semantics.
type LikeStore interface {
	// CreateLike inserts one like. A duplicate pair fails with
	// ErrAlreadyExists; an unknown user or message fails with
	// ErrDanglingReference.
	CreateLike(ctx context.Context, like Like) error
	// DeleteLike removes the like if present; removing an absent like is
	// not an error.
	DeleteLike(ctx context.Context, userID int64, messageID int64) error
	HasLike(ctx context.Context, userID int64, messageID int64) (bool, error)
	CountLikesForMessage(ctx context.Context, messageID int64) (int64, error)
	CountLikesByUser(ctx context.Context, userID int64) (int64, error)
	// LikeCountsForMessages returns like counts keyed by message ID.
	// Messages with zero likes are absent from the map.
	LikeCountsForMessages(ctx context.Context, messageIDs []int64) (map[int64]int64, error)
	// LikedMessageIDs reports which of messageIDs the user has liked.
	LikedMessageIDs(ctx context.Context, userID int64, messageIDs []int64) (map[int64]bool, error)
	// ListLikedMessages returns up to limit messages the user has liked,
	// newest like first, starting strictly after beforeLikeID (0 = newest).
	ListLikedMessages(ctx context.Context, userID int64, limit int, beforeLikeID int64) ([]LikedMessage, error)
}

// Store combines every persistence contract of the timeline service.
type Store interface {
	UserStore
	MessageStore
	FollowStore
	LikeStore
}
