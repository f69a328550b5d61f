// Package facade exposes one entry point per timeline capability. It carries
// no business logic of its own: it translates cursors and page sizes, then
// delegates to the graph, engagement, and feed services.
package facade

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/perchsocial/perch/internal/platform/pagination"
	"github.com/perchsocial/perch/internal/services/timeline/cursor"
	"github.com/perchsocial/perch/internal/services/timeline/engagement"
	"github.com/perchsocial/perch/internal/services/timeline/feed"
	"github.com/perchsocial/perch/internal/services/timeline/graph"
	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

const (
	defaultFeedPageSize = 20
	maxFeedPageSize     = 50
	defaultListPageSize = 10
	maxListPageSize     = 50
)

// ErrInvalidCursor is returned when a pagination token cannot be decoded or
// was issued for a different viewer.
var ErrInvalidCursor = errors.New("invalid cursor")

// ErrNotMessageAuthor is returned when a caller tries to delete a message
// they did not write.
var ErrNotMessageAuthor = errors.New("caller is not the message author")

// ErrInvalidMessageText is returned when posted text is empty after trimming
// or longer than the 140-rune limit.
var ErrInvalidMessageText = errors.New("message text must be 1 to 140 characters")

const maxMessageTextRunes = 140

// FeedPage is one assembled timeline slice with an opaque resume token.
// NextCursor is empty on the final page.
type FeedPage struct {
	Entries    []feed.Entry
	NextCursor string
}

// UserIDPage is one page of user IDs with an opaque resume token.
type UserIDPage struct {
	UserIDs    []int64
	NextCursor string
}

// ProfileCounts aggregates the totals shown on a profile header.
type ProfileCounts struct {
	Messages   int64
	Followers  int64
	Following  int64
	LikesGiven int64
}

// Facade is the single query surface of the timeline core.
type Facade struct {
	store      storage.Store
	graph      *graph.Service
	engagement *engagement.Service
	feed       *feed.Assembler
}

// New creates a facade over one timeline store.
func New(store storage.Store) *Facade {
	return &Facade{
		store:      store,
		graph:      graph.NewService(store),
		engagement: engagement.NewService(store),
		feed:       feed.NewAssembler(store),
	}
}

// Follow records viewer → target. Repeats succeed without effect.
func (f *Facade) Follow(ctx context.Context, viewerID int64, targetID int64) error {
	return f.graph.Follow(ctx, viewerID, targetID)
}

// Unfollow removes viewer → target. Repeats succeed without effect.
func (f *Facade) Unfollow(ctx context.Context, viewerID int64, targetID int64) error {
	return f.graph.Unfollow(ctx, viewerID, targetID)
}

// IsFollowing reports whether viewer currently follows target.
func (f *Facade) IsFollowing(ctx context.Context, viewerID int64, targetID int64) (bool, error) {
	return f.graph.IsFollowing(ctx, viewerID, targetID)
}

// Followers returns one page of the users following userID.
func (f *Facade) Followers(ctx context.Context, userID int64, pageSize int, pageToken string) (UserIDPage, error) {
	page, err := f.graph.Followers(ctx, userID, pageSize, pageToken)
	if err != nil {
		return UserIDPage{}, err
	}
	return UserIDPage{UserIDs: page.UserIDs, NextCursor: page.NextPageToken}, nil
}

// Following returns one page of the users userID follows.
func (f *Facade) Following(ctx context.Context, userID int64, pageSize int, pageToken string) (UserIDPage, error) {
	page, err := f.graph.Following(ctx, userID, pageSize, pageToken)
	if err != nil {
		return UserIDPage{}, err
	}
	return UserIDPage{UserIDs: page.UserIDs, NextCursor: page.NextPageToken}, nil
}

// Like records viewer's like on messageID. Repeats succeed without effect.
func (f *Facade) Like(ctx context.Context, viewerID int64, messageID int64) error {
	return f.engagement.Like(ctx, viewerID, messageID)
}

// Unlike removes viewer's like on messageID. Repeats succeed without effect.
func (f *Facade) Unlike(ctx context.Context, viewerID int64, messageID int64) error {
	return f.engagement.Unlike(ctx, viewerID, messageID)
}

// LikeCount returns the number of likes on one message.
func (f *Facade) LikeCount(ctx context.Context, messageID int64) (int64, error) {
	return f.engagement.LikeCount(ctx, messageID)
}

// HasLiked reports whether viewer has liked messageID.
func (f *Facade) HasLiked(ctx context.Context, viewerID int64, messageID int64) (bool, error) {
	return f.engagement.HasLiked(ctx, viewerID, messageID)
}

// GetFeed returns one page of the viewer's home timeline.
func (f *Facade) GetFeed(ctx context.Context, viewerID int64, pageSize int, pageCursor string) (FeedPage, error) {
	before, err := decodeFeedCursor(pageCursor, viewerID)
	if err != nil {
		return FeedPage{}, err
	}
	pageSize = pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultFeedPageSize,
		Max:     maxFeedPageSize,
	})

	page, err := f.feed.Feed(ctx, viewerID, pageSize, before)
	if err != nil {
		return FeedPage{}, err
	}
	return encodeFeedPage(page, viewerID)
}

// GetUserTimeline returns one page of authorID's own messages, newest first.
func (f *Facade) GetUserTimeline(ctx context.Context, viewerID int64, authorID int64, pageSize int, pageCursor string) (FeedPage, error) {
	before, err := decodeFeedCursor(pageCursor, viewerID)
	if err != nil {
		return FeedPage{}, err
	}
	pageSize = pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultFeedPageSize,
		Max:     maxFeedPageSize,
	})

	page, err := f.feed.UserTimeline(ctx, viewerID, authorID, pageSize, before)
	if err != nil {
		return FeedPage{}, err
	}
	return encodeFeedPage(page, viewerID)
}

// GetLikedMessages returns one page of the messages userID has liked, newest
// like first. The token is the like ID to resume after, like the follower
// list tokens.
func (f *Facade) GetLikedMessages(ctx context.Context, viewerID int64, userID int64, pageSize int, pageToken string) (FeedPage, error) {
	beforeLikeID := int64(0)
	pageToken = strings.TrimSpace(pageToken)
	if pageToken != "" {
		parsed, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil || parsed <= 0 {
			return FeedPage{}, fmt.Errorf("%w: bad like token", ErrInvalidCursor)
		}
		beforeLikeID = parsed
	}
	pageSize = pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultListPageSize,
		Max:     maxListPageSize,
	})

	page, lastLikeID, err := f.feed.LikedMessages(ctx, viewerID, userID, pageSize, beforeLikeID)
	if err != nil {
		return FeedPage{}, err
	}
	out := FeedPage{Entries: page.Entries}
	if page.HasMore {
		out.NextCursor = strconv.FormatInt(lastLikeID, 10)
	}
	return out, nil
}

// PostMessage persists one message authored by viewerID.
func (f *Facade) PostMessage(ctx context.Context, viewerID int64, text string) (storage.Message, error) {
	if f == nil || f.store == nil {
		return storage.Message{}, fmt.Errorf("store is not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageTextRunes {
		return storage.Message{}, ErrInvalidMessageText
	}
	message, err := f.store.CreateMessage(ctx, storage.Message{
		AuthorID: viewerID,
		Text:     text,
	})
	if err != nil {
		return storage.Message{}, err
	}
	return message, nil
}

// DeleteMessage removes one message; only its author may delete it. The
// message's likes fall to the storage cascade.
func (f *Facade) DeleteMessage(ctx context.Context, viewerID int64, messageID int64) error {
	if f == nil || f.store == nil {
		return fmt.Errorf("store is not configured")
	}
	message, err := f.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.AuthorID != viewerID {
		return ErrNotMessageAuthor
	}
	return f.store.DeleteMessage(ctx, messageID)
}

// GetProfileCounts returns the profile header totals for userID.
func (f *Facade) GetProfileCounts(ctx context.Context, userID int64) (ProfileCounts, error) {
	if f == nil || f.store == nil {
		return ProfileCounts{}, fmt.Errorf("store is not configured")
	}
	messages, err := f.store.CountMessagesByAuthor(ctx, userID)
	if err != nil {
		return ProfileCounts{}, fmt.Errorf("profile counts: %w", err)
	}
	followers, following, err := f.graph.Counts(ctx, userID)
	if err != nil {
		return ProfileCounts{}, fmt.Errorf("profile counts: %w", err)
	}
	likesGiven, err := f.store.CountLikesByUser(ctx, userID)
	if err != nil {
		return ProfileCounts{}, fmt.Errorf("profile counts: %w", err)
	}
	return ProfileCounts{
		Messages:   messages,
		Followers:  followers,
		Following:  following,
		LikesGiven: likesGiven,
	}, nil
}

// CreateUser persists one account record.
func (f *Facade) CreateUser(ctx context.Context, user storage.User) (storage.User, error) {
	if f == nil || f.store == nil {
		return storage.User{}, fmt.Errorf("store is not configured")
	}
	return f.store.CreateUser(ctx, user)
}

// GetUser fetches one account record by ID.
func (f *Facade) GetUser(ctx context.Context, userID int64) (storage.User, error) {
	if f == nil || f.store == nil {
		return storage.User{}, fmt.Errorf("store is not configured")
	}
	return f.store.GetUser(ctx, userID)
}

// DeleteUser removes one user; messages, likes, and follow edges on either
// side fall to the storage cascade.
func (f *Facade) DeleteUser(ctx context.Context, userID int64) error {
	if f == nil || f.store == nil {
		return fmt.Errorf("store is not configured")
	}
	return f.store.DeleteUser(ctx, userID)
}

func decodeFeedCursor(token string, viewerID int64) (storage.FeedKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.FeedKey{}, nil
	}
	c, err := cursor.Decode(token)
	if err != nil {
		return storage.FeedKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := cursor.ValidateViewerHash(c, viewerID); err != nil {
		return storage.FeedKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return storage.FeedKey{
		CreatedAt: time.UnixMilli(c.CreatedAtMillis).UTC(),
		MessageID: c.MessageID,
	}, nil
}

func encodeFeedPage(page feed.Page, viewerID int64) (FeedPage, error) {
	out := FeedPage{Entries: page.Entries}
	if !page.HasMore || len(page.Entries) == 0 {
		return out, nil
	}
	last := page.Entries[len(page.Entries)-1].Message
	token, err := cursor.Encode(cursor.New(last.CreatedAt.UnixMilli(), last.ID, viewerID))
	if err != nil {
		return FeedPage{}, fmt.Errorf("encode cursor: %w", err)
	}
	out.NextCursor = token
	return out, nil
}
