// Package feed assembles reverse-chronological message lists for a viewer.
package feed

import (
	"context"
	"fmt"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

type feedStore interface {
	storage.MessageStore
	storage.FollowStore
	storage.LikeStore
}

// Entry is one message enriched with engagement state for the viewer.
type Entry struct {
	Message       storage.Message
	LikeCount     int64
	LikedByViewer bool
}

// Page is one assembled slice of a timeline. HasMore reports whether older
// entries exist past the last one returned.
type Page struct {
	Entries []Entry
	HasMore bool
}

// Assembler builds feed pages from message, follow, and like storage.
type Assembler struct {
	store feedStore
}

// NewAssembler creates a feed assembler.
func NewAssembler(store feedStore) *Assembler {
	return &Assembler{store: store}
}

// Feed returns one page of the viewer's home timeline: messages authored by
// the viewer or anyone the viewer follows, newest first, resuming strictly
// after before when set.
func (a *Assembler) Feed(ctx context.Context, viewerID int64, pageSize int, before storage.FeedKey) (Page, error) {
	if a == nil || a.store == nil {
		return Page{}, fmt.Errorf("feed store is not configured")
	}
	if viewerID <= 0 {
		return Page{}, fmt.Errorf("viewer id is required")
	}
	if pageSize <= 0 {
		return Page{}, fmt.Errorf("page size must be greater than zero")
	}

	following, err := a.store.AllFollowingIDs(ctx, viewerID)
	if err != nil {
		return Page{}, fmt.Errorf("assemble feed: %w", err)
	}
	// The viewer's own messages always belong to their home timeline.
	scope := append(following, viewerID)

	return a.assemble(ctx, viewerID, scope, pageSize, before)
}

// UserTimeline returns one page of a single author's messages, newest first,
// enriched with engagement state for the viewer.
func (a *Assembler) UserTimeline(ctx context.Context, viewerID int64, authorID int64, pageSize int, before storage.FeedKey) (Page, error) {
	if a == nil || a.store == nil {
		return Page{}, fmt.Errorf("feed store is not configured")
	}
	if authorID <= 0 {
		return Page{}, fmt.Errorf("author id is required")
	}
	if pageSize <= 0 {
		return Page{}, fmt.Errorf("page size must be greater than zero")
	}

	return a.assemble(ctx, viewerID, []int64{authorID}, pageSize, before)
}

// LikedMessages returns one page of the messages userID has liked, newest
// like first. The returned lastLikeID marks where the next page resumes.
func (a *Assembler) LikedMessages(ctx context.Context, viewerID int64, userID int64, pageSize int, beforeLikeID int64) (Page, int64, error) {
	if a == nil || a.store == nil {
		return Page{}, 0, fmt.Errorf("feed store is not configured")
	}
	if userID <= 0 {
		return Page{}, 0, fmt.Errorf("user id is required")
	}
	if pageSize <= 0 {
		return Page{}, 0, fmt.Errorf("page size must be greater than zero")
	}

	liked, err := a.store.ListLikedMessages(ctx, userID, pageSize+1, beforeLikeID)
	if err != nil {
		return Page{}, 0, fmt.Errorf("list liked messages: %w", err)
	}
	page := Page{HasMore: len(liked) > pageSize}
	if page.HasMore {
		liked = liked[:pageSize]
	}

	messages := make([]storage.Message, 0, len(liked))
	for _, entry := range liked {
		messages = append(messages, entry.Message)
	}
	entries, err := a.enrich(ctx, viewerID, messages)
	if err != nil {
		return Page{}, 0, err
	}
	page.Entries = entries

	var lastLikeID int64
	if len(liked) > 0 {
		lastLikeID = liked[len(liked)-1].LikeID
	}
	return page, lastLikeID, nil
}

func (a *Assembler) assemble(ctx context.Context, viewerID int64, authorIDs []int64, pageSize int, before storage.FeedKey) (Page, error) {
	// Fetch one extra row to learn whether an older page exists.
	messages, err := a.store.ListMessagesByAuthors(ctx, authorIDs, pageSize+1, before)
	if err != nil {
		return Page{}, fmt.Errorf("list messages: %w", err)
	}
	page := Page{HasMore: len(messages) > pageSize}
	if page.HasMore {
		messages = messages[:pageSize]
	}
	entries, err := a.enrich(ctx, viewerID, messages)
	if err != nil {
		return Page{}, err
	}
	page.Entries = entries
	return page, nil
}

func (a *Assembler) enrich(ctx context.Context, viewerID int64, messages []storage.Message) ([]Entry, error) {
	entries := make([]Entry, 0, len(messages))
	if len(messages) == 0 {
		return entries, nil
	}

	messageIDs := make([]int64, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.ID)
	}
	counts, err := a.store.LikeCountsForMessages(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("like counts: %w", err)
	}
	liked := map[int64]bool{}
	if viewerID > 0 {
		liked, err = a.store.LikedMessageIDs(ctx, viewerID, messageIDs)
		if err != nil {
			return nil, fmt.Errorf("liked message ids: %w", err)
		}
	}

	for _, message := range messages {
		entries = append(entries, Entry{
			Message:       message,
			LikeCount:     counts[message.ID],
			LikedByViewer: liked[message.ID],
		})
	}
	return entries, nil
}
