package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

type opaqueWrapError struct {
	cause error
}

func (e opaqueWrapError) Error() string {
	return "wrapped database error"
}

func (e opaqueWrapError) Unwrap() error {
	return e.cause
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/timeline.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenAppliesConnectionPragmas(t *testing.T) {
	store := openTestStore(t)

	var foreignKeys int
	if err := store.sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("query foreign_keys pragma: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}

	var journalMode string
	if err := store.sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode pragma: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}

	var busyTimeout int
	if err := store.sqlDB.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("query busy_timeout pragma: %v", err)
	}
	if busyTimeout != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", busyTimeout)
	}
}

func TestCreateFollowRejectsUnknownUsers(t *testing.T) {
	store := openTestStore(t)

	err := store.CreateFollow(context.Background(), storage.FollowEdge{
		FollowedID: 999,
		FollowerID: 998,
	})
	if !errors.Is(err, storage.ErrDanglingReference) {
		t.Fatalf("follow between unknown users err = %v, want %v", err, storage.ErrDanglingReference)
	}
}

func seedUser(t *testing.T, store *Store, username string) storage.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.User{
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func seedMessage(t *testing.T, store *Store, authorID int64, text string, createdAt time.Time) storage.Message {
	t.Helper()
	message, err := store.CreateMessage(context.Background(), storage.Message{
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("create message %q: %v", text, err)
	}
	return message
}

func TestUserRoundTripAndUniqueness(t *testing.T) {
	store := openTestStore(t)

	alice := seedUser(t, store, "alice")
	if alice.ID <= 0 {
		t.Fatalf("user id = %d, want positive", alice.ID)
	}

	got, err := store.GetUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Username != "alice" || got.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}

	_, err = store.CreateUser(context.Background(), storage.User{
		Username: "alice",
		Email:    "other@example.com",
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate username err = %v, want %v", err, storage.ErrAlreadyExists)
	}

	if _, err := store.GetUser(context.Background(), 9999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing user err = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestMessageCreateValidatesAndChecksAuthor(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")

	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	message := seedMessage(t, store, alice.ID, "  hello perch  ", now)
	if message.Text != "hello perch" {
		t.Fatalf("text = %q, want trimmed", message.Text)
	}

	_, err := store.CreateMessage(context.Background(), storage.Message{AuthorID: alice.ID, Text: "   "})
	if err == nil {
		t.Fatal("expected empty text to be rejected")
	}

	long := make([]rune, 141)
	for i := range long {
		long[i] = 'x'
	}
	_, err = store.CreateMessage(context.Background(), storage.Message{AuthorID: alice.ID, Text: string(long)})
	if err == nil {
		t.Fatal("expected over-limit text to be rejected")
	}

	_, err = store.CreateMessage(context.Background(), storage.Message{AuthorID: 4242, Text: "ghost"})
	if !errors.Is(err, storage.ErrDanglingReference) {
		t.Fatalf("unknown author err = %v, want %v", err, storage.ErrDanglingReference)
	}
}

func TestListMessagesByAuthorsOrderingAndKeyset(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	carol := seedUser(t, store, "carol")

	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	m1 := seedMessage(t, store, alice.ID, "first", base)
	// Same timestamp as m3: the id tiebreak must order m3 before m2.
	m2 := seedMessage(t, store, bob.ID, "second", base.Add(time.Minute))
	m3 := seedMessage(t, store, alice.ID, "third", base.Add(time.Minute))
	seedMessage(t, store, carol.ID, "outsider", base.Add(2*time.Minute))

	scope := []int64{alice.ID, bob.ID}
	page, err := store.ListMessagesByAuthors(context.Background(), scope, 2, storage.FeedKey{})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page) != 2 || page[0].ID != m3.ID || page[1].ID != m2.ID {
		t.Fatalf("first page = %+v, want [third second]", page)
	}

	last := page[len(page)-1]
	rest, err := store.ListMessagesByAuthors(context.Background(), scope, 2, storage.FeedKey{
		CreatedAt: last.CreatedAt,
		MessageID: last.ID,
	})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != m1.ID {
		t.Fatalf("second page = %+v, want [first]", rest)
	}

	empty, err := store.ListMessagesByAuthors(context.Background(), nil, 2, storage.FeedKey{})
	if err != nil {
		t.Fatalf("list empty scope: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty scope returned %d messages", len(empty))
	}
}

func TestFollowEdgeUniquenessAndDirections(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	carol := seedUser(t, store, "carol")

	edge := storage.FollowEdge{FollowedID: bob.ID, FollowerID: alice.ID}
	if err := store.CreateFollow(context.Background(), edge); err != nil {
		t.Fatalf("create follow: %v", err)
	}
	if err := store.CreateFollow(context.Background(), edge); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate follow err = %v, want %v", err, storage.ErrAlreadyExists)
	}
	if err := store.CreateFollow(context.Background(), storage.FollowEdge{FollowedID: bob.ID, FollowerID: 4242}); !errors.Is(err, storage.ErrDanglingReference) {
		t.Fatalf("dangling follower err = %v, want %v", err, storage.ErrDanglingReference)
	}
	if err := store.CreateFollow(context.Background(), storage.FollowEdge{FollowedID: alice.ID, FollowerID: alice.ID}); err == nil {
		t.Fatal("expected self follow to be rejected")
	}

	if err := store.CreateFollow(context.Background(), storage.FollowEdge{FollowedID: bob.ID, FollowerID: carol.ID}); err != nil {
		t.Fatalf("create follow carol->bob: %v", err)
	}

	followers, err := store.ListFollowerIDs(context.Background(), bob.ID, 10, "")
	if err != nil {
		t.Fatalf("list followers: %v", err)
	}
	if len(followers.UserIDs) != 2 {
		t.Fatalf("followers = %v, want two entries", followers.UserIDs)
	}

	following, err := store.ListFollowingIDs(context.Background(), alice.ID, 10, "")
	if err != nil {
		t.Fatalf("list following: %v", err)
	}
	if len(following.UserIDs) != 1 || following.UserIDs[0] != bob.ID {
		t.Fatalf("following = %v, want [%d]", following.UserIDs, bob.ID)
	}

	// The two traversal directions must not be conflated: bob follows nobody.
	bobFollowing, err := store.ListFollowingIDs(context.Background(), bob.ID, 10, "")
	if err != nil {
		t.Fatalf("list bob following: %v", err)
	}
	if len(bobFollowing.UserIDs) != 0 {
		t.Fatalf("bob following = %v, want empty", bobFollowing.UserIDs)
	}

	has, err := store.HasFollow(context.Background(), alice.ID, bob.ID)
	if err != nil || !has {
		t.Fatalf("has follow = %v, %v, want true", has, err)
	}
	has, err = store.HasFollow(context.Background(), bob.ID, alice.ID)
	if err != nil || has {
		t.Fatalf("reverse has follow = %v, %v, want false", has, err)
	}

	if err := store.DeleteFollow(context.Background(), alice.ID, bob.ID); err != nil {
		t.Fatalf("delete follow: %v", err)
	}
	// Deleting an absent edge is a no-op.
	if err := store.DeleteFollow(context.Background(), alice.ID, bob.ID); err != nil {
		t.Fatalf("repeat delete follow: %v", err)
	}

	count, err := store.CountFollowers(context.Background(), bob.ID)
	if err != nil || count != 1 {
		t.Fatalf("count followers = %d, %v, want 1", count, err)
	}
}

func TestFollowListPagination(t *testing.T) {
	store := openTestStore(t)
	hub := seedUser(t, store, "hub")
	var followers []storage.User
	for _, name := range []string{"f1", "f2", "f3"} {
		follower := seedUser(t, store, name)
		followers = append(followers, follower)
		if err := store.CreateFollow(context.Background(), storage.FollowEdge{
			FollowedID: hub.ID,
			FollowerID: follower.ID,
		}); err != nil {
			t.Fatalf("create follow %s: %v", name, err)
		}
	}

	first, err := store.ListFollowerIDs(context.Background(), hub.ID, 2, "")
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.UserIDs) != 2 || first.NextPageToken == "" {
		t.Fatalf("first page = %+v, want 2 ids and a token", first)
	}

	second, err := store.ListFollowerIDs(context.Background(), hub.ID, 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.UserIDs) != 1 || second.NextPageToken != "" {
		t.Fatalf("second page = %+v, want final page", second)
	}
	if second.UserIDs[0] != followers[2].ID {
		t.Fatalf("second page id = %d, want %d", second.UserIDs[0], followers[2].ID)
	}
}

func TestLikeUniquenessAndLookups(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	now := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	message := seedMessage(t, store, bob.ID, "hello", now)
	other := seedMessage(t, store, bob.ID, "world", now.Add(time.Minute))

	like := storage.Like{UserID: alice.ID, MessageID: message.ID}
	if err := store.CreateLike(context.Background(), like); err != nil {
		t.Fatalf("create like: %v", err)
	}
	if err := store.CreateLike(context.Background(), like); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate like err = %v, want %v", err, storage.ErrAlreadyExists)
	}
	// A different user liking the same message succeeds independently.
	if err := store.CreateLike(context.Background(), storage.Like{UserID: bob.ID, MessageID: message.ID}); err != nil {
		t.Fatalf("create like by bob: %v", err)
	}
	if err := store.CreateLike(context.Background(), storage.Like{UserID: alice.ID, MessageID: 4242}); !errors.Is(err, storage.ErrDanglingReference) {
		t.Fatalf("dangling message err = %v, want %v", err, storage.ErrDanglingReference)
	}

	count, err := store.CountLikesForMessage(context.Background(), message.ID)
	if err != nil || count != 2 {
		t.Fatalf("count likes = %d, %v, want 2", count, err)
	}

	counts, err := store.LikeCountsForMessages(context.Background(), []int64{message.ID, other.ID})
	if err != nil {
		t.Fatalf("like counts: %v", err)
	}
	if counts[message.ID] != 2 {
		t.Fatalf("counts[%d] = %d, want 2", message.ID, counts[message.ID])
	}
	if _, ok := counts[other.ID]; ok {
		t.Fatalf("expected zero-like message to be absent from counts")
	}

	liked, err := store.LikedMessageIDs(context.Background(), alice.ID, []int64{message.ID, other.ID})
	if err != nil {
		t.Fatalf("liked message ids: %v", err)
	}
	if !liked[message.ID] || liked[other.ID] {
		t.Fatalf("liked = %v, want only %d", liked, message.ID)
	}

	if err := store.DeleteLike(context.Background(), alice.ID, message.ID); err != nil {
		t.Fatalf("delete like: %v", err)
	}
	if err := store.DeleteLike(context.Background(), alice.ID, message.ID); err != nil {
		t.Fatalf("repeat delete like: %v", err)
	}
	has, err := store.HasLike(context.Background(), alice.ID, message.ID)
	if err != nil || has {
		t.Fatalf("has like = %v, %v, want false", has, err)
	}
}

func TestListLikedMessagesNewestLikeFirst(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	first := seedMessage(t, store, bob.ID, "first", base)
	second := seedMessage(t, store, bob.ID, "second", base.Add(time.Minute))

	if err := store.CreateLike(context.Background(), storage.Like{UserID: alice.ID, MessageID: first.ID}); err != nil {
		t.Fatalf("like first: %v", err)
	}
	if err := store.CreateLike(context.Background(), storage.Like{UserID: alice.ID, MessageID: second.ID}); err != nil {
		t.Fatalf("like second: %v", err)
	}

	page, err := store.ListLikedMessages(context.Background(), alice.ID, 1, 0)
	if err != nil {
		t.Fatalf("list liked: %v", err)
	}
	if len(page) != 1 || page[0].Message.ID != second.ID {
		t.Fatalf("liked page = %+v, want most recent like", page)
	}

	rest, err := store.ListLikedMessages(context.Background(), alice.ID, 5, page[0].LikeID)
	if err != nil {
		t.Fatalf("list liked rest: %v", err)
	}
	if len(rest) != 1 || rest[0].Message.ID != first.ID {
		t.Fatalf("liked rest = %+v, want earlier like", rest)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	aliceMsg := seedMessage(t, store, alice.ID, "mine", now)
	bobMsg := seedMessage(t, store, bob.ID, "yours", now)

	if err := store.CreateFollow(context.Background(), storage.FollowEdge{FollowedID: bob.ID, FollowerID: alice.ID}); err != nil {
		t.Fatalf("alice follows bob: %v", err)
	}
	if err := store.CreateFollow(context.Background(), storage.FollowEdge{FollowedID: alice.ID, FollowerID: bob.ID}); err != nil {
		t.Fatalf("bob follows alice: %v", err)
	}
	if err := store.CreateLike(context.Background(), storage.Like{UserID: alice.ID, MessageID: bobMsg.ID}); err != nil {
		t.Fatalf("alice likes bob's message: %v", err)
	}
	if err := store.CreateLike(context.Background(), storage.Like{UserID: bob.ID, MessageID: aliceMsg.ID}); err != nil {
		t.Fatalf("bob likes alice's message: %v", err)
	}

	if err := store.DeleteUser(context.Background(), alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := store.DeleteUser(context.Background(), alice.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("repeat delete err = %v, want %v", err, storage.ErrNotFound)
	}

	if _, err := store.GetMessage(context.Background(), aliceMsg.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("alice's message survived cascade: %v", err)
	}
	count, err := store.CountLikesForMessage(context.Background(), bobMsg.ID)
	if err != nil || count != 0 {
		t.Fatalf("bob's message like count = %d, %v, want 0 after cascade", count, err)
	}
	// Likes on alice's message (made by bob) fall with the message.
	bobLikes, err := store.CountLikesByUser(context.Background(), bob.ID)
	if err != nil || bobLikes != 0 {
		t.Fatalf("bob's like count = %d, %v, want 0 after cascade", bobLikes, err)
	}
	followers, err := store.CountFollowers(context.Background(), bob.ID)
	if err != nil || followers != 0 {
		t.Fatalf("bob follower count = %d, %v, want 0 after cascade", followers, err)
	}
	following, err := store.CountFollowing(context.Background(), bob.ID)
	if err != nil || following != 0 {
		t.Fatalf("bob following count = %d, %v, want 0 after cascade", following, err)
	}
}

func TestIsUniqueViolationUnwrapsSQLiteErrorCode(t *testing.T) {
	store := openTestStore(t)
	alice := seedUser(t, store, "alice")

	_, err := store.sqlDB.ExecContext(
		context.Background(),
		`INSERT INTO users (id, username, email, created_at) VALUES (?, ?, ?, ?)`,
		alice.ID,
		"other",
		"other@example.com",
		int64(0),
	)
	if err == nil {
		t.Fatal("expected primary key violation")
	}

	wrapped := opaqueWrapError{cause: err}
	if !isUniqueViolation(wrapped) {
		t.Fatalf("isUniqueViolation(%T) = false, want true", wrapped)
	}
}

func TestConstraintClassifiersFallBackToMessageText(t *testing.T) {
	uniqueErr := errors.New("constraint failed: UNIQUE constraint failed: likes.user_id, likes.message_id")
	if !isUniqueViolation(uniqueErr) {
		t.Fatalf("isUniqueViolation(%v) = false, want true", uniqueErr)
	}
	fkErr := errors.New("constraint failed: FOREIGN KEY constraint failed")
	if !isForeignKeyViolation(fkErr) {
		t.Fatalf("isForeignKeyViolation(%v) = false, want true", fkErr)
	}
	if isUniqueViolation(errors.New("disk I/O error")) {
		t.Fatal("isUniqueViolation matched an unrelated error")
	}
}
