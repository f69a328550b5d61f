package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

type fakeFollowStore struct {
	edges map[[2]int64]storage.FollowEdge

	createErr error
	deleteErr error
}

func newFakeFollowStore() *fakeFollowStore {
	return &fakeFollowStore{edges: make(map[[2]int64]storage.FollowEdge)}
}

func (f *fakeFollowStore) key(followerID, followedID int64) [2]int64 {
	return [2]int64{followerID, followedID}
}

func (f *fakeFollowStore) CreateFollow(_ context.Context, edge storage.FollowEdge) error {
	if f.createErr != nil {
		return f.createErr
	}
	k := f.key(edge.FollowerID, edge.FollowedID)
	if _, ok := f.edges[k]; ok {
		return storage.ErrAlreadyExists
	}
	f.edges[k] = edge
	return nil
}

func (f *fakeFollowStore) DeleteFollow(_ context.Context, followerID, followedID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.edges, f.key(followerID, followedID))
	return nil
}

func (f *fakeFollowStore) HasFollow(_ context.Context, followerID, followedID int64) (bool, error) {
	_, ok := f.edges[f.key(followerID, followedID)]
	return ok, nil
}

func (f *fakeFollowStore) ListFollowerIDs(_ context.Context, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	var page storage.UserIDPage
	for k := range f.edges {
		if k[1] == userID {
			page.UserIDs = append(page.UserIDs, k[0])
		}
	}
	if len(page.UserIDs) > pageSize {
		page.UserIDs = page.UserIDs[:pageSize]
	}
	return page, nil
}

func (f *fakeFollowStore) ListFollowingIDs(_ context.Context, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	var page storage.UserIDPage
	for k := range f.edges {
		if k[0] == userID {
			page.UserIDs = append(page.UserIDs, k[1])
		}
	}
	if len(page.UserIDs) > pageSize {
		page.UserIDs = page.UserIDs[:pageSize]
	}
	return page, nil
}

func (f *fakeFollowStore) AllFollowingIDs(_ context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for k := range f.edges {
		if k[0] == userID {
			ids = append(ids, k[1])
		}
	}
	return ids, nil
}

func (f *fakeFollowStore) CountFollowers(_ context.Context, userID int64) (int64, error) {
	var count int64
	for k := range f.edges {
		if k[1] == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeFollowStore) CountFollowing(_ context.Context, userID int64) (int64, error) {
	var count int64
	for k := range f.edges {
		if k[0] == userID {
			count++
		}
	}
	return count, nil
}

func TestFollowRecordsEdgeWithClockTime(t *testing.T) {
	store := newFakeFollowStore()
	svc := NewService(store)
	fixed := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	if err := svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("follow: %v", err)
	}

	edge, ok := store.edges[store.key(1, 2)]
	if !ok {
		t.Fatal("edge was not stored")
	}
	if !edge.CreatedAt.Equal(fixed) {
		t.Fatalf("edge created at %v, want %v", edge.CreatedAt, fixed)
	}
}

func TestFollowIsIdempotent(t *testing.T) {
	store := newFakeFollowStore()
	svc := NewService(store)

	if err := svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("first follow: %v", err)
	}
	if err := svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("repeated follow should succeed, got %v", err)
	}
	if len(store.edges) != 1 {
		t.Fatalf("stored %d edges, want 1", len(store.edges))
	}
}

func TestFollowRejectsSelf(t *testing.T) {
	svc := NewService(newFakeFollowStore())

	err := svc.Follow(context.Background(), 7, 7)
	if !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("self follow err = %v, want %v", err, ErrSelfFollow)
	}
}

func TestFollowSurfacesStorageFailure(t *testing.T) {
	store := newFakeFollowStore()
	store.createErr = errors.New("disk full")
	svc := NewService(store)

	if err := svc.Follow(context.Background(), 1, 2); err == nil {
		t.Fatal("expected storage failure to surface")
	}
}

func TestUnfollowIsIdempotent(t *testing.T) {
	store := newFakeFollowStore()
	svc := NewService(store)

	if err := svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := svc.Unfollow(context.Background(), 1, 2); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if err := svc.Unfollow(context.Background(), 1, 2); err != nil {
		t.Fatalf("repeated unfollow should succeed, got %v", err)
	}

	has, err := svc.IsFollowing(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("is following: %v", err)
	}
	if has {
		t.Fatal("edge survived unfollow")
	}
}

func TestFollowEdgeIsDirected(t *testing.T) {
	store := newFakeFollowStore()
	svc := NewService(store)

	if err := svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("follow: %v", err)
	}

	has, err := svc.IsFollowing(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("is following: %v", err)
	}
	if has {
		t.Fatal("reverse direction must not be implied")
	}

	followers, following, err := svc.Counts(context.Background(), 2)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if followers != 1 || following != 0 {
		t.Fatalf("counts = (%d, %d), want (1, 0)", followers, following)
	}
}

func TestFollowersClampsPageSize(t *testing.T) {
	store := newFakeFollowStore()
	svc := NewService(store)
	for follower := int64(1); follower <= 60; follower++ {
		if err := svc.Follow(context.Background(), follower, 100); err != nil {
			t.Fatalf("follow %d: %v", follower, err)
		}
	}

	page, err := svc.Followers(context.Background(), 100, 500, "")
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	if len(page.UserIDs) != maxListEdgesPageSize {
		t.Fatalf("page size = %d, want clamp to %d", len(page.UserIDs), maxListEdgesPageSize)
	}

	page, err = svc.Followers(context.Background(), 100, 0, "")
	if err != nil {
		t.Fatalf("followers default page: %v", err)
	}
	if len(page.UserIDs) != defaultListEdgesPageSize {
		t.Fatalf("default page size = %d, want %d", len(page.UserIDs), defaultListEdgesPageSize)
	}
}
