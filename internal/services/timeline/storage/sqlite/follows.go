package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

// CreateFollow inserts one directed follow edge.
func (s *Store) CreateFollow(ctx context.Context, edge storage.FollowEdge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if edge.FollowerID <= 0 {
		return fmt.Errorf("follower id is required")
	}
	if edge.FollowedID <= 0 {
		return fmt.Errorf("followed id is required")
	}
	if edge.FollowerID == edge.FollowedID {
		return fmt.Errorf("followed id must differ from follower id")
	}
	createdAt := edge.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO follows (followed_id, follower_id, created_at) VALUES (?, ?, ?)`,
		edge.FollowedID,
		edge.FollowerID,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return storage.ErrDanglingReference
		}
		return fmt.Errorf("create follow: %w", err)
	}
	return nil
}

// DeleteFollow removes one follow edge if present.
func (s *Store) DeleteFollow(ctx context.Context, followerID int64, followedID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM follows WHERE followed_id = ? AND follower_id = ?`,
		followedID,
		followerID,
	)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// HasFollow reports whether followerID follows followedID.
func (s *Store) HasFollow(ctx context.Context, followerID int64, followedID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var found int
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM follows WHERE followed_id = ? AND follower_id = ?`,
		followedID,
		followerID,
	)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("has follow: %w", err)
	}
	return true, nil
}

// ListFollowerIDs returns one page of users that follow userID.
// Selects by followed_id; the mirror query ListFollowingIDs selects by
// follower_id.
func (s *Store) ListFollowerIDs(ctx context.Context, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	return s.listEdgeUserIDs(ctx, "follower_id", "followed_id", userID, pageSize, pageToken)
}

// ListFollowingIDs returns one page of users that userID follows.
func (s *Store) ListFollowingIDs(ctx context.Context, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	return s.listEdgeUserIDs(ctx, "followed_id", "follower_id", userID, pageSize, pageToken)
}

// listEdgeUserIDs pages the selectColumn side of the follow relation for the
// rows whose whereColumn matches userID, ascending by the selected ID.
func (s *Store) listEdgeUserIDs(ctx context.Context, selectColumn string, whereColumn string, userID int64, pageSize int, pageToken string) (storage.UserIDPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserIDPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.UserIDPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.UserIDPage{}, fmt.Errorf("page size must be greater than zero")
	}

	afterID := int64(0)
	pageToken = strings.TrimSpace(pageToken)
	if pageToken != "" {
		parsed, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil {
			return storage.UserIDPage{}, fmt.Errorf("invalid page token: %w", err)
		}
		afterID = parsed
	}

	query := `SELECT ` + selectColumn + `
	   FROM follows
	  WHERE ` + whereColumn + ` = ? AND ` + selectColumn + ` > ?
	  ORDER BY ` + selectColumn + ` ASC
	  LIMIT ?`
	rows, err := s.sqlDB.QueryContext(ctx, query, userID, afterID, pageSize+1)
	if err != nil {
		return storage.UserIDPage{}, fmt.Errorf("list follow edges: %w", err)
	}
	defer rows.Close()

	page := storage.UserIDPage{
		UserIDs: make([]int64, 0, pageSize),
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return storage.UserIDPage{}, fmt.Errorf("list follow edges: %w", err)
		}
		page.UserIDs = append(page.UserIDs, id)
	}
	if err := rows.Err(); err != nil {
		return storage.UserIDPage{}, fmt.Errorf("list follow edges: %w", err)
	}
	if len(page.UserIDs) > pageSize {
		page.NextPageToken = strconv.FormatInt(page.UserIDs[pageSize-1], 10)
		page.UserIDs = page.UserIDs[:pageSize]
	}
	return page, nil
}

// AllFollowingIDs returns every user that userID follows, for feed scoping.
func (s *Store) AllFollowingIDs(ctx context.Context, userID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT followed_id FROM follows WHERE follower_id = ? ORDER BY followed_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("all following ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("all following ids: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all following ids: %w", err)
	}
	return ids, nil
}

// CountFollowers returns the number of users following userID.
func (s *Store) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	return s.countEdges(ctx, "followed_id", userID)
}

// CountFollowing returns the number of users userID follows.
func (s *Store) CountFollowing(ctx context.Context, userID int64) (int64, error) {
	return s.countEdges(ctx, "follower_id", userID)
}

func (s *Store) countEdges(ctx context.Context, whereColumn string, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM follows WHERE `+whereColumn+` = ?`, userID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count follow edges: %w", err)
	}
	return count, nil
}
