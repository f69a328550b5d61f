package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

// CreateLike inserts one (user, message) like.
func (s *Store) CreateLike(ctx context.Context, like storage.Like) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if like.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if like.MessageID <= 0 {
		return fmt.Errorf("message id is required")
	}
	createdAt := like.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO likes (user_id, message_id, created_at) VALUES (?, ?, ?)`,
		like.UserID,
		like.MessageID,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return storage.ErrDanglingReference
		}
		return fmt.Errorf("create like: %w", err)
	}
	return nil
}

// DeleteLike removes one like if present.
func (s *Store) DeleteLike(ctx context.Context, userID int64, messageID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM likes WHERE user_id = ? AND message_id = ?`,
		userID,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

// HasLike reports whether userID has liked messageID.
func (s *Store) HasLike(ctx context.Context, userID int64, messageID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var found int
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM likes WHERE user_id = ? AND message_id = ?`,
		userID,
		messageID,
	)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("has like: %w", err)
	}
	return true, nil
}

// CountLikesForMessage returns the number of likes on one message.
func (s *Store) CountLikesForMessage(ctx context.Context, messageID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE message_id = ?`, messageID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count likes for message: %w", err)
	}
	return count, nil
}

// CountLikesByUser returns the number of likes one user has made.
func (s *Store) CountLikesByUser(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE user_id = ?`, userID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count likes by user: %w", err)
	}
	return count, nil
}

// LikeCountsForMessages returns like counts keyed by message ID. Messages
// with zero likes are absent from the map.
func (s *Store) LikeCountsForMessages(ctx context.Context, messageIDs []int64) (map[int64]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	counts := make(map[int64]int64, len(messageIDs))
	if len(messageIDs) == 0 {
		return counts, nil
	}

	placeholders, args := idPlaceholders(messageIDs)
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT message_id, COUNT(*) FROM likes WHERE message_id IN (`+placeholders+`) GROUP BY message_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("like counts for messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		var count int64
		if err := rows.Scan(&messageID, &count); err != nil {
			return nil, fmt.Errorf("like counts for messages: %w", err)
		}
		counts[messageID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("like counts for messages: %w", err)
	}
	return counts, nil
}

// LikedMessageIDs reports which of messageIDs the user has liked.
func (s *Store) LikedMessageIDs(ctx context.Context, userID int64, messageIDs []int64) (map[int64]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	liked := make(map[int64]bool, len(messageIDs))
	if len(messageIDs) == 0 {
		return liked, nil
	}

	placeholders, args := idPlaceholders(messageIDs)
	args = append([]any{userID}, args...)
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT message_id FROM likes WHERE user_id = ? AND message_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("liked message ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		if err := rows.Scan(&messageID); err != nil {
			return nil, fmt.Errorf("liked message ids: %w", err)
		}
		liked[messageID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("liked message ids: %w", err)
	}
	return liked, nil
}

// ListLikedMessages returns up to limit messages the user has liked, newest
// like first, starting strictly after beforeLikeID (0 = newest).
func (s *Store) ListLikedMessages(ctx context.Context, userID int64, limit int, beforeLikeID int64) ([]storage.LikedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	query := `SELECT l.id, m.id, m.author_id, m.text, m.created_at
	   FROM likes l
	   JOIN messages m ON m.id = l.message_id
	  WHERE l.user_id = ?`
	args := []any{userID}
	if beforeLikeID > 0 {
		query += ` AND l.id < ?`
		args = append(args, beforeLikeID)
	}
	query += ` ORDER BY l.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list liked messages: %w", err)
	}
	defer rows.Close()

	liked := make([]storage.LikedMessage, 0, limit)
	for rows.Next() {
		var entry storage.LikedMessage
		var createdAt int64
		if err := rows.Scan(&entry.LikeID, &entry.Message.ID, &entry.Message.AuthorID, &entry.Message.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("list liked messages: %w", err)
		}
		entry.Message.CreatedAt = fromMillis(createdAt)
		liked = append(liked, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list liked messages: %w", err)
	}
	return liked, nil
}

func idPlaceholders(ids []int64) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return placeholders, args
}
