package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

const maxMessageTextLength = 140

// CreateMessage inserts one message and returns it with its assigned ID.
func (s *Store) CreateMessage(ctx context.Context, message storage.Message) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Message{}, fmt.Errorf("storage is not configured")
	}
	if message.AuthorID <= 0 {
		return storage.Message{}, fmt.Errorf("author id is required")
	}
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return storage.Message{}, fmt.Errorf("text is required")
	}
	if utf8.RuneCountInString(text) > maxMessageTextLength {
		return storage.Message{}, fmt.Errorf("text must be at most %d characters", maxMessageTextLength)
	}
	createdAt := message.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO messages (author_id, text, created_at) VALUES (?, ?, ?)`,
		message.AuthorID,
		text,
		toMillis(createdAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.Message{}, storage.ErrDanglingReference
		}
		return storage.Message{}, fmt.Errorf("create message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.Message{}, fmt.Errorf("create message: %w", err)
	}
	message.ID = id
	message.Text = text
	message.CreatedAt = createdAt
	return message, nil
}

// GetMessage returns one message by ID.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Message{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, author_id, text, created_at FROM messages WHERE id = ?`,
		messageID,
	)
	var message storage.Message
	var createdAt int64
	if err := row.Scan(&message.ID, &message.AuthorID, &message.Text, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Message{}, storage.ErrNotFound
		}
		return storage.Message{}, fmt.Errorf("get message: %w", err)
	}
	message.CreatedAt = fromMillis(createdAt)
	return message, nil
}

// DeleteMessage removes one message; its likes fall to the FK cascade.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListMessagesByAuthors returns up to limit messages authored by any of
// authorIDs, ordered by (created_at DESC, id DESC), starting strictly after
// the position marked by before.
func (s *Store) ListMessagesByAuthors(ctx context.Context, authorIDs []int64, limit int, before storage.FeedKey) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if len(authorIDs) == 0 {
		return []storage.Message{}, nil
	}

	placeholders, args := idPlaceholders(authorIDs)
	query := `SELECT id, author_id, text, created_at
	   FROM messages
	  WHERE author_id IN (` + placeholders + `)`
	if !before.IsZero() {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		beforeMillis := toMillis(before.CreatedAt)
		args = append(args, beforeMillis, beforeMillis, before.MessageID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages by authors: %w", err)
	}
	defer rows.Close()

	messages := make([]storage.Message, 0, limit)
	for rows.Next() {
		var message storage.Message
		var createdAt int64
		if err := rows.Scan(&message.ID, &message.AuthorID, &message.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("list messages by authors: %w", err)
		}
		message.CreatedAt = fromMillis(createdAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages by authors: %w", err)
	}
	return messages, nil
}

// CountMessagesByAuthor returns the number of messages the author has posted.
func (s *Store) CountMessagesByAuthor(ctx context.Context, authorID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE author_id = ?`, authorID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages by author: %w", err)
	}
	return count, nil
}
