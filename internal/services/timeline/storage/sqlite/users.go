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

// CreateUser inserts one account record and returns it with its assigned ID.
func (s *Store) CreateUser(ctx context.Context, user storage.User) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.User{}, fmt.Errorf("storage is not configured")
	}
	username := strings.TrimSpace(user.Username)
	email := strings.TrimSpace(user.Email)
	if username == "" {
		return storage.User{}, fmt.Errorf("username is required")
	}
	if email == "" {
		return storage.User{}, fmt.Errorf("email is required")
	}
	createdAt := user.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (username, email, created_at) VALUES (?, ?, ?)`,
		username,
		email,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.User{}, storage.ErrAlreadyExists
		}
		return storage.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.User{}, fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	user.Username = username
	user.Email = email
	user.CreatedAt = createdAt
	return user, nil
}

// GetUser returns one account record by ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.User{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = ?`,
		userID,
	)
	var user storage.User
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, storage.ErrNotFound
		}
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}

// DeleteUser removes one user and cascades to the user's messages, likes,
// and follow edges on either side within a single transaction.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FK cascades remove the user's messages, likes, and follow edges;
	// likes on the user's messages fall to the nested messages(id) cascade.
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
