package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/luohy15/y-agent/internal/chat"
)

// DefaultUserEmail identifies the platform user that owns shared chats
// and the platform-wide default bot.
const DefaultUserEmail = "default@local"

// User is an account row. ID is the internal key every other table
// references.
type User struct {
	ID       int64
	Email    string
	Username string
}

// GetOrCreateUser looks a user up by email, creating the row on first
// contact. Soft-deleted users stay invisible.
func (s *Store) GetOrCreateUser(ctx context.Context, email, username string) (User, error) {
	u, err := s.getUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user (email, username, created_at) VALUES (?, ?, ?)`,
		email, username, chat.Timestamp())
	if err != nil {
		// Concurrent first request for the same email loses the race
		// on the unique index; read the winner's row.
		if u, lookupErr := s.getUserByEmail(ctx, email); lookupErr == nil {
			return u, nil
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("failed to read user id: %w", err)
	}
	return User{ID: id, Email: email, Username: username}, nil
}

func (s *Store) getUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, username FROM user WHERE email = ? AND deleted = 0`,
		email).Scan(&u.ID, &u.Email, &u.Username)
	return u, err
}

// DefaultUser returns the platform user, creating it if needed.
func (s *Store) DefaultUser(ctx context.Context) (User, error) {
	return s.GetOrCreateUser(ctx, DefaultUserEmail, "default")
}

// DeleteUser soft-deletes an account; its rows stay for shared chats.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE user SET deleted = 1 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
