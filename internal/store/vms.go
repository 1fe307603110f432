package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// VMConfig points tool execution at a user's remote sprites VM.
type VMConfig struct {
	APIToken string `json:"api_token"`
	VMName   string `json:"vm_name"`
}

// GetVM returns the user's VM config, or nil when none is set.
func (s *Store) GetVM(ctx context.Context, userID int64) (*VMConfig, error) {
	var v VMConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT api_token, vm_name FROM vm_config WHERE user_id = ?`, userID).
		Scan(&v.APIToken, &v.VMName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vm config: %w", err)
	}
	return &v, nil
}

// SaveVM inserts or overwrites the user's VM config.
func (s *Store) SaveVM(ctx context.Context, userID int64, v VMConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vm_config (user_id, api_token, vm_name) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			api_token = excluded.api_token,
			vm_name = excluded.vm_name`,
		userID, v.APIToken, v.VMName)
	if err != nil {
		return fmt.Errorf("failed to save vm config: %w", err)
	}
	return nil
}
