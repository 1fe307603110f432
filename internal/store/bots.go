package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultBotName is the bot every chat falls back to. It cannot be
// deleted, only overwritten.
const DefaultBotName = "default"

// BotConfig is one named model endpoint a user can run chats against.
type BotConfig struct {
	Name          string `json:"name"`
	BaseURL       string `json:"base_url,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	APIType       string `json:"api_type,omitempty"`
	Model         string `json:"model,omitempty"`
	MaxTokens     int    `json:"max_tokens,omitempty"`
	CustomAPIPath string `json:"custom_api_path,omitempty"`
}

// ListBots returns the user's bots ordered by name.
func (s *Store) ListBots(ctx context.Context, userID int64) ([]BotConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, base_url, api_key, api_type, model, max_tokens, custom_api_path
		 FROM bot_config WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	defer rows.Close()

	var bots []BotConfig
	for rows.Next() {
		var b BotConfig
		if err := rows.Scan(&b.Name, &b.BaseURL, &b.APIKey, &b.APIType, &b.Model, &b.MaxTokens, &b.CustomAPIPath); err != nil {
			return nil, fmt.Errorf("failed to scan bot: %w", err)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// GetBot returns one bot by name, or nil when the user has none by
// that name.
func (s *Store) GetBot(ctx context.Context, userID int64, name string) (*BotConfig, error) {
	var b BotConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT name, base_url, api_key, api_type, model, max_tokens, custom_api_path
		 FROM bot_config WHERE user_id = ? AND name = ?`, userID, name).
		Scan(&b.Name, &b.BaseURL, &b.APIKey, &b.APIType, &b.Model, &b.MaxTokens, &b.CustomAPIPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return &b, nil
}

// SaveBot inserts or overwrites a bot config.
func (s *Store) SaveBot(ctx context.Context, userID int64, b BotConfig) error {
	if b.Name == "" {
		return errors.New("bot name is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_config (user_id, name, base_url, api_key, api_type, model, max_tokens, custom_api_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, name) DO UPDATE SET
			base_url = excluded.base_url,
			api_key = excluded.api_key,
			api_type = excluded.api_type,
			model = excluded.model,
			max_tokens = excluded.max_tokens,
			custom_api_path = excluded.custom_api_path`,
		userID, b.Name, b.BaseURL, b.APIKey, b.APIType, b.Model, b.MaxTokens, b.CustomAPIPath)
	if err != nil {
		return fmt.Errorf("failed to save bot: %w", err)
	}
	return nil
}

// DeleteBot removes a named bot. The default bot is protected.
func (s *Store) DeleteBot(ctx context.Context, userID int64, name string) error {
	if name == DefaultBotName {
		return errors.New("the default bot cannot be deleted")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_config WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bot %q not found", name)
	}
	return nil
}
