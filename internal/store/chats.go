package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/luohy15/y-agent/internal/chat"
)

// ChatSummary is the listing projection: indexed columns only, never
// the message blob.
type ChatSummary struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateChat inserts a new chat owned by userID. System messages never
// reach storage. Fills in id and timestamps when absent.
func (s *Store) CreateChat(ctx context.Context, userID int64, c *chat.Chat) error {
	if c.ID == "" {
		c.ID = chat.NewChatID()
	}
	now := chat.Timestamp()
	if c.CreateTime == "" {
		c.CreateTime = now
	}
	c.UpdateTime = now
	c.Messages = chat.FilterSystem(c.Messages)

	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode chat: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat (user_id, chat_id, title, origin_chat_id, json_content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, c.ID, c.Title(), c.OriginChatID, string(blob), c.CreateTime, c.UpdateTime)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// GetChat loads one chat scoped to its owner. Returns nil when the
// user has no chat with that id.
func (s *Store) GetChat(ctx context.Context, userID int64, chatID string) (*chat.Chat, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT json_content FROM chat WHERE user_id = ? AND chat_id = ?`,
		userID, chatID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return decodeChat(blob)
}

// GetChatAny loads a chat without user scoping and reports the owner.
// Only the worker uses this: job payloads carry the chat id alone.
func (s *Store) GetChatAny(ctx context.Context, chatID string) (*chat.Chat, int64, error) {
	var blob string
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT json_content, user_id FROM chat WHERE chat_id = ? ORDER BY id LIMIT 1`,
		chatID).Scan(&blob, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get chat: %w", err)
	}
	c, err := decodeChat(blob)
	if err != nil {
		return nil, 0, err
	}
	return c, userID, nil
}

// SaveChat writes the full chat back, refreshing title and updated_at.
func (s *Store) SaveChat(ctx context.Context, userID int64, c *chat.Chat) error {
	c.UpdateTime = chat.Timestamp()
	c.Messages = chat.FilterSystem(c.Messages)

	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode chat: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat SET json_content = ?, title = ?, updated_at = ? WHERE user_id = ? AND chat_id = ?`,
		string(blob), c.Title(), c.UpdateTime, userID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s not found", c.ID)
	}
	return nil
}

// AppendMessage appends one message to a chat in a single read-modify-
// write transaction. This is the incremental-persistence fast path the
// loop's message callback uses.
func (s *Store) AppendMessage(ctx context.Context, userID int64, chatID string, msg chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var blob string
	err = tx.QueryRowContext(ctx,
		`SELECT json_content FROM chat WHERE user_id = ? AND chat_id = ?`,
		userID, chatID).Scan(&blob)
	if err != nil {
		return fmt.Errorf("failed to load chat for append: %w", err)
	}
	c, err := decodeChat(blob)
	if err != nil {
		return err
	}
	c.Messages = append(c.Messages, msg)
	c.UpdateTime = chat.Timestamp()

	updated, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chat SET json_content = ?, title = ?, updated_at = ? WHERE user_id = ? AND chat_id = ?`,
		string(updated), c.Title(), c.UpdateTime, userID, chatID); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return tx.Commit()
}

// ListChats returns summaries for the user's chats, newest first. Each
// whitespace-separated query term must match the title.
func (s *Store) ListChats(ctx context.Context, userID int64, query string, limit int) ([]ChatSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	sqlStr := `SELECT chat_id, title, created_at, updated_at FROM chat WHERE user_id = ?`
	args := []any{userID}
	for _, term := range strings.Fields(query) {
		sqlStr += ` AND title LIKE ?`
		args = append(args, "%"+term+"%")
	}
	sqlStr += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var cs ChatSummary
		if err := rows.Scan(&cs.ChatID, &cs.Title, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// DeleteChat removes a chat owned by the user.
func (s *Store) DeleteChat(ctx context.Context, userID int64, chatID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s not found", chatID)
	}
	return nil
}

func decodeChat(blob string) (*chat.Chat, error) {
	var c chat.Chat
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("failed to decode chat: %w", err)
	}
	chat.SortMessages(c.Messages)
	c.Messages = chat.FilterSystem(c.Messages)
	return &c, nil
}
