// Package store persists users, bot configs, VM configs and chats in a
// single SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the database handle. The pool is capped at one
// connection: SQLite allows a single writer and the modernc driver
// returns SQLITE_BUSY instead of queueing without it.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	username TEXT,
	deleted INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_config (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES user(id),
	name TEXT NOT NULL,
	base_url TEXT NOT NULL DEFAULT '',
	api_key TEXT NOT NULL DEFAULT '',
	api_type TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	max_tokens INTEGER NOT NULL DEFAULT 0,
	custom_api_path TEXT NOT NULL DEFAULT '',
	UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS vm_config (
	user_id INTEGER PRIMARY KEY REFERENCES user(id),
	api_token TEXT NOT NULL DEFAULT '',
	vm_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chat (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES user(id),
	chat_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	origin_chat_id TEXT NOT NULL DEFAULT '',
	json_content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(user_id, chat_id)
);

CREATE INDEX IF NOT EXISTS idx_chat_user_updated ON chat(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_chat_origin ON chat(origin_chat_id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
