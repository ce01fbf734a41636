// Package cache keeps the last confirmed batch of each page in a local sqlite
// file so a feed can render before its first live delivery.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vedran77/pulsefeed/internal/domain"
)

type SQLiteCache struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteCache, error) {
	if path == "" {
		return nil, fmt.Errorf("empty cache path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache: %w", err)
	}
	return c, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cached_messages (
			page_id     TEXT NOT NULL,
			message_id  TEXT NOT NULL,
			text        TEXT NOT NULL,
			author_id   TEXT NOT NULL,
			author_name TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (page_id, message_id)
		);

		CREATE INDEX IF NOT EXISTS idx_cached_messages_page
			ON cached_messages(page_id, created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Load returns the cached batch of pageID, ascending by creation time.
func (c *SQLiteCache) Load(ctx context.Context, pageID string) ([]domain.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT message_id, text, author_id, author_name, created_at
		FROM cached_messages
		WHERE page_id = ?
		ORDER BY created_at ASC, message_id ASC`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg := domain.Message{PageID: pageID, Status: domain.StatusSent}
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.AuthorID, &msg.AuthorName, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Save replaces the cached batch of pageID.
func (c *SQLiteCache) Save(ctx context.Context, pageID string, batch []domain.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_messages WHERE page_id = ?`, pageID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cached_messages (page_id, message_id, text, author_id, author_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, msg := range batch {
		if msg.IsPending() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, pageID, msg.ID, msg.Text, msg.AuthorID, msg.AuthorName, msg.CreatedAt.UnixNano()); err != nil {
			return err
		}
	}

	return tx.Commit()
}
