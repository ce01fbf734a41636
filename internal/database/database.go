package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsefeed/internal/config"
)

// NotifyChannel is the LISTEN/NOTIFY channel the messages trigger publishes
// page ids on.
const NotifyChannel = "page_messages"

func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())

	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          UUID PRIMARY KEY,
	page_id     TEXT NOT NULL,
	text        TEXT NOT NULL CHECK (char_length(text) BETWEEN 1 AND 500),
	author_id   TEXT NOT NULL,
	author_name TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_page_created
	ON messages (page_id, created_at DESC);

CREATE OR REPLACE FUNCTION notify_page_message() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + NotifyChannel + `', NEW.page_id);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_notify ON messages;
CREATE TRIGGER messages_notify
	AFTER INSERT ON messages
	FOR EACH ROW EXECUTE FUNCTION notify_page_message();
`

// Migrate creates the messages table and the trigger that feeds live
// subscriptions. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
