package postgres

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsefeed/internal/database"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/repository"
)

const unlistenTimeout = 2 * time.Second

type MessageRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewMessageRepo(pool *pgxpool.Pool, logger *slog.Logger) *MessageRepo {
	return &MessageRepo{pool: pool, logger: logger.With("component", "postgres")}
}

func (r *MessageRepo) Create(ctx context.Context, pageID string, input repository.NewMessage) (*domain.Message, error) {
	msg := &domain.Message{
		ID:         uuid.NewString(),
		PageID:     pageID,
		Text:       input.Text,
		AuthorID:   input.AuthorID,
		AuthorName: input.AuthorName,
		Status:     domain.StatusSent,
	}

	// created_at comes from the database clock, never the client's.
	query := `
		INSERT INTO messages (id, page_id, text, author_id, author_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.ID, msg.PageID, msg.Text, msg.AuthorID, msg.AuthorName,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, mapError("create", err)
	}
	return msg, nil
}

// ListLatest returns the most recent limit messages of pageID, ascending.
func (r *MessageRepo) ListLatest(ctx context.Context, pageID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id::text, page_id, text, author_id, author_name, created_at
		FROM messages
		WHERE page_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, pageID, limit)
	if err != nil {
		return nil, mapError("list", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg := domain.Message{Status: domain.StatusSent}
		if err := rows.Scan(&msg.ID, &msg.PageID, &msg.Text, &msg.AuthorID, &msg.AuthorName, &msg.CreatedAt); err != nil {
			return nil, mapError("list", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list", err)
	}

	// Query is DESC for the LIMIT; callers want chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Subscribe holds a pooled connection in LISTEN mode for the life of the
// subscription. Each notification for pageID re-runs the bounded query and
// delivers the full batch.
func (r *MessageRepo) Subscribe(ctx context.Context, pageID string, limit int, onBatch repository.BatchFunc, onError repository.ErrorFunc) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError("subscribe", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+database.NotifyChannel); err != nil {
		conn.Release()
		return nil, mapError("subscribe", err)
	}

	// The subscription outlives the call that opened it.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	go func() {
		defer r.release(conn)

		batch, err := r.ListLatest(subCtx, pageID, limit)
		if err != nil {
			r.report(subCtx, pageID, err, onError)
			return
		}
		onBatch(batch)

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				r.report(subCtx, pageID, mapError("subscribe", err), onError)
				return
			}
			if n.Payload != pageID {
				continue
			}

			batch, err := r.ListLatest(subCtx, pageID, limit)
			if err != nil {
				r.report(subCtx, pageID, err, onError)
				return
			}
			onBatch(batch)
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (r *MessageRepo) report(ctx context.Context, pageID string, err error, onError repository.ErrorFunc) {
	if ctx.Err() != nil {
		// Unsubscribed; the error is the cancellation itself.
		return
	}
	r.logger.Warn("live query stopped", "page_id", pageID, "error", err)
	if onError != nil {
		onError(err)
	}
}

// release returns a LISTEN connection to the pool, closing it instead when it
// cannot be reset.
func (r *MessageRepo) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
	defer cancel()

	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		conn.Conn().Close(ctx)
	}
	conn.Release()
}

// mapError classifies a pgx error into a repository.ErrorKind.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return repository.NewStoreError(kindOf(err), op, err)
}

func kindOf(err error) repository.ErrorKind {
	var se *repository.StoreError
	if errors.As(err, &se) {
		return se.Kind
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return repository.KindPermissionDenied
		case pgErr.Code == "28000", pgErr.Code == "28P01":
			return repository.KindUnauthenticated
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P"):
			return repository.KindUnavailable
		default:
			return repository.KindUnknown
		}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr), errors.As(err, &netErr), pgconn.Timeout(err):
		return repository.KindUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return repository.KindUnavailable
	}
	return repository.KindUnknown
}
