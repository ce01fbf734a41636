package repository

import (
	"context"

	"github.com/vedran77/pulsefeed/internal/domain"
)

// NewMessage is the payload written for a user-composed message. The backend
// assigns the id and the creation timestamp.
type NewMessage struct {
	Text       string `json:"text"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
}

// BatchFunc receives the full current result of a page query, ascending by
// creation time.
type BatchFunc func(batch []domain.Message)

// ErrorFunc receives a failure of a live query. The query does not deliver
// further batches after reporting an error.
type ErrorFunc func(err error)

type MessageStore interface {
	Create(ctx context.Context, pageID string, msg NewMessage) (*domain.Message, error)
	// Subscribe delivers the most recent limit messages of pageID on every
	// change. The returned function stops delivery and is safe to call more
	// than once.
	Subscribe(ctx context.Context, pageID string, limit int, onBatch BatchFunc, onError ErrorFunc) (func(), error)
}
