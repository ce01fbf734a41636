package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vedran77/pulsefeed/internal/auth"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/feed"
	"github.com/vedran77/pulsefeed/internal/repository"
	"github.com/vedran77/pulsefeed/pkg/validator"
)

var (
	ErrPendingNotFound = errors.New("pending message not found")
	ErrNotFailed       = errors.New("only failed messages can be retried or discarded")
)

const DefaultWriteTimeout = 15 * time.Second

// SendService puts user-composed messages into a feed before the backend
// confirms them and settles each one when its write completes.
type SendService struct {
	store        repository.MessageStore
	identity     auth.Identity
	writeTimeout time.Duration
	logger       *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewSendService(store repository.MessageStore, identity auth.Identity, writeTimeout time.Duration, logger *slog.Logger) *SendService {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &SendService{
		store:        store,
		identity:     identity,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "send"),
		now:          time.Now,
		newID:        domain.NewTempID,
	}
}

// PendingSend tracks one in-flight send. Message is the entry that was put
// into the feed.
type PendingSend struct {
	Message domain.Message

	done      chan struct{}
	err       error
	confirmed *domain.Message
}

// Done is closed once the write has completed either way.
func (p *PendingSend) Done() <-chan struct{} {
	return p.done
}

// Err returns the *PersistenceError of a failed write. It is nil while the
// write is in flight and after a successful one.
func (p *PendingSend) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Confirmed returns the persisted message after a successful write.
func (p *PendingSend) Confirmed() *domain.Message {
	select {
	case <-p.done:
		return p.confirmed
	default:
		return nil
	}
}

// Wait blocks until the write completes or ctx ends. Giving up on the wait
// does not cancel the write.
func (p *PendingSend) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts text to pageID as the signed-in principal.
func (s *SendService) Send(ctx context.Context, f *feed.Feed, pageID, text string) (*PendingSend, error) {
	author, ok := s.identity.Current()
	if !ok {
		return nil, ErrAuthRequired
	}
	return s.SendAs(ctx, f, pageID, author, text)
}

// SendAs validates text, appends a pending entry to f before returning and
// writes the message in the background. On success the pending entry is
// removed and the live query delivers the persisted copy; on failure the entry
// is marked failed and stays for the user to retry or discard.
func (s *SendService) SendAs(ctx context.Context, f *feed.Feed, pageID string, author domain.Principal, text string) (*PendingSend, error) {
	errs := validator.ValidateMessage(text)
	for k, v := range validator.ValidatePageID(pageID) {
		errs.Add(k, v)
	}
	if errs.HasErrors() {
		return nil, &ValidationError{Fields: errs}
	}
	if author.IsZero() {
		return nil, ErrAuthRequired
	}

	msg := domain.Message{
		ID:         s.newID(),
		PageID:     pageID,
		Text:       validator.NormalizeMessage(text),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName,
		CreatedAt:  s.now(),
		Status:     domain.StatusSending,
	}
	f.AppendPending(msg)

	p := &PendingSend{Message: msg, done: make(chan struct{})}
	go s.write(context.WithoutCancel(ctx), f, p)

	return p, nil
}

func (s *SendService) write(ctx context.Context, f *feed.Feed, p *PendingSend) {
	defer close(p.done)

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	msg := p.Message
	created, err := s.store.Create(ctx, msg.PageID, repository.NewMessage{
		Text:       msg.Text,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
	})
	if err != nil {
		p.err = &PersistenceError{MessageID: msg.ID, Kind: repository.KindOf(err), Err: err}
		f.MarkFailed(msg.ID)
		s.logger.Warn("send failed", "page_id", msg.PageID, "message_id", msg.ID, "kind", repository.KindOf(err), "error", err)
		return
	}

	p.confirmed = created
	f.RemovePending(msg.ID)
	s.logger.Debug("send confirmed", "page_id", msg.PageID, "message_id", msg.ID, "server_id", created.ID)
}

// Retry removes a failed entry and sends its text again under a new
// temporary id. It is never invoked automatically.
func (s *SendService) Retry(ctx context.Context, f *feed.Feed, failedID string) (*PendingSend, error) {
	failed, err := failedEntry(f, failedID)
	if err != nil {
		return nil, err
	}
	author, ok := s.identity.Current()
	if !ok {
		return nil, ErrAuthRequired
	}

	if !f.RemovePending(failed.ID) {
		return nil, ErrPendingNotFound
	}
	return s.SendAs(ctx, f, failed.PageID, author, failed.Text)
}

// Discard drops a failed entry without sending it again.
func (s *SendService) Discard(f *feed.Feed, failedID string) error {
	failed, err := failedEntry(f, failedID)
	if err != nil {
		return err
	}
	if !f.RemovePending(failed.ID) {
		return ErrPendingNotFound
	}
	return nil
}

func failedEntry(f *feed.Feed, id string) (domain.Message, error) {
	msg, ok := f.Pending(id)
	if !ok {
		return domain.Message{}, ErrPendingNotFound
	}
	if msg.Status != domain.StatusFailed {
		return domain.Message{}, ErrNotFailed
	}
	return msg, nil
}
