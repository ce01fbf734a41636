package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/repository"
)

// createCall is a write parked in fakeStore until the test answers it.
type createCall struct {
	pageID string
	msg    repository.NewMessage
	reply  chan error
}

// fakeStore hands every Create to the test and lets it drive subscription
// callbacks by hand.
type fakeStore struct {
	creates chan createCall

	mu           sync.Mutex
	createCount  int
	subscribeErr error
	onBatch      repository.BatchFunc
	onError      repository.ErrorFunc
	unsubscribed int
}

func newFakeStore() *fakeStore {
	return &fakeStore{creates: make(chan createCall, 16)}
}

func (s *fakeStore) Create(ctx context.Context, pageID string, msg repository.NewMessage) (*domain.Message, error) {
	s.mu.Lock()
	s.createCount++
	s.mu.Unlock()

	call := createCall{pageID: pageID, msg: msg, reply: make(chan error, 1)}
	s.creates <- call
	select {
	case err := <-call.reply:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, repository.NewStoreError(repository.KindUnavailable, "create", ctx.Err())
	}
	return &domain.Message{
		ID:         uuid.NewString(),
		PageID:     pageID,
		Text:       msg.Text,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		CreatedAt:  time.Now(),
		Status:     domain.StatusSent,
	}, nil
}

func (s *fakeStore) Subscribe(ctx context.Context, pageID string, limit int, onBatch repository.BatchFunc, onError repository.ErrorFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.onBatch = onBatch
	s.onError = onError
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribed++
	}, nil
}

func (s *fakeStore) createCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCount
}

func (s *fakeStore) deliver(batch []domain.Message) {
	s.mu.Lock()
	fn := s.onBatch
	s.mu.Unlock()
	fn(batch)
}

func (s *fakeStore) fail(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	fn(err)
}

func (s *fakeStore) nextCreate(t interface {
	Helper()
	Fatalf(string, ...any)
}) createCall {
	t.Helper()
	select {
	case c := <-s.creates:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for create")
		return createCall{}
	}
}

// staticIdentity is an auth.Identity fixed for a test.
type staticIdentity struct {
	p domain.Principal
}

func (i staticIdentity) Current() (domain.Principal, bool) {
	return i.p, !i.p.IsZero()
}

var (
	ana        = domain.Principal{ID: "u-ana", DisplayName: "Ana"}
	signedIn   = staticIdentity{p: ana}
	signedOut  = staticIdentity{}
	testLogger = slog.New(slog.DiscardHandler)
)
