// Package memory is an in-process MessageStore. It behaves like a live
// backend: ids and timestamps are assigned on write and every change fans the
// full page batch out to the page's subscribers asynchronously.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/repository"
)

var errInjected = errors.New("injected failure")

type MessageRepo struct {
	mu          sync.Mutex
	pages       map[string][]domain.Message
	subscribers map[string]map[*subscriber]struct{}
	failNext    []repository.ErrorKind
	now         func() time.Time
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		pages:       make(map[string][]domain.Message),
		subscribers: make(map[string]map[*subscriber]struct{}),
		now:         time.Now,
	}
}

// SetClock replaces the clock used for server timestamps.
func (r *MessageRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FailNextCreate makes the next Create return a StoreError of the given kind.
// Calls queue up.
func (r *MessageRepo) FailNextCreate(kind repository.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = append(r.failNext, kind)
}

// BreakSubscriptions reports an error of the given kind to every subscriber of
// pageID and drops them.
func (r *MessageRepo) BreakSubscriptions(pageID string, kind repository.ErrorKind) {
	r.mu.Lock()
	subs := r.subscribers[pageID]
	delete(r.subscribers, pageID)
	r.mu.Unlock()

	for s := range subs {
		s.fail(repository.NewStoreError(kind, "subscribe", errInjected))
	}
}

func (r *MessageRepo) Create(ctx context.Context, pageID string, input repository.NewMessage) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, repository.NewStoreError(repository.KindUnavailable, "create", err)
	}

	r.mu.Lock()
	if len(r.failNext) > 0 {
		kind := r.failNext[0]
		r.failNext = r.failNext[1:]
		r.mu.Unlock()
		return nil, repository.NewStoreError(kind, "create", errInjected)
	}

	msg := domain.Message{
		ID:         uuid.NewString(),
		PageID:     pageID,
		Text:       input.Text,
		AuthorID:   input.AuthorID,
		AuthorName: input.AuthorName,
		CreatedAt:  r.now(),
		Status:     domain.StatusSent,
	}
	r.pages[pageID] = append(r.pages[pageID], msg)
	subs := make([]*subscriber, 0, len(r.subscribers[pageID]))
	for s := range r.subscribers[pageID] {
		subs = append(subs, s)
	}
	for _, s := range subs {
		s.offer(r.latestLocked(pageID, s.limit))
	}
	r.mu.Unlock()

	return &msg, nil
}

// List returns the most recent limit messages of pageID, ascending.
func (r *MessageRepo) List(pageID string, limit int) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestLocked(pageID, limit)
}

func (r *MessageRepo) Subscribe(ctx context.Context, pageID string, limit int, onBatch repository.BatchFunc, onError repository.ErrorFunc) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, repository.NewStoreError(repository.KindUnavailable, "subscribe", err)
	}

	s := &subscriber{
		limit:   limit,
		onBatch: onBatch,
		onError: onError,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	if r.subscribers[pageID] == nil {
		r.subscribers[pageID] = make(map[*subscriber]struct{})
	}
	r.subscribers[pageID][s] = struct{}{}
	s.offer(r.latestLocked(pageID, limit))
	r.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers[pageID], s)
			r.mu.Unlock()
			s.stop()
		})
	}, nil
}

func (r *MessageRepo) latestLocked(pageID string, limit int) []domain.Message {
	all := r.pages[pageID]
	sorted := make([]domain.Message, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}

// subscriber delivers on its own goroutine. Batches are full snapshots, so a
// newer batch replaces one that has not been delivered yet.
type subscriber struct {
	limit   int
	onBatch repository.BatchFunc
	onError repository.ErrorFunc

	mu      sync.Mutex
	latest  []domain.Message
	ready   bool
	err     error
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func (s *subscriber) offer(batch []domain.Message) {
	s.mu.Lock()
	s.latest = batch
	s.ready = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch, ready, err := s.latest, s.ready, s.err
		s.latest, s.ready = nil, false
		s.mu.Unlock()

		if ready {
			s.onBatch(batch)
		}
		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			s.stop()
			return
		}
	}
}
