package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vedran77/pulsefeed/internal/auth"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/feed"
	"github.com/vedran77/pulsefeed/internal/repository"
	"github.com/vedran77/pulsefeed/pkg/validator"
)

const (
	DefaultFeedLimit = 50
	cacheTimeout     = 2 * time.Second
)

// Cache stores the last confirmed batch of a page on the device so a feed can
// render something before the first live delivery.
type Cache interface {
	Load(ctx context.Context, pageID string) ([]domain.Message, error)
	Save(ctx context.Context, pageID string, batch []domain.Message) error
}

// FeedService keeps page feeds in step with the backend's live query.
type FeedService struct {
	store    repository.MessageStore
	identity auth.Identity
	cache    Cache
	limit    int
	logger   *slog.Logger
}

func NewFeedService(store repository.MessageStore, identity auth.Identity, limit int, logger *slog.Logger) *FeedService {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	return &FeedService{
		store:    store,
		identity: identity,
		limit:    limit,
		logger:   logger.With("component", "feed"),
	}
}

// SetCache sets the on-device cache (optional dependency).
func (s *FeedService) SetCache(c Cache) {
	s.cache = c
}

// Subscription is the handle of an open page feed. Its lifetime governs the
// backend subscription; Close must run on every exit path of the view.
type Subscription struct {
	pageID string

	mu          sync.Mutex
	closed      bool
	err         error
	unsubscribe func()
}

func (s *Subscription) PageID() string {
	return s.pageID
}

// Err returns the last subscription failure, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the backend subscription. It is safe to call more than once.
// Once Close returns no delivery touches the feed again.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Open subscribes f to pageID. Every delivered batch replaces the feed's
// confirmed sequence, in the order batches arrive. A store failure is reported
// to onError as a *SubscriptionError; confirmed state is kept and nothing is
// retried.
func (s *FeedService) Open(ctx context.Context, pageID string, f *feed.Feed, onError func(error)) (*Subscription, error) {
	if errs := validator.ValidatePageID(pageID); errs.HasErrors() {
		return nil, &ValidationError{Fields: errs}
	}
	if _, ok := s.identity.Current(); !ok {
		return nil, ErrAuthRequired
	}

	sub := &Subscription{pageID: pageID}
	s.prime(ctx, pageID, f)

	onBatch := func(batch []domain.Message) {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			return
		}
		f.ReplaceConfirmed(batch)
		sub.mu.Unlock()

		s.logger.Debug("batch applied", "page_id", pageID, "messages", len(batch))
		s.save(pageID, batch)
	}

	onStoreError := func(err error) {
		subErr := &SubscriptionError{PageID: pageID, Kind: repository.KindOf(err), Err: err}

		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			return
		}
		sub.err = subErr
		sub.mu.Unlock()

		s.logger.Warn("subscription failed", "page_id", pageID, "kind", subErr.Kind, "error", err)
		if onError != nil {
			onError(subErr)
		}
	}

	unsubscribe, err := s.store.Subscribe(ctx, pageID, s.limit, onBatch, onStoreError)
	if err != nil {
		return nil, &SubscriptionError{PageID: pageID, Kind: repository.KindOf(err), Err: err}
	}

	sub.mu.Lock()
	sub.unsubscribe = unsubscribe
	sub.mu.Unlock()

	s.logger.Info("feed opened", "page_id", pageID, "limit", s.limit)
	return sub, nil
}

func (s *FeedService) prime(ctx context.Context, pageID string, f *feed.Feed) {
	if s.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	cached, err := s.cache.Load(cctx, pageID)
	if err != nil {
		s.logger.Warn("cache load failed", "page_id", pageID, "error", err)
		return
	}
	if len(cached) > 0 {
		f.ReplaceConfirmed(cached)
	}
}

func (s *FeedService) save(pageID string, batch []domain.Message) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()

	if err := s.cache.Save(ctx, pageID, batch); err != nil {
		s.logger.Warn("cache save failed", "page_id", pageID, "error", err)
	}
}
