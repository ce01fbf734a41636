package ws

import (
	"encoding/json"
	"sync"

	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/feed"
)

// notifyFeed returns the feed observer that renders snapshots to c. Each
// snapshot supersedes the previous one, so only the newest unsent one is
// kept.
func notifyFeed(c *Client, pageID string) feed.Observer {
	return func(snapshot []domain.Message) {
		evt, err := NewEvent(EventTypeFeed, pageID, FeedPayload{Messages: snapshot})
		if err != nil {
			c.logger.Warn("feed marshal error", "error", err)
			return
		}
		data, err := json.Marshal(evt)
		if err != nil {
			c.logger.Warn("feed marshal error", "error", err)
			return
		}
		c.feedOut.put(data)
	}
}

// snapshotSlot holds the latest encoded feed event until the write pump
// takes it.
type snapshotSlot struct {
	mu     sync.Mutex
	latest []byte
	wake   chan struct{}
}

func newSnapshotSlot() *snapshotSlot {
	return &snapshotSlot{wake: make(chan struct{}, 1)}
}

func (s *snapshotSlot) put(data []byte) {
	s.mu.Lock()
	s.latest = data
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *snapshotSlot) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.latest
	s.latest = nil
	return data
}
