package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/vedran77/pulsefeed/internal/auth"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/repository"
	"github.com/vedran77/pulsefeed/internal/service"
)

// Options configures the services each connection gets.
type Options struct {
	Store        repository.MessageStore
	Cache        service.Cache
	FeedLimit    int
	WriteTimeout time.Duration
}

// Hub tracks active clients and releases each one exactly once, on
// disconnect or at shutdown.
type Hub struct {
	opts   Options
	logger *slog.Logger

	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	count      chan chan int
}

func NewHub(opts Options, logger *slog.Logger) *Hub {
	return &Hub{
		opts:       opts,
		logger:     logger.With("component", "ws"),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		count:      make(chan chan int),
	}
}

// Run starts the Hub's main event loop and returns when ctx ends, after
// releasing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("user connected", "user_id", client.principal.ID, "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.release()
				h.logger.Info("user disconnected", "user_id", client.principal.ID, "total", len(h.clients))
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			for client := range h.clients {
				client.release()
			}
			h.logger.Info("hub stopped", "released", len(h.clients))
			h.clients = nil
			return
		}
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		c.release()
		return false
	}
}

// Unregister removes and releases a client.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
		c.release()
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

// services builds the feed and send services for one signed-in principal.
func (h *Hub) services(p domain.Principal) (*service.FeedService, *service.SendService) {
	session := auth.NewSession()
	session.SignIn(p)

	feeds := service.NewFeedService(h.opts.Store, session, h.opts.FeedLimit, h.logger)
	if h.opts.Cache != nil {
		feeds.SetCache(h.opts.Cache)
	}
	sends := service.NewSendService(h.opts.Store, session, h.opts.WriteTimeout, h.logger)
	return feeds, sends
}
