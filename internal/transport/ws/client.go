package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/feed"
	"github.com/vedran77/pulsefeed/internal/service"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 8192
	sendBufSize    = 256
)

// Client is one WebSocket connection and the page view it renders. It owns
// at most one open page at a time: its feed, its subscription and the sends
// made into it.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	principal domain.Principal
	feeds     *service.FeedService
	sends     *service.SendService
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	page     *pageView
	released bool

	send      chan []byte
	feedOut   *snapshotSlot
	done      chan struct{}
	closeOnce sync.Once
}

type pageView struct {
	id        string
	feed      *feed.Feed
	sub       *service.Subscription
	unobserve func()
}

func NewClient(hub *Hub, conn *websocket.Conn, principal domain.Principal) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	feeds, sends := hub.services(principal)
	return &Client{
		hub:       hub,
		conn:      conn,
		principal: principal,
		feeds:     feeds,
		sends:     sends,
		logger:    hub.logger.With("user_id", principal.ID),
		ctx:       ctx,
		cancel:    cancel,
		send:      make(chan []byte, sendBufSize),
		feedOut:   newSnapshotSlot(),
		done:      make(chan struct{}),
	}
}

// ReadPump reads events from the WebSocket and handles them in order.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(c.ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				c.logger.Info("client disconnected")
			} else {
				c.logger.Warn("read error", "error", err)
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes queued events and feed snapshots to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Warn("write error", "error", err)
				return
			}

		case <-c.feedOut.wake:
			if message := c.feedOut.take(); message != nil {
				if err := c.write(message); err != nil {
					c.logger.Warn("write error", "error", err)
					return
				}
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Warn("ping error", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, message)
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypePageOpen:
		var p PagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid page.open payload")
			return
		}
		c.openPage(p.PageID)

	case EventTypePageClose:
		c.closePage()

	case EventTypeMessageSend:
		var p MessageSendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid message.send payload")
			return
		}
		c.sendMessage(p)

	case EventTypeMessageRetry, EventTypeMessageDiscard:
		var p MessageRefPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid "+event.Type+" payload")
			return
		}
		if event.Type == EventTypeMessageRetry {
			c.retryMessage(p.ID)
		} else {
			c.discardMessage(p.ID)
		}

	case EventTypePing:
		c.sendEvent(&Event{Type: EventTypePong})

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) openPage(pageID string) {
	c.closePage()

	f := feed.New()
	unobserve := f.Subscribe(notifyFeed(c, pageID))

	sub, err := c.feeds.Open(c.ctx, pageID, f, func(err error) {
		c.sendServiceError(EventTypeSubscriptionError, pageID, err)
	})
	if err != nil {
		unobserve()
		c.sendServiceError(EventTypeSubscriptionError, pageID, err)
		return
	}

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		sub.Close()
		unobserve()
		return
	}
	c.page = &pageView{id: pageID, feed: f, sub: sub, unobserve: unobserve}
	c.mu.Unlock()
	c.logger.Info("page opened", "page_id", pageID)
}

// closePage releases the open page, if any. Sends still in flight complete
// and their results are dropped.
func (c *Client) closePage() {
	c.mu.Lock()
	p := c.page
	c.page = nil
	c.mu.Unlock()

	if p == nil {
		return
	}
	p.sub.Close()
	p.unobserve()
	c.logger.Info("page closed", "page_id", p.id)
}

func (c *Client) currentPage() *pageView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Client) sendMessage(p MessageSendPayload) {
	page := c.currentPage()
	if page == nil {
		c.sendError("NO_PAGE", "open a page before sending")
		return
	}

	pending, err := c.sends.Send(c.ctx, page.feed, page.id, p.Text)
	if err != nil {
		c.sendServiceError(EventTypeError, page.id, err)
		return
	}
	c.ackPending(page, pending, p.Nonce)
}

func (c *Client) retryMessage(id string) {
	page := c.currentPage()
	if page == nil {
		c.sendError("NO_PAGE", "open a page before retrying")
		return
	}

	pending, err := c.sends.Retry(c.ctx, page.feed, id)
	if err != nil {
		c.sendServiceError(EventTypeError, page.id, err)
		return
	}
	c.ackPending(page, pending, "")
}

func (c *Client) discardMessage(id string) {
	page := c.currentPage()
	if page == nil {
		c.sendError("NO_PAGE", "open a page before discarding")
		return
	}
	if err := c.sends.Discard(page.feed, id); err != nil {
		c.sendServiceError(EventTypeError, page.id, err)
	}
}

func (c *Client) ackPending(page *pageView, pending *service.PendingSend, nonce string) {
	evt, err := NewEvent(EventTypeMessagePending, page.id, MessagePendingPayload{ID: pending.Message.ID, Nonce: nonce})
	if err == nil {
		c.sendEvent(evt)
	}
	go c.watch(page, pending)
}

// watch reports a failed write to the client. The feed already shows the
// entry as failed; the event carries the reason. Results for a page that was
// closed or replaced in the meantime are dropped.
func (c *Client) watch(page *pageView, pending *service.PendingSend) {
	select {
	case <-pending.Done():
	case <-c.done:
		return
	}
	if c.currentPage() != page {
		return
	}
	pageID := page.id

	err := pending.Err()
	if err == nil {
		return
	}
	payload := errorPayload(err)
	failed := MessageFailedPayload{ID: pending.Message.ID, Code: payload.Code, Message: payload.Message}
	var perr *service.PersistenceError
	if errors.As(err, &perr) {
		failed.Kind = string(perr.Kind)
	}
	evt, mErr := NewEvent(EventTypeMessageFailed, pageID, failed)
	if mErr != nil {
		return
	}
	c.sendEvent(evt)
}

func (c *Client) sendServiceError(eventType, pageID string, err error) {
	evt, mErr := NewEvent(eventType, pageID, errorPayload(err))
	if mErr != nil {
		return
	}
	c.sendEvent(evt)
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, "", ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

func (c *Client) sendEvent(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping event", "type", evt.Type)
	}
}

// release tears the view down. It runs once, on every disconnect path.
func (c *Client) release() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.released = true
		c.mu.Unlock()

		c.closePage()
		c.cancel()
		close(c.done)
	})
}
