package ws

import (
	"encoding/json"
	"time"

	"github.com/vedran77/pulsefeed/internal/domain"
)

// Event types - Client → Server
const (
	EventTypePageOpen       = "page.open"
	EventTypePageClose      = "page.close"
	EventTypeMessageSend    = "message.send"
	EventTypeMessageRetry   = "message.retry"
	EventTypeMessageDiscard = "message.discard"
	EventTypePing           = "ping"
)

// Event types - Server → Client
const (
	EventTypeFeed              = "feed"
	EventTypeMessagePending    = "message.pending"
	EventTypeMessageFailed     = "message.failed"
	EventTypeSubscriptionError = "subscription.error"
	EventTypePong              = "pong"
	EventTypeError             = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	PageID    string          `json:"page_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type PagePayload struct {
	PageID string `json:"page_id"`
}

type MessageSendPayload struct {
	Text  string `json:"text"`
	Nonce string `json:"nonce,omitempty"`
}

type MessageRefPayload struct {
	ID string `json:"id"`
}

// --- Server → Client payloads ---

// FeedPayload is the whole rendered list; clients replace what they show.
type FeedPayload struct {
	Messages []domain.Message `json:"messages"`
}

// MessagePendingPayload acknowledges a send with the temporary id it got.
type MessagePendingPayload struct {
	ID    string `json:"id"`
	Nonce string `json:"nonce,omitempty"`
}

type MessageFailedPayload struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, pageID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		PageID:    pageID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
