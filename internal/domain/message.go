package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks ids generated locally for messages the backend has not
// confirmed yet. Server ids are bare UUIDs and never carry it.
const TempIDPrefix = "tmp_"

type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

type Message struct {
	ID         string        `json:"id"`
	PageID     string        `json:"page_id"`
	Text       string        `json:"text"`
	AuthorID   string        `json:"author_id"`
	AuthorName string        `json:"author_name"`
	CreatedAt  time.Time     `json:"created_at"`
	Status     MessageStatus `json:"status"`
}

// IsPending reports whether the message was originated locally and is not yet
// confirmed by the backend.
func (m Message) IsPending() bool {
	return IsTempID(m.ID)
}

// NewTempID returns a fresh temporary message id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
