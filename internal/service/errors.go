package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vedran77/pulsefeed/internal/repository"
	"github.com/vedran77/pulsefeed/pkg/validator"
)

// ErrAuthRequired is returned when a send or subscribe is attempted with no
// signed-in principal. It is fatal to the operation and never retried.
var ErrAuthRequired = errors.New("sign-in required")

// ValidationError rejects input before any network call.
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// PersistenceError reports a write that failed after dispatch. The pending
// message it names stays in the feed marked failed.
type PersistenceError struct {
	MessageID string
	Kind      repository.ErrorKind
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("sending message %s: %s: %v", e.MessageID, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SubscriptionError reports a broken live query. The feed keeps the last
// confirmed batch it received.
type SubscriptionError struct {
	PageID string
	Kind   repository.ErrorKind
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to page %s: %s: %v", e.PageID, e.Kind, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err means the caller has to sign in again:
// either no principal was present or the backend rejected the credentials.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	return repository.KindOf(err) == repository.KindUnauthenticated
}
