package repository

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission-denied"
	KindUnavailable      ErrorKind = "unavailable"
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindUnknown          ErrorKind = "unknown"
)

// StoreError is returned by MessageStore implementations so callers can tell
// failure kinds apart without knowing the backend.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(kind ErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err. Context expiry counts as
// unavailable; anything else without a StoreError is unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindUnknown
}
