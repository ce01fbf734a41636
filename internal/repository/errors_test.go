package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	denied := NewStoreError(KindPermissionDenied, "create", errors.New("rls"))
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"store error", denied, KindPermissionDenied},
		{"wrapped store error", fmt.Errorf("sending: %w", denied), KindPermissionDenied},
		{"deadline", context.DeadlineExceeded, KindUnavailable},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: KindOf = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError(KindUnavailable, "subscribe", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find cause")
	}
	if err.Error() != "subscribe: unavailable: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
