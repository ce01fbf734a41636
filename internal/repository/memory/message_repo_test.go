package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/repository"
)

func steppedClock() func() time.Time {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func waitBatch(t *testing.T, ch <-chan []domain.Message) []domain.Message {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for batch")
		return nil
	}
}

func TestCreateAssignsServerFields(t *testing.T) {
	repo := NewMessageRepo()
	repo.SetClock(steppedClock())

	msg, err := repo.Create(context.Background(), "p1", repository.NewMessage{Text: "hi", AuthorID: "u1", AuthorName: "Ana"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.ID == "" || domain.IsTempID(msg.ID) {
		t.Fatalf("expected server id, got %q", msg.ID)
	}
	if msg.Status != domain.StatusSent {
		t.Fatalf("status = %q", msg.Status)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatalf("expected server timestamp")
	}
}

func TestSubscribeDeliversInitialAndUpdatedBatches(t *testing.T) {
	repo := NewMessageRepo()
	repo.SetClock(steppedClock())
	ctx := context.Background()

	if _, err := repo.Create(ctx, "p1", repository.NewMessage{Text: "first"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	batches := make(chan []domain.Message, 16)
	stop, err := repo.Subscribe(ctx, "p1", 50, func(b []domain.Message) { batches <- b }, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if b := waitBatch(t, batches); len(b) != 1 || b[0].Text != "first" {
		t.Fatalf("initial batch = %+v", b)
	}

	if _, err := repo.Create(ctx, "p1", repository.NewMessage{Text: "second"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	b := waitBatch(t, batches)
	if len(b) != 2 || b[0].Text != "first" || b[1].Text != "second" {
		t.Fatalf("second batch = %+v", b)
	}
}

func TestSubscribeBoundsBatchToMostRecent(t *testing.T) {
	repo := NewMessageRepo()
	repo.SetClock(steppedClock())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := repo.Create(ctx, "p1", repository.NewMessage{Text: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got := repo.List("p1", 3)
	if len(got) != 3 || got[0].Text != "m2" || got[2].Text != "m4" {
		t.Fatalf("list = %+v", got)
	}
}

func TestSubscriptionIsScopedToPage(t *testing.T) {
	repo := NewMessageRepo()
	ctx := context.Background()

	batches := make(chan []domain.Message, 16)
	stop, err := repo.Subscribe(ctx, "p1", 50, func(b []domain.Message) { batches <- b }, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()
	waitBatch(t, batches)

	if _, err := repo.Create(ctx, "other", repository.NewMessage{Text: "elsewhere"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	select {
	case b := <-batches:
		t.Fatalf("unexpected batch for other page: %+v", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFailNextCreate(t *testing.T) {
	repo := NewMessageRepo()
	repo.FailNextCreate(repository.KindPermissionDenied)

	_, err := repo.Create(context.Background(), "p1", repository.NewMessage{Text: "x"})
	if repository.KindOf(err) != repository.KindPermissionDenied {
		t.Fatalf("expected permission-denied, got %v", err)
	}
	if _, err := repo.Create(context.Background(), "p1", repository.NewMessage{Text: "x"}); err != nil {
		t.Fatalf("second create should succeed: %v", err)
	}
}

func TestBreakSubscriptionsReportsError(t *testing.T) {
	repo := NewMessageRepo()
	errs := make(chan error, 1)
	batches := make(chan []domain.Message, 4)
	stop, err := repo.Subscribe(context.Background(), "p1", 50,
		func(b []domain.Message) { batches <- b },
		func(err error) { errs <- err },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()
	waitBatch(t, batches)

	repo.BreakSubscriptions("p1", repository.KindUnavailable)
	select {
	case err := <-errs:
		var se *repository.StoreError
		if !errors.As(err, &se) || se.Kind != repository.KindUnavailable {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	repo := NewMessageRepo()
	stop, err := repo.Subscribe(context.Background(), "p1", 50, func([]domain.Message) {}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	stop()
	stop()
}
