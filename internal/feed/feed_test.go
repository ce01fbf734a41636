package feed

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vedran77/pulsefeed/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func confirmed(id, text string, offset int) domain.Message {
	return domain.Message{ID: id, Text: text, CreatedAt: t0.Add(time.Duration(offset) * time.Second)}
}

func pending(text string) domain.Message {
	return domain.Message{ID: domain.NewTempID(), Text: text, CreatedAt: t0, Status: domain.StatusSending}
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReplaceConfirmedSortsAndMarksSent(t *testing.T) {
	f := New()
	f.ReplaceConfirmed([]domain.Message{
		confirmed("c", "third", 3),
		confirmed("a", "first", 1),
		confirmed("b", "second", 2),
	})

	snap := f.Snapshot()
	if got := texts(snap); !equal(got, []string{"first", "second", "third"}) {
		t.Fatalf("order = %v", got)
	}
	for _, m := range snap {
		if m.Status != domain.StatusSent {
			t.Fatalf("status of %s = %q, want sent", m.ID, m.Status)
		}
	}
}

func TestReplaceConfirmedReflectsLatestBatchOnly(t *testing.T) {
	f := New()
	f.ReplaceConfirmed([]domain.Message{confirmed("a", "a", 1), confirmed("b", "b", 2)})
	f.ReplaceConfirmed([]domain.Message{confirmed("b", "b", 2), confirmed("c", "c", 3)})

	if got := texts(f.Snapshot()); !equal(got, []string{"b", "c"}) {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestReplaceConfirmedCopiesBatch(t *testing.T) {
	f := New()
	batch := []domain.Message{confirmed("a", "a", 1)}
	f.ReplaceConfirmed(batch)
	batch[0].Text = "mutated"

	if got := f.Snapshot()[0].Text; got != "a" {
		t.Fatalf("feed shares caller's slice: %q", got)
	}
}

func TestPendingRendersAfterConfirmed(t *testing.T) {
	f := New()
	p := pending("mine")
	f.AppendPending(p)
	// The confirmed batch carries a timestamp later than the pending entry's
	// local time; pending still renders last.
	f.ReplaceConfirmed([]domain.Message{confirmed("a", "theirs", 60)})

	if got := texts(f.Snapshot()); !equal(got, []string{"theirs", "mine"}) {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestAppendPendingRejectsDuplicateID(t *testing.T) {
	f := New()
	p := pending("x")
	if !f.AppendPending(p) {
		t.Fatalf("first append failed")
	}
	if f.AppendPending(p) {
		t.Fatalf("duplicate append accepted")
	}
	if f.PendingCount() != 1 {
		t.Fatalf("pending count = %d", f.PendingCount())
	}
}

func TestRemovePendingExactlyOnce(t *testing.T) {
	f := New()
	p := pending("x")
	f.AppendPending(p)

	if !f.RemovePending(p.ID) {
		t.Fatalf("remove failed")
	}
	if f.RemovePending(p.ID) {
		t.Fatalf("second remove reported success")
	}
	if len(f.Snapshot()) != 0 {
		t.Fatalf("snapshot not empty")
	}
}

func TestRemovePendingKeepsOthers(t *testing.T) {
	f := New()
	a, b, c := pending("a"), pending("b"), pending("c")
	f.AppendPending(a)
	f.AppendPending(b)
	f.AppendPending(c)
	f.RemovePending(b.ID)

	if got := texts(f.Snapshot()); !equal(got, []string{"a", "c"}) {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestMarkFailedOnlyFromSending(t *testing.T) {
	f := New()
	p := pending("x")
	f.AppendPending(p)

	if !f.MarkFailed(p.ID) {
		t.Fatalf("mark failed")
	}
	got, ok := f.Pending(p.ID)
	if !ok || got.Status != domain.StatusFailed {
		t.Fatalf("pending = %+v, %v", got, ok)
	}
	if f.MarkFailed(p.ID) {
		t.Fatalf("failed entry marked twice")
	}
	if f.MarkFailed("tmp_missing") {
		t.Fatalf("missing entry marked")
	}
}

func TestPendingHiddenOnceConfirmedWithSameID(t *testing.T) {
	f := New()
	p := domain.Message{ID: "server-1", Text: "x", Status: domain.StatusSending}
	f.AppendPending(p)
	f.ReplaceConfirmed([]domain.Message{{ID: "server-1", Text: "x", CreatedAt: t0}})

	if n := len(f.Snapshot()); n != 1 {
		t.Fatalf("snapshot has %d entries, want 1", n)
	}
}

func TestSubscribeReceivesCurrentAndSubsequentSnapshots(t *testing.T) {
	f := New()
	f.ReplaceConfirmed([]domain.Message{confirmed("a", "a", 1)})

	var got [][]string
	cancel := f.Subscribe(func(s []domain.Message) { got = append(got, texts(s)) })

	p := pending("b")
	f.AppendPending(p)
	f.RemovePending(p.ID)
	cancel()
	f.ReplaceConfirmed(nil)

	want := [][]string{{"a"}, {"a", "b"}, {"a"}}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if !equal(got[i], want[i]) {
			t.Fatalf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNoNotificationForNoopMutations(t *testing.T) {
	f := New()
	calls := 0
	f.Subscribe(func([]domain.Message) { calls++ })
	f.RemovePending("tmp_missing")
	f.MarkFailed("tmp_missing")
	if calls != 1 {
		t.Fatalf("calls = %d, want only the initial snapshot", calls)
	}
}

func TestConcurrentSendsAreIndependent(t *testing.T) {
	f := New()
	var wg sync.WaitGroup
	ids := make([]string, 50)
	for i := range ids {
		p := pending(fmt.Sprintf("m%d", i))
		ids[i] = p.ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.AppendPending(p)
		}()
	}
	wg.Wait()
	if f.PendingCount() != len(ids) {
		t.Fatalf("pending = %d", f.PendingCount())
	}

	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				f.RemovePending(id)
			} else {
				f.MarkFailed(id)
			}
		}()
	}
	wg.Wait()

	snap := f.Snapshot()
	if len(snap) != len(ids)/2 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	for _, m := range snap {
		if m.Status != domain.StatusFailed {
			t.Fatalf("unexpected status %q", m.Status)
		}
	}
}
