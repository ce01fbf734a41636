// Package feed holds the rendered message list of a single page view.
//
// A Feed has two parts: the confirmed sequence, replaced wholesale by each
// subscription batch, and the pending tail of locally originated messages.
// Snapshots always place pending messages after confirmed ones so a message
// never jumps position when it is confirmed.
//
// Entries are addressed by id, never by index, so concurrent sends can add
// and remove their own entries without coordinating with each other.
package feed

import (
	"sort"
	"sync"

	"github.com/vedran77/pulsefeed/internal/domain"
)

// Observer receives the full rendered list after a mutation. Observers run
// synchronously and must not mutate the feed they observe.
type Observer func(snapshot []domain.Message)

type Feed struct {
	mu           sync.Mutex
	confirmed    []domain.Message
	confirmedIDs map[string]struct{}
	pending      []domain.Message
	version      uint64

	observers map[int]Observer
	nextObs   int

	// notifyMu orders deliveries; delivered is the last version observers saw.
	notifyMu  sync.Mutex
	delivered uint64
}

func New() *Feed {
	return &Feed{
		confirmedIDs: make(map[string]struct{}),
		observers:    make(map[int]Observer),
	}
}

// Snapshot returns the rendered list: confirmed messages ascending by
// creation time followed by pending messages in insertion order.
func (f *Feed) Snapshot() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// ReplaceConfirmed swaps in a new confirmed sequence. Every entry is marked
// sent and the copy is sorted ascending by creation time.
func (f *Feed) ReplaceConfirmed(batch []domain.Message) {
	next := make([]domain.Message, len(batch))
	copy(next, batch)
	for i := range next {
		next[i].Status = domain.StatusSent
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.Before(next[j].CreatedAt)
	})
	ids := make(map[string]struct{}, len(next))
	for _, m := range next {
		ids[m.ID] = struct{}{}
	}

	f.mu.Lock()
	f.confirmed = next
	f.confirmedIDs = ids
	f.version++
	f.mu.Unlock()

	f.notify()
}

// AppendPending adds msg to the pending tail. It returns false when an entry
// with the same id is already pending.
func (f *Feed) AppendPending(msg domain.Message) bool {
	f.mu.Lock()
	if f.indexLocked(msg.ID) >= 0 {
		f.mu.Unlock()
		return false
	}
	f.pending = append(f.pending, msg)
	f.version++
	f.mu.Unlock()

	f.notify()
	return true
}

// RemovePending drops the pending entry with the given id. Removing an id
// that is not pending reports false and does not notify.
func (f *Feed) RemovePending(id string) bool {
	f.mu.Lock()
	i := f.indexLocked(id)
	if i < 0 {
		f.mu.Unlock()
		return false
	}
	f.pending = append(f.pending[:i:i], f.pending[i+1:]...)
	f.version++
	f.mu.Unlock()

	f.notify()
	return true
}

// MarkFailed flips a sending entry to failed in place.
func (f *Feed) MarkFailed(id string) bool {
	f.mu.Lock()
	i := f.indexLocked(id)
	if i < 0 || f.pending[i].Status != domain.StatusSending {
		f.mu.Unlock()
		return false
	}
	f.pending[i].Status = domain.StatusFailed
	f.version++
	f.mu.Unlock()

	f.notify()
	return true
}

// Pending returns the pending entry with the given id.
func (f *Feed) Pending(id string) (domain.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(id)
	if i < 0 {
		return domain.Message{}, false
	}
	return f.pending[i], true
}

// PendingCount reports how many locally originated entries are in the feed,
// failed ones included.
func (f *Feed) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Subscribe registers an observer and immediately hands it the current
// snapshot. The returned function unregisters it.
func (f *Feed) Subscribe(obs Observer) func() {
	f.notifyMu.Lock()
	f.mu.Lock()
	id := f.nextObs
	f.nextObs++
	f.observers[id] = obs
	snap := f.snapshotLocked()
	f.mu.Unlock()
	obs(snap)
	f.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.observers, id)
			f.mu.Unlock()
		})
	}
}

// notify hands observers the newest snapshot. Deliveries are serialized and a
// version already seen is skipped, so observers never go back to an older
// state when mutations race.
func (f *Feed) notify() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	if f.version <= f.delivered {
		f.mu.Unlock()
		return
	}
	f.delivered = f.version
	snap := f.snapshotLocked()
	obs := make([]Observer, 0, len(f.observers))
	for _, o := range f.observers {
		obs = append(obs, o)
	}
	f.mu.Unlock()

	for _, o := range obs {
		o(snap)
	}
}

func (f *Feed) snapshotLocked() []domain.Message {
	out := make([]domain.Message, 0, len(f.confirmed)+len(f.pending))
	out = append(out, f.confirmed...)
	for _, m := range f.pending {
		if _, ok := f.confirmedIDs[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (f *Feed) indexLocked(id string) int {
	for i, m := range f.pending {
		if m.ID == id {
			return i
		}
	}
	return -1
}
