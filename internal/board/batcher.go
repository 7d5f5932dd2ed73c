package board

import (
	"time"

	"github.com/corkboardapp/corkboard/internal/boardstore"
)

// QueuedWrite is a deferred write waiting for the next batch flush.
type QueuedWrite struct {
	SQL        string
	Params     []any
	OriginID   string
	EnqueuedAt time.Time
	Requeued   bool
}

// WriteBatcher coalesces a burst of writes into one storage transaction.
// The queue is only ever touched inside the actor's critical section, so
// it carries no lock of its own.
type WriteBatcher struct {
	queue []QueuedWrite
}

// NewWriteBatcher creates an empty batcher
func NewWriteBatcher() *WriteBatcher {
	return &WriteBatcher{}
}

// Append queues a write for the next flush.
func (b *WriteBatcher) Append(w QueuedWrite) {
	w.EnqueuedAt = time.Now()
	b.queue = append(b.queue, w)
}

// Drain removes and returns all queued writes.
func (b *WriteBatcher) Drain() []QueuedWrite {
	q := b.queue
	b.queue = nil
	return q
}

// Len returns the number of queued writes
func (b *WriteBatcher) Len() int {
	return len(b.queue)
}

// storeWrites converts queued writes into the store's batch form.
func storeWrites(writes []QueuedWrite) []boardstore.Write {
	out := make([]boardstore.Write, len(writes))
	for i, w := range writes {
		out[i] = boardstore.Write{SQL: w.SQL, Params: w.Params}
	}
	return out
}
