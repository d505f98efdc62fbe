package sim

import "fmt"

// Breaker is the only queue abstraction in the system: a capacity-bounded
// FIFO used as the per-instance reservation slot (capacity 1), the
// per-function tracker queue (capacity 10_000), and the throttler's central
// overflow queue (capacity 10_000). Overflowing a Breaker is an invariant
// violation (spec §7 "Overload"), not a recoverable runtime event, so
// Enqueue calls OnOverflow and returns false rather than silently dropping
// the item — callers that consider overflow fatal should panic or Fatal
// logging from OnOverflow.
type Breaker[T comparable] struct {
	Owner      string
	capacity   int
	items      []T
	OnOverflow func(owner string)
}

// NewBreaker creates an empty Breaker with the given capacity, owned by
// owner (used only for diagnostics and the overflow message).
func NewBreaker[T comparable](owner string, capacity int) *Breaker[T] {
	return &Breaker[T]{Owner: owner, capacity: capacity}
}

// HasSlots reports whether another item could be enqueued without blocking.
func (b *Breaker[T]) HasSlots() bool {
	return len(b.items) < b.capacity
}

// Empty reports whether the queue currently holds no items.
func (b *Breaker[T]) Empty() bool {
	return len(b.items) == 0
}

// Len returns the number of items currently queued.
func (b *Breaker[T]) Len() int {
	return len(b.items)
}

// Capacity returns the configured capacity.
func (b *Breaker[T]) Capacity() int {
	return b.capacity
}

// First peeks at the head of the queue without removing it. ok is false
// when the queue is empty.
func (b *Breaker[T]) First() (item T, ok bool) {
	if len(b.items) == 0 {
		var zero T
		return zero, false
	}
	return b.items[0], true
}

// Enqueue appends item to the tail. It fails (returns false) when the
// queue is already at capacity; that is a fatal invariant violation
// everywhere in this codebase, reported via OnOverflow if set.
func (b *Breaker[T]) Enqueue(item T) bool {
	if len(b.items) >= b.capacity {
		if b.OnOverflow != nil {
			b.OnOverflow(b.Owner)
		} else {
			panic(fmt.Sprintf("%s breaker overload", b.Owner))
		}
		return false
	}
	b.items = append(b.items, item)
	return true
}

// Dequeue removes the first occurrence of item by value. It is a no-op if
// item is not present (idempotent, matching the Python original's
// `list.remove` guarded by membership).
func (b *Breaker[T]) Dequeue(item T) {
	for i, existing := range b.items {
		if existing == item {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the queued items in FIFO order. Callers must
// iterate the snapshot, not the live Breaker, when the loop body may also
// mutate the queue (dispatch draining, overflow counting) — this is the Go
// equivalent of the Python code's repeated "loop over queue not breaker"
// comments.
func (b *Breaker[T]) Snapshot() []T {
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Count returns the number of queued items equal to item.
func (b *Breaker[T]) Count(item T) int {
	n := 0
	for _, existing := range b.items {
		if existing == item {
			n++
		}
	}
	return n
}
