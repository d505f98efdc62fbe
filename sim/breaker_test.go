package sim

import "testing"

func TestBreaker_HasSlotsAndEnqueue(t *testing.T) {
	b := NewBreaker[int]("test", 2)
	if !b.HasSlots() {
		t.Fatal("fresh breaker should have slots")
	}
	if !b.Enqueue(1) {
		t.Fatal("enqueue within capacity should succeed")
	}
	if !b.Enqueue(2) {
		t.Fatal("enqueue within capacity should succeed")
	}
	if b.HasSlots() {
		t.Error("breaker at capacity should report no slots")
	}
}

func TestBreaker_EnqueueOverflowCallsOnOverflow(t *testing.T) {
	b := NewBreaker[int]("overflowing", 1)
	called := false
	b.OnOverflow = func(owner string) {
		called = true
		if owner != "overflowing" {
			t.Errorf("unexpected owner in overflow callback: %s", owner)
		}
	}
	b.Enqueue(1)
	if ok := b.Enqueue(2); ok {
		t.Error("enqueue past capacity should return false")
	}
	if !called {
		t.Error("OnOverflow should have been invoked")
	}
	if b.Len() != 1 {
		t.Errorf("overflowed item should not have been queued, len=%d", b.Len())
	}
}

func TestBreaker_FirstPeeksWithoutRemoving(t *testing.T) {
	b := NewBreaker[string]("peek", 5)
	b.Enqueue("a")
	b.Enqueue("b")

	first, ok := b.First()
	if !ok || first != "a" {
		t.Fatalf("expected (a, true), got (%v, %v)", first, ok)
	}
	if b.Len() != 2 {
		t.Error("First must not remove the item")
	}
}

func TestBreaker_FirstOnEmpty(t *testing.T) {
	b := NewBreaker[string]("empty", 5)
	if _, ok := b.First(); ok {
		t.Error("First on empty breaker should report ok=false")
	}
	if !b.Empty() {
		t.Error("fresh breaker should be empty")
	}
}

func TestBreaker_DequeueByValueIsIdempotent(t *testing.T) {
	b := NewBreaker[string]("dequeue", 5)
	b.Enqueue("a")
	b.Enqueue("b")
	b.Enqueue("c")

	b.Dequeue("b")
	if b.Len() != 2 {
		t.Fatalf("expected 2 items after dequeue, got %d", b.Len())
	}

	// Dequeuing an item no longer present must be a no-op, not a panic.
	b.Dequeue("b")
	if b.Len() != 2 {
		t.Fatalf("dequeue of absent item should be a no-op, got len=%d", b.Len())
	}

	want := []string{"a", "c"}
	got := b.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("snapshot mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestBreaker_SnapshotIsIndependentCopy(t *testing.T) {
	b := NewBreaker[int]("snapshot", 5)
	b.Enqueue(1)
	b.Enqueue(2)

	snap := b.Snapshot()
	b.Enqueue(3)

	if len(snap) != 2 {
		t.Errorf("mutating the breaker after Snapshot must not affect the snapshot, got %v", snap)
	}
}

func TestBreaker_Count(t *testing.T) {
	b := NewBreaker[int]("count", 5)
	b.Enqueue(1)
	b.Enqueue(2)
	b.Enqueue(1)

	if n := b.Count(1); n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
	if n := b.Count(9); n != 0 {
		t.Errorf("expected count 0 for absent item, got %d", n)
	}
}
