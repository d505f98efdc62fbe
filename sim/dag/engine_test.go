package dag

import (
	"testing"

	"github.com/faas-sim/faas-sim/sim"
)

type fakeReleaser struct {
	released []*sim.Request
}

func (f *fakeReleaser) Release(r *sim.Request) {
	f.released = append(f.released, r)
}

type fakeClock struct{ now int64 }

func (c fakeClock) Now() int64 { return c.now }

func TestEngine_DereferenceReleasesSuccessorWhenLastPredecessorFinishes(t *testing.T) {
	g := Synthetic("d", 2, 1, 100, 128, 1) // F0 -> {F1, F2} -> F3
	releaser := &fakeReleaser{}
	e := NewEngine(releaser, fakeClock{now: 1000}, 0)
	e.RegisterGraph(g)
	e.AddFlow(1, "d")

	root := sim.NewRequest(1, 1, "F0", 100, 128, "d")
	root.Failed = false
	e.Dereference(root)

	if len(releaser.released) != 2 {
		t.Fatalf("expected F1 and F2 released after root finishes, got %d", len(releaser.released))
	}

	f1 := sim.NewRequest(1, 1, "F1", 100, 128, "d")
	e.Dereference(f1)
	if len(releaser.released) != 2 {
		t.Fatalf("join node should not release until both predecessors finish, got %d", len(releaser.released))
	}

	f2 := sim.NewRequest(1, 1, "F2", 100, 128, "d")
	e.Dereference(f2)
	if len(releaser.released) != 3 {
		t.Fatalf("expected join node F3 released once both F1 and F2 finish, got %d", len(releaser.released))
	}
	if releaser.released[2].Dest != "F3" {
		t.Fatalf("expected F3 released, got %s", releaser.released[2].Dest)
	}
}

func TestEngine_CompletionRateTracksProgress(t *testing.T) {
	g := Synthetic("d", 1, 1, 100, 128, 1) // F0 -> F1 -> F2
	releaser := &fakeReleaser{}
	e := NewEngine(releaser, fakeClock{now: 0}, 0)
	e.RegisterGraph(g)
	e.AddFlow(7, "d")

	rate, ok := e.CompletionRate(7)
	if !ok || rate != 0 {
		t.Fatalf("expected rate 0 before any completion, got %v ok=%v", rate, ok)
	}

	root := sim.NewRequest(7, 1, "F0", 100, 128, "d")
	e.Dereference(root)
	rate, ok = e.CompletionRate(7)
	if !ok || rate <= 0 {
		t.Fatalf("expected positive completion rate after root finishes, got %v", rate)
	}
}

func TestEngine_FailedRequestDeletesFlowOnLastReplica(t *testing.T) {
	g := Synthetic("d", 1, 1, 100, 128, 1)
	releaser := &fakeReleaser{}
	e := NewEngine(releaser, fakeClock{now: 0}, 0)
	e.RegisterGraph(g)
	e.AddFlow(3, "d")

	root := sim.NewRequest(3, 1, "F0", 100, 128, "d")
	root.Failed = true
	root.NumReplicas = 1
	e.Dereference(root)

	if _, ok := e.CompletionRate(3); ok {
		t.Fatalf("expected flow 3 to be torn down after its only replica failed")
	}
	if len(releaser.released) != 0 {
		t.Fatalf("a failed request should not release successors")
	}
}

func TestEngine_LenReflectsInFlightFlows(t *testing.T) {
	g := Synthetic("d", 1, 1, 100, 128, 1)
	releaser := &fakeReleaser{}
	e := NewEngine(releaser, fakeClock{now: 0}, 0)
	e.RegisterGraph(g)
	if e.Len() != 0 {
		t.Fatalf("expected 0 flows initially")
	}
	e.AddFlow(1, "d")
	e.AddFlow(2, "d")
	if e.Len() != 2 {
		t.Fatalf("expected 2 flows, got %d", e.Len())
	}
}
