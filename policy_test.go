package fiber

import (
	"testing"
	"time"
)

func newTestFiberContext(id FiberID) *FiberContext {
	return &FiberContext{id: id, sleepIndex: -1}
}

func TestFIFOAlgorithmOrdersArrival(t *testing.T) {
	a := NewFIFOAlgorithm()
	f1, f2, f3 := newTestFiberContext(1), newTestFiberContext(2), newTestFiberContext(3)
	a.Awakened(f1)
	a.Awakened(f2)
	a.Awakened(f3)

	if !a.HasReadyFibers() {
		t.Fatal("expected ready fibers after Awakened")
	}
	for _, want := range []*FiberContext{f1, f2, f3} {
		got, ok := a.PickNext()
		if !ok || got != want {
			t.Fatalf("expected fiber %d, got %v (ok=%v)", want.id, got, ok)
		}
	}
	if _, ok := a.PickNext(); ok {
		t.Fatal("expected PickNext to report no ready fibers once drained")
	}
}

func TestPropertyAlgorithmHigherPriorityFirst(t *testing.T) {
	a := NewPropertyAlgorithm()
	low := newTestFiberContext(1)
	low.props = &priorityProps{Priority: 0}
	high := newTestFiberContext(2)
	high.props = &priorityProps{Priority: 10}
	mid := newTestFiberContext(3)
	mid.props = &priorityProps{Priority: 5}

	a.Awakened(low)
	a.Awakened(high)
	a.Awakened(mid)

	for _, want := range []*FiberContext{high, mid, low} {
		got, ok := a.PickNext()
		if !ok || got != want {
			t.Fatalf("expected fiber %d, got %v", want.id, got)
		}
	}
}

func TestPropertyAlgorithmEqualPriorityFIFO(t *testing.T) {
	a := NewPropertyAlgorithm()
	f1, f2 := newTestFiberContext(1), newTestFiberContext(2)
	a.Awakened(f1)
	a.Awakened(f2)

	got1, _ := a.PickNext()
	got2, _ := a.PickNext()
	if got1 != f1 || got2 != f2 {
		t.Errorf("expected FIFO order for equal priority, got %d then %d", got1.id, got2.id)
	}
}

func TestWorkStealingAlgorithmStealSkipsAffinity(t *testing.T) {
	a := NewWorkStealingAlgorithm()
	pinned := newTestFiberContext(1)
	pinned.attrs.ThreadAffinity = true
	stealable := newTestFiberContext(2)

	a.Awakened(pinned)
	a.Awakened(stealable)

	got, ok := a.Steal()
	if !ok || got != stealable {
		t.Fatalf("expected to steal the non-pinned fiber, got %v (ok=%v)", got, ok)
	}
	if _, ok := a.Steal(); ok {
		t.Fatal("expected no further stealable fiber (only the pinned one remains)")
	}
}

func TestWorkStealingAlgorithmPickNextFallsBackToPeer(t *testing.T) {
	owner := NewWorkStealingAlgorithm()
	peer := NewWorkStealingAlgorithm()
	LinkPeers(owner, peer)

	donated := newTestFiberContext(1)
	peer.Awakened(donated)

	if owner.HasReadyFibers() {
		t.Fatal("owner should have no local ready fibers")
	}
	got, ok := owner.PickNext()
	if !ok || got != donated {
		t.Fatalf("expected owner to steal %v from peer, got %v (ok=%v)", donated, got, ok)
	}
}

// TestWorkStealingAlgorithmMigratesFiberScheduler exercises the case the two
// preceding tests can't: PickNext called from inside a real running
// Scheduler, so the stolen fiber's subsequent suspend/resume must route
// through its new owner's baton channels, not the one it was created on.
func TestWorkStealingAlgorithmMigratesFiberScheduler(t *testing.T) {
	busyAlgo := NewWorkStealingAlgorithm()
	idleAlgo := NewWorkStealingAlgorithm()
	LinkPeers(busyAlgo, idleAlgo)

	busy := NewScheduler(WithAlgorithm(busyAlgo))
	idle := NewScheduler(WithAlgorithm(idleAlgo))

	ranOn := make(chan *Scheduler, 1)
	f := newFiberContext(busy, func() (any, error) {
		ranOn <- mustCurrentFiberContext().currentScheduler()
		return nil, nil
	}, Attributes{})
	busy.registry.add(f)
	busy.attach(f)
	busyAlgo.Awakened(f)

	shutdown := runScheduler(t, idle)
	defer shutdown()

	select {
	case sched := <-ranOn:
		if sched != idle {
			t.Fatalf("expected the stolen fiber to observe idle as its scheduler, got %p want %p", sched, idle)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the stolen fiber to run")
	}

	if got := busy.LiveFiberCount(); got != 0 {
		t.Errorf("expected busy's worker set to no longer track the migrated fiber, got %d", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for idle.LiveFiberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := idle.LiveFiberCount(); got != 0 {
		t.Errorf("expected idle's worker set to have released the migrated fiber after it terminated, got %d", got)
	}
}
