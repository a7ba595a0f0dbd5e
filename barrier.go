package fiber

import "time"

// barrierWaiter links a blocked fiber onto a Barrier's waiter list.
type barrierWaiter struct {
	h     hook
	fiber *FiberContext
}

// Barrier is a cyclic rendezvous point for a fixed number of fibers
// (spec.md §4.6, boost::fibers::barrier). Wait blocks until the
// configured count of fibers have all called Wait; exactly one of them
// (the one whose arrival completed the cycle) gets true, the rest false.
// The barrier then resets automatically for its next cycle.
type Barrier struct {
	spin    spinlock
	count   int
	waiting int
	waiters waitList
}

// NewBarrier constructs a Barrier for the given number of parties. Panics
// with ErrInvalidArgument if count is not positive.
func NewBarrier(count int) *Barrier {
	if count <= 0 {
		panic(ErrInvalidArgument)
	}
	return &Barrier{count: count}
}

// Wait blocks the calling fiber until count fibers (across however many
// cycles it takes) have called Wait together. Returns true for exactly one
// fiber per completed cycle — the one whose arrival triggered release of
// the rest.
func (b *Barrier) Wait() bool {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	b.spin.Lock()
	b.waiting++
	if b.waiting < b.count {
		w := &barrierWaiter{fiber: cur}
		w.h.ownerValue = w
		b.waiters.pushBack(&w.h)
		cur.scheduler.waitUntil(cur, time.Time{}, func() { b.spin.Unlock() })
		return false
	}

	// This arrival completes the cycle: reset and release everyone else.
	b.waiting = 0
	var released []*FiberContext
	for h := b.waiters.popFront(); h != nil; h = b.waiters.popFront() {
		released = append(released, h.owner().(*barrierWaiter).fiber)
	}
	b.spin.Unlock()

	for _, f := range released {
		wakeFiber(f)
	}
	return true
}
