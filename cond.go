package fiber

import "time"

// condWaiter links a blocked fiber onto a Cond's waiter list.
type condWaiter struct {
	h     hook
	fiber *FiberContext
}

// condLocker is the subset of the mutex types a [Cond] can coordinate with.
type condLocker interface {
	Lock()
	Unlock()
}

// Cond is a fiber-aware condition variable (spec.md §4.5,
// boost::fibers::condition_variable). Wait atomically unlocks the
// supplied lock and suspends the calling fiber, re-locking it before
// returning, exactly like sync.Cond but yielding to the fiber scheduler
// instead of blocking the OS thread.
type Cond struct {
	spin    spinlock
	waiters waitList
}

// Wait unlocks lock, suspends the calling fiber until notified, then
// re-acquires lock before returning. It is an interruption point: if
// interrupted, lock is still re-acquired before the panic propagates, so
// callers using defer Unlock remain correct.
func (c *Cond) Wait(lock condLocker) {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	c.spin.Lock()
	w := &condWaiter{fiber: cur}
	w.h.ownerValue = w
	c.waiters.pushBack(&w.h)
	// The caller-supplied lock is released here, on the calling fiber (its
	// owner), while the condition variable's own spinlock is still held; the
	// spinlock itself is released by the post-switch action only once the
	// calling fiber's stack has logically switched away (spec.md §5). This
	// is what prevents a concurrent Notify from observing the waiter link
	// before the fiber has suspended, which would otherwise let it wake a
	// fiber that hasn't suspended yet.
	lock.Unlock()
	cur.scheduler.noteCondContention(cur)
	cur.scheduler.waitUntil(cur, time.Time{}, func() {
		c.spin.Unlock()
	})

	// NotifyOne/NotifyAll always pop the waiter before waking, so a hook
	// still linked here means this was an interrupt nudge rather than a
	// real notification.
	c.spin.Lock()
	if w.h.linked {
		c.waiters.remove(&w.h)
	}
	c.spin.Unlock()

	lock.Lock()
	cur.interruptionPoint()
}

// WaitUntil is Wait bounded by a deadline. Returns WaitTimeout if the
// deadline elapsed before a notification, WaitReady otherwise. lock is
// re-acquired before returning in both cases.
func (c *Cond) WaitUntil(lock condLocker, deadline time.Time) WaitStatus {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	c.spin.Lock()
	w := &condWaiter{fiber: cur}
	w.h.ownerValue = w
	c.waiters.pushBack(&w.h)

	lock.Unlock()
	cur.scheduler.noteCondContention(cur)
	woken := cur.scheduler.waitUntil(cur, deadline, func() {
		c.spin.Unlock()
	})

	var interrupted bool
	if woken {
		// NotifyOne/NotifyAll always pop the waiter before waking, so a
		// hook still linked here means this was an interrupt nudge.
		c.spin.Lock()
		interrupted = w.h.linked
		if interrupted {
			c.waiters.remove(&w.h)
		}
		c.spin.Unlock()
	} else {
		c.spin.Lock()
		if w.h.linked {
			c.waiters.remove(&w.h)
		}
		c.spin.Unlock()
	}

	lock.Lock()
	if interrupted {
		cur.interruptionPoint()
	}
	if woken {
		return WaitReady
	}
	return WaitTimeout
}

// WaitFor is WaitUntil with a relative timeout.
func (c *Cond) WaitFor(lock condLocker, timeout time.Duration) WaitStatus {
	return c.WaitUntil(lock, time.Now().Add(timeout))
}

// WaitPredicate calls Wait in a loop until predicate returns true,
// protecting against spurious wakeups, mirroring boost::fibers::
// condition_variable::wait's predicate overload.
func (c *Cond) WaitPredicate(lock condLocker, predicate func() bool) {
	for !predicate() {
		c.Wait(lock)
	}
}

// NotifyOne wakes at most one waiting fiber, in FIFO order.
func (c *Cond) NotifyOne() {
	c.spin.Lock()
	h := c.waiters.popFront()
	c.spin.Unlock()
	if h == nil {
		return
	}
	wakeFiber(h.owner().(*condWaiter).fiber)
}

// NotifyAll wakes every waiting fiber.
func (c *Cond) NotifyAll() {
	c.spin.Lock()
	var woken []*FiberContext
	for h := c.waiters.popFront(); h != nil; h = c.waiters.popFront() {
		woken = append(woken, h.owner().(*condWaiter).fiber)
	}
	c.spin.Unlock()
	for _, f := range woken {
		wakeFiber(f)
	}
}
