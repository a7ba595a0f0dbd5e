package fiber

import "time"

// mutexWaiter links a blocked fiber onto a Mutex's FIFO waiter list.
type mutexWaiter struct {
	h     hook
	fiber *FiberContext
}

// Mutex is a non-recursive, FIFO, fiber-aware mutex (spec.md §4.4,
// boost::fibers::mutex). Locking it from outside a fiber panics with
// ErrNotFiberThread; locking it recursively from the owning fiber panics
// with ErrResourceDeadlock; unlocking it from a non-owning fiber panics
// with ErrOperationNotPermitted. Acquisition is hand-off: Unlock transfers
// ownership directly to the next waiter rather than letting any ready
// fiber race for it, which is what keeps the queue FIFO and starvation-
// free.
type Mutex struct {
	spin    spinlock
	owner   *FiberContext
	waiters waitList
}

// Lock blocks the calling fiber until it owns the mutex. It is an
// interruption point.
func (m *Mutex) Lock() {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	m.spin.Lock()
	if m.owner == nil {
		m.owner = cur
		m.spin.Unlock()
		return
	}
	if m.owner == cur {
		m.spin.Unlock()
		panic(ErrResourceDeadlock)
	}
	w := &mutexWaiter{fiber: cur}
	w.h.ownerValue = w
	m.waiters.pushBack(&w.h)

	cur.scheduler.noteMutexContention(cur)
	cur.scheduler.waitUntil(cur, time.Time{}, func() { m.spin.Unlock() })
	// Resumed only once the previous owner's Unlock has directly
	// transferred ownership to us.
}

// TryLock attempts to acquire the mutex without blocking, returning false
// if it is already held by another fiber.
func (m *Mutex) TryLock() bool {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	defer m.spin.Unlock()
	if m.owner == cur {
		panic(ErrResourceDeadlock)
	}
	if m.owner != nil {
		return false
	}
	m.owner = cur
	return true
}

// Unlock releases the mutex, transferring ownership directly to the
// longest-waiting blocked fiber, if any, or leaving it unowned otherwise.
// Unlock by a fiber that does not own the mutex panics with
// ErrOperationNotPermitted.
func (m *Mutex) Unlock() {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	if m.owner != cur {
		m.spin.Unlock()
		panic(ErrOperationNotPermitted)
	}
	h := m.waiters.popFront()
	if h == nil {
		m.owner = nil
		m.spin.Unlock()
		return
	}
	next := h.owner().(*mutexWaiter).fiber
	m.owner = next
	m.spin.Unlock()
	wakeFiber(next)
}

// RecursiveMutex is a mutex a fiber may lock multiple times, released only
// once Unlock has been called a matching number of times (spec.md §4.4,
// boost::fibers::recursive_mutex).
type RecursiveMutex struct {
	spin    spinlock
	owner   *FiberContext
	count   int
	waiters waitList
}

func (m *RecursiveMutex) Lock() {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	m.spin.Lock()
	if m.owner == nil {
		m.owner = cur
		m.count = 1
		m.spin.Unlock()
		return
	}
	if m.owner == cur {
		m.count++
		m.spin.Unlock()
		return
	}
	w := &mutexWaiter{fiber: cur}
	w.h.ownerValue = w
	m.waiters.pushBack(&w.h)
	cur.scheduler.noteMutexContention(cur)
	cur.scheduler.waitUntil(cur, time.Time{}, func() { m.spin.Unlock() })
}

func (m *RecursiveMutex) TryLock() bool {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	defer m.spin.Unlock()
	if m.owner == cur {
		m.count++
		return true
	}
	if m.owner != nil {
		return false
	}
	m.owner = cur
	m.count = 1
	return true
}

// Unlock decrements the recursion count, releasing the mutex (with
// hand-off to the next waiter) only once it reaches zero.
func (m *RecursiveMutex) Unlock() {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	if m.owner != cur {
		m.spin.Unlock()
		panic(ErrOperationNotPermitted)
	}
	m.count--
	if m.count > 0 {
		m.spin.Unlock()
		return
	}
	h := m.waiters.popFront()
	if h == nil {
		m.owner = nil
		m.spin.Unlock()
		return
	}
	next := h.owner().(*mutexWaiter).fiber
	m.owner = next
	m.count = 1
	m.spin.Unlock()
	wakeFiber(next)
}

// TimedMutex is a non-recursive mutex supporting a bounded wait via
// LockUntil/LockFor (spec.md §4.4, boost::fibers::timed_mutex).
type TimedMutex struct {
	spin    spinlock
	owner   *FiberContext
	waiters waitList
}

func (m *TimedMutex) Lock() {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()
	m.spin.Lock()
	if m.owner == nil {
		m.owner = cur
		m.spin.Unlock()
		return
	}
	if m.owner == cur {
		m.spin.Unlock()
		panic(ErrResourceDeadlock)
	}
	w := &mutexWaiter{fiber: cur}
	w.h.ownerValue = w
	m.waiters.pushBack(&w.h)
	cur.scheduler.noteMutexContention(cur)
	cur.scheduler.waitUntil(cur, time.Time{}, func() { m.spin.Unlock() })
}

func (m *TimedMutex) TryLock() bool {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	defer m.spin.Unlock()
	if m.owner == cur {
		panic(ErrResourceDeadlock)
	}
	if m.owner != nil {
		return false
	}
	m.owner = cur
	return true
}

// LockUntil attempts to acquire the mutex, blocking at most until deadline.
// Returns false on timeout. If a concurrent Unlock races the deadline and
// transfers ownership to the caller anyway, the race is resolved in the
// caller's favor: LockUntil returns true.
func (m *TimedMutex) LockUntil(deadline time.Time) bool {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()
	m.spin.Lock()
	if m.owner == nil {
		m.owner = cur
		m.spin.Unlock()
		return true
	}
	if m.owner == cur {
		m.spin.Unlock()
		panic(ErrResourceDeadlock)
	}
	w := &mutexWaiter{fiber: cur}
	w.h.ownerValue = w
	m.waiters.pushBack(&w.h)

	cur.scheduler.noteMutexContention(cur)
	woken := cur.scheduler.waitUntil(cur, deadline, func() { m.spin.Unlock() })
	if woken {
		return true
	}

	m.spin.Lock()
	if m.owner == cur {
		m.spin.Unlock()
		return true
	}
	if w.h.linked {
		m.waiters.remove(&w.h)
	}
	m.spin.Unlock()
	return false
}

// LockFor is LockUntil with a relative timeout.
func (m *TimedMutex) LockFor(timeout time.Duration) bool {
	return m.LockUntil(time.Now().Add(timeout))
}

func (m *TimedMutex) Unlock() {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	if m.owner != cur {
		m.spin.Unlock()
		panic(ErrOperationNotPermitted)
	}
	h := m.waiters.popFront()
	if h == nil {
		m.owner = nil
		m.spin.Unlock()
		return
	}
	next := h.owner().(*mutexWaiter).fiber
	m.owner = next
	m.spin.Unlock()
	wakeFiber(next)
}

// RecursiveTimedMutex combines RecursiveMutex's recursion counting with
// TimedMutex's bounded acquisition (spec.md §4.4,
// boost::fibers::recursive_timed_mutex).
type RecursiveTimedMutex struct {
	spin    spinlock
	owner   *FiberContext
	count   int
	waiters waitList
}

func (m *RecursiveTimedMutex) Lock() {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()
	m.spin.Lock()
	if m.owner == nil {
		m.owner, m.count = cur, 1
		m.spin.Unlock()
		return
	}
	if m.owner == cur {
		m.count++
		m.spin.Unlock()
		return
	}
	w := &mutexWaiter{fiber: cur}
	w.h.ownerValue = w
	m.waiters.pushBack(&w.h)
	cur.scheduler.noteMutexContention(cur)
	cur.scheduler.waitUntil(cur, time.Time{}, func() { m.spin.Unlock() })
}

func (m *RecursiveTimedMutex) TryLock() bool {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	defer m.spin.Unlock()
	if m.owner == cur {
		m.count++
		return true
	}
	if m.owner != nil {
		return false
	}
	m.owner, m.count = cur, 1
	return true
}

func (m *RecursiveTimedMutex) LockUntil(deadline time.Time) bool {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()
	m.spin.Lock()
	if m.owner == nil {
		m.owner, m.count = cur, 1
		m.spin.Unlock()
		return true
	}
	if m.owner == cur {
		m.count++
		m.spin.Unlock()
		return true
	}
	w := &mutexWaiter{fiber: cur}
	w.h.ownerValue = w
	m.waiters.pushBack(&w.h)

	cur.scheduler.noteMutexContention(cur)
	woken := cur.scheduler.waitUntil(cur, deadline, func() { m.spin.Unlock() })
	if woken {
		return true
	}
	m.spin.Lock()
	if m.owner == cur {
		m.spin.Unlock()
		return true
	}
	if w.h.linked {
		m.waiters.remove(&w.h)
	}
	m.spin.Unlock()
	return false
}

func (m *RecursiveTimedMutex) LockFor(timeout time.Duration) bool {
	return m.LockUntil(time.Now().Add(timeout))
}

func (m *RecursiveTimedMutex) Unlock() {
	cur := mustCurrentFiberContext()
	m.spin.Lock()
	if m.owner != cur {
		m.spin.Unlock()
		panic(ErrOperationNotPermitted)
	}
	m.count--
	if m.count > 0 {
		m.spin.Unlock()
		return
	}
	h := m.waiters.popFront()
	if h == nil {
		m.owner = nil
		m.spin.Unlock()
		return
	}
	next := h.owner().(*mutexWaiter).fiber
	m.owner = next
	m.count = 1
	m.spin.Unlock()
	wakeFiber(next)
}
