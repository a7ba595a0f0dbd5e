package fiber

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a test-and-set lock with exponential backoff, used for the
// short critical sections that protect a primitive's waiter list (spec.md
// §4.4). It MUST NOT be held across a fiber context switch except via the
// post-switch-action handoff documented on [Scheduler.suspend]: holding it
// any other way across a switch would let another fiber observe a waiter
// list in an inconsistent state.
type spinlock struct {
	state atomic.Bool
}

// Lock spins until the lock is acquired, backing off with Gosched to avoid
// burning a whole P while a short critical section elsewhere completes.
func (s *spinlock) Lock() {
	spins := 0
	for !s.state.CompareAndSwap(false, true) {
		spins++
		if spins > 64 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *spinlock) TryLock() bool {
	return s.state.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlock of an unheld lock is a programming
// error and panics, matching the spinlock's role as an internal-only
// primitive never exposed to library users.
func (s *spinlock) Unlock() {
	if !s.state.CompareAndSwap(true, false) {
		panic("fiber: unlock of unlocked spinlock")
	}
}

// hook is an intrusive doubly-linked-list node, embedded by value in
// FiberContext and in every primitive's waiter record, so that wait-queue
// linking and unlinking never allocates (spec.md §4.4). A hook is either
// unlinked (prev == nil && next == nil) or linked into exactly one list.
type hook struct {
	prev, next *hook
	linked     bool
	// ownerValue recovers the struct a hook is embedded in without a Go
	// container_of: every hook-embedding type sets this to itself at
	// construction time.
	ownerValue any
}

// waitList is an intrusive FIFO list of hooks, used for mutex/CV/barrier/
// channel waiter queues. The zero value is an empty list.
type waitList struct {
	head, tail *hook
	length     int
}

// pushBack links h onto the back of the list. h must not already be linked
// into any list.
func (l *waitList) pushBack(h *hook) {
	h.prev = l.tail
	h.next = nil
	h.linked = true
	if l.tail != nil {
		l.tail.next = h
	} else {
		l.head = h
	}
	l.tail = h
	l.length++
}

// popFront unlinks and returns the front of the list, or nil if empty.
func (l *waitList) popFront() *hook {
	h := l.head
	if h == nil {
		return nil
	}
	l.remove(h)
	return h
}

// remove unlinks h from the list. h must currently be linked into this
// list; behavior is undefined otherwise.
func (l *waitList) remove(h *hook) {
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		l.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	} else {
		l.tail = h.prev
	}
	h.prev = nil
	h.next = nil
	h.linked = false
	l.length--
}

// Len returns the number of linked hooks.
func (l *waitList) Len() int { return l.length }

// Empty reports whether the list has no linked hooks.
func (l *waitList) Empty() bool { return l.length == 0 }
