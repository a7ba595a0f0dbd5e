package fiber

import "time"

// sharedStateWaiter links a blocked fiber onto a sharedState's waiter
// list.
type sharedStateWaiter struct {
	h     hook
	fiber *FiberContext
}

// sharedState is the monotonic, single-assignment cell underlying every
// Promise/Future/SharedFuture/PackagedTask pairing (spec.md §4.8,
// boost::fibers::detail::shared_state): it is settled at most once, with
// either a value or an error, and every subsequent observation sees that
// same outcome forever.
type sharedState[T any] struct {
	spin      spinlock
	settled   bool
	value     T
	err       error
	retrieved bool
	waiters   waitList
}

func newSharedState[T any]() *sharedState[T] { return &sharedState[T]{} }

// setValue settles the state with a value. Panics with
// ErrPromiseAlreadySatisfied if already settled.
func (s *sharedState[T]) setValue(v T) {
	s.settle(v, nil)
}

// setError settles the state with an error (the "exception" case of
// boost::fibers::promise::set_exception).
func (s *sharedState[T]) setError(err error) {
	var zero T
	s.settle(zero, err)
}

func (s *sharedState[T]) settle(v T, err error) {
	s.spin.Lock()
	if s.settled {
		s.spin.Unlock()
		panic(ErrPromiseAlreadySatisfied)
	}
	s.settled = true
	s.value, s.err = v, err
	var woken []*FiberContext
	for h := s.waiters.popFront(); h != nil; h = s.waiters.popFront() {
		woken = append(woken, h.owner().(*sharedStateWaiter).fiber)
	}
	s.spin.Unlock()
	for _, f := range woken {
		wakeFiber(f)
	}
}

// abandon settles the state with ErrBrokenPromise if it was never settled,
// called when a Promise is discarded or garbage collected without being
// satisfied (spec.md §4.8, "destroy promise without satisfying => broken
// promise").
func (s *sharedState[T]) abandon() {
	s.spin.Lock()
	if s.settled {
		s.spin.Unlock()
		return
	}
	s.spin.Unlock()
	s.setError(ErrBrokenPromise)
}

// get blocks the calling fiber until settled, then returns the value and
// error. It is an interruption point.
func (s *sharedState[T]) get() (T, error) {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	s.spin.Lock()
	for !s.settled {
		w := &sharedStateWaiter{fiber: cur}
		w.h.ownerValue = w
		s.waiters.pushBack(&w.h)
		cur.scheduler.waitUntil(cur, time.Time{}, func() { s.spin.Unlock() })
		s.spin.Lock()
		if w.h.linked {
			// settle always unlinks before waking, so still being linked
			// here means this was an interrupt nudge rather than the state
			// actually settling.
			s.waiters.remove(&w.h)
			s.spin.Unlock()
			cur.interruptionPoint()
			s.spin.Lock()
		}
	}
	v, err := s.value, s.err
	s.spin.Unlock()
	return v, err
}

// getUntil is get bounded by a deadline.
func (s *sharedState[T]) getUntil(deadline time.Time) (T, error, WaitStatus) {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	s.spin.Lock()
	for !s.settled {
		w := &sharedStateWaiter{fiber: cur}
		w.h.ownerValue = w
		s.waiters.pushBack(&w.h)
		woken := cur.scheduler.waitUntil(cur, deadline, func() { s.spin.Unlock() })
		s.spin.Lock()
		if s.settled {
			if w.h.linked {
				s.waiters.remove(&w.h)
			}
			break
		}
		if w.h.linked {
			s.waiters.remove(&w.h)
		}
		if !woken {
			s.spin.Unlock()
			var zero T
			return zero, nil, WaitTimeout
		}
		// Woken but not settled and not timed out: an interrupt nudge.
		s.spin.Unlock()
		cur.interruptionPoint()
		s.spin.Lock()
	}
	v, err := s.value, s.err
	s.spin.Unlock()
	return v, err, WaitReady
}

// isReady reports whether the state has settled, without blocking.
func (s *sharedState[T]) isReady() bool {
	s.spin.Lock()
	defer s.spin.Unlock()
	return s.settled
}
