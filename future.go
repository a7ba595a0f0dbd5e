package fiber

import "time"

// Future is a single-consumer handle onto a [sharedState] (spec.md §4.8,
// boost::fibers::future). Get may be called at most once; a second call
// panics with ErrFutureUninitialized.
type Future[T any] struct {
	state *sharedState[T]
}

// Valid reports whether this Future still refers to a shared state (i.e.
// Get has not yet consumed it).
func (f *Future[T]) Valid() bool { return f.state != nil }

// Get blocks until the associated Promise (or PackagedTask) settles the
// shared state, then returns its value or error, consuming the Future. A
// Future with no shared state, or one already consumed, panics with
// ErrFutureUninitialized. It is an interruption point.
func (f *Future[T]) Get() (T, error) {
	if f.state == nil {
		panic(ErrFutureUninitialized)
	}
	s := f.state
	f.state = nil
	return s.get()
}

// GetUntil is Get bounded by a deadline.
func (f *Future[T]) GetUntil(deadline time.Time) (T, error, WaitStatus) {
	if f.state == nil {
		panic(ErrFutureUninitialized)
	}
	v, err, status := f.state.getUntil(deadline)
	if status == WaitReady {
		f.state = nil
	}
	return v, err, status
}

// IsReady reports whether the result is already available, without
// blocking or consuming the Future.
func (f *Future[T]) IsReady() bool {
	return f.state != nil && f.state.isReady()
}

// Share converts this Future into a [SharedFuture], consuming it. Multiple
// SharedFutures may be produced from the same sharedState, each
// independently re-readable via Get.
func (f *Future[T]) Share() SharedFuture[T] {
	if f.state == nil {
		panic(ErrFutureUninitialized)
	}
	s := f.state
	f.state = nil
	return SharedFuture[T]{state: s}
}

// SharedFuture is a multi-consumer counterpart to Future: Get may be
// called any number of times, from any number of fibers, each blocking
// independently until the shared state settles (spec.md §4.8,
// boost::fibers::shared_future).
type SharedFuture[T any] struct {
	state *sharedState[T]
}

// Valid reports whether this SharedFuture refers to a shared state.
func (f SharedFuture[T]) Valid() bool { return f.state != nil }

// Get blocks until the shared state settles, then returns its value or
// error. Unlike Future.Get, it may be called repeatedly and concurrently
// from multiple fibers. It is an interruption point.
func (f SharedFuture[T]) Get() (T, error) {
	if f.state == nil {
		panic(ErrFutureUninitialized)
	}
	return f.state.get()
}

// GetUntil is Get bounded by a deadline.
func (f SharedFuture[T]) GetUntil(deadline time.Time) (T, error, WaitStatus) {
	if f.state == nil {
		panic(ErrFutureUninitialized)
	}
	return f.state.getUntil(deadline)
}

// IsReady reports whether the result is already available, without
// blocking.
func (f SharedFuture[T]) IsReady() bool {
	return f.state != nil && f.state.isReady()
}
