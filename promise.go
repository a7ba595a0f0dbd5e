package fiber

import "runtime"

// Promise is the producer side of a [Future] (spec.md §4.8,
// boost::fibers::promise). GetFuture may be called at most once; a second
// call panics with ErrFutureAlreadyRetrieved. A Promise discarded without
// SetValue/SetError being called settles its Future with
// ErrBrokenPromise, enforced deterministically by Discard and, best-
// effort, by a finalizer for callers that simply let it go out of scope.
type Promise[T any] struct {
	state     *sharedState[T]
	retrieved bool
}

// NewPromise constructs an unsatisfied Promise.
func NewPromise[T any]() *Promise[T] {
	p := &Promise[T]{state: newSharedState[T]()}
	runtime.SetFinalizer(p, func(p *Promise[T]) { p.state.abandon() })
	return p
}

// GetFuture returns the single [Future] associated with this Promise.
// Panics with ErrFutureAlreadyRetrieved if called more than once.
func (p *Promise[T]) GetFuture() Future[T] {
	if p.retrieved {
		panic(ErrFutureAlreadyRetrieved)
	}
	p.retrieved = true
	return Future[T]{state: p.state}
}

// SetValue settles the Promise's Future with v. Panics with
// ErrPromiseAlreadySatisfied if already settled.
func (p *Promise[T]) SetValue(v T) {
	p.state.setValue(v)
	runtime.SetFinalizer(p, nil)
}

// SetError settles the Promise's Future with err, the equivalent of
// boost::fibers::promise::set_exception.
func (p *Promise[T]) SetError(err error) {
	p.state.setError(err)
	runtime.SetFinalizer(p, nil)
}

// Discard abandons the Promise deterministically: if it has not already
// been settled, its Future (and any SharedFutures derived from it) observe
// ErrBrokenPromise. Safe to call after SetValue/SetError; it is then a
// no-op.
func (p *Promise[T]) Discard() {
	p.state.abandon()
	runtime.SetFinalizer(p, nil)
}
