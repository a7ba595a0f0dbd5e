package fiber

// waitAnyResult carries one joined fiber's outcome back to WaitForAny's
// caller along with which input index it came from.
type waitAnyResult struct {
	index int
	err   error
}

// WaitForAll blocks the calling fiber until every fiber in fibers has
// terminated, returning each one's Join error at the corresponding index.
// Unlike WaitForAny it needs no helper fibers or channel: joins are simply
// issued in order, which costs nothing extra since a fiber that finishes
// before its turn to be joined just sits Terminated until collected
// (generalizes boost::fibers::barrier-based wait_all_simple from
// original_source/examples/wait_stuff.cpp to return values instead of
// discarding them).
func WaitForAll(fibers ...*Fiber) []error {
	errs := make([]error, len(fibers))
	for i, f := range fibers {
		_, err := f.Join()
		errs[i] = err
	}
	return errs
}

// WaitForAny blocks the calling fiber until the first of fibers terminates,
// returning its index and Join error; the rest continue running undisturbed
// and must still be Joined or Detached by the caller. Panics with
// ErrInvalidArgument if fibers is empty. Grounded on
// original_source/examples/wait_stuff.cpp's wait_first_outcome: one helper
// fiber per input races its Join result into a shared channel, the first
// arrival wins.
func WaitForAny(fibers ...*Fiber) (int, error) {
	if len(fibers) == 0 {
		panic(ErrInvalidArgument)
	}
	cur := mustCurrentFiberContext()
	results := NewBoundedChannel[waitAnyResult](len(fibers), 0)

	for i, f := range fibers {
		i, f := i, f
		cur.scheduler.Spawn(func() (any, error) {
			// Joins through the context, not the handle, so the handle
			// stays Joinable for the caller.
			_, err := f.ctx.join(mustCurrentFiberContext())
			results.Push(waitAnyResult{index: i, err: err})
			return nil, nil
		}, Attributes{})
	}

	r, _ := results.Pop()
	return r.index, r.err
}

// waitAnyFutureResult carries one settled future's outcome back to
// WaitForAnyFuture's caller along with which input index it came from.
type waitAnyFutureResult[T any] struct {
	index int
	value T
	err   error
}

// WaitForAllFutures blocks the calling fiber until every future in futures
// has settled, returning each one's value and error at the corresponding
// index. The futures-based sibling of WaitForAll, generalizing boost::
// fibers::wait_for_all's futures overload (spec.md §4.8) the same way
// WaitForAll generalizes its fiber overload: gets are simply issued in
// order, since a future that settles before its turn just sits settled
// until collected.
func WaitForAllFutures[T any](futures ...Future[T]) ([]T, []error) {
	vals := make([]T, len(futures))
	errs := make([]error, len(futures))
	for i := range futures {
		vals[i], errs[i] = futures[i].Get()
	}
	return vals, errs
}

// WaitForAnyFuture blocks the calling fiber until the first of futures
// settles, returning its index, value, and error; the rest continue
// settling independently and must still be Get by the caller if their
// results matter. Panics with ErrInvalidArgument if futures is empty. The
// futures-based sibling of WaitForAny (spec.md §4.8's wait_for_any): one
// helper fiber per input races its Get result into a shared channel, the
// first arrival wins.
func WaitForAnyFuture[T any](futures ...Future[T]) (int, T, error) {
	if len(futures) == 0 {
		panic(ErrInvalidArgument)
	}
	cur := mustCurrentFiberContext()
	results := NewBoundedChannel[waitAnyFutureResult[T]](len(futures), 0)

	for i, f := range futures {
		i, f := i, f
		cur.scheduler.Spawn(func() (any, error) {
			v, err := f.Get()
			results.Push(waitAnyFutureResult[T]{index: i, value: v, err: err})
			return nil, nil
		}, Attributes{})
	}

	r, _ := results.Pop()
	return r.index, r.value, r.err
}
