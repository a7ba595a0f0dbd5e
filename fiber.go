package fiber

// Fiber is the public handle returned by [Scheduler.Spawn]: a joinable or
// detachable reference to a running [FiberContext] (spec.md §6,
// boost::fibers::fiber).
type Fiber struct {
	ctx *FiberContext
}

// ID returns the fiber's stable identifier.
func (f *Fiber) ID() FiberID { return f.ctx.ID() }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return f.ctx.State() }

// Joinable reports whether Join has not yet been (and Detach has not been)
// called on this handle.
func (f *Fiber) Joinable() bool {
	f.ctx.mu.Lock()
	defer f.ctx.mu.Unlock()
	return !f.ctx.flagJoinedOrDetached
}

// Join suspends the calling fiber until f terminates, then returns its
// entry function's result and error, propagating any panic recovered from
// it. The calling goroutine must itself be running as a fiber. Join is an
// interruption point; calling it twice is a programming error matching
// boost::fibers::fiber::join's invalid_argument contract and panics with
// ErrInvalidArgument.
func (f *Fiber) Join() (any, error) {
	caller := mustCurrentFiberContext()
	f.ctx.mu.Lock()
	if f.ctx.flagJoinedOrDetached {
		f.ctx.mu.Unlock()
		panic(ErrInvalidArgument)
	}
	f.ctx.flagJoinedOrDetached = true
	f.ctx.mu.Unlock()
	return f.ctx.join(caller)
}

// Detach releases this handle's ownership stake in the fiber without
// waiting for it: the fiber continues running to completion on its own.
// After Detach, Joinable returns false and Join must not be called.
func (f *Fiber) Detach() {
	f.ctx.mu.Lock()
	f.ctx.flagJoinedOrDetached = true
	f.ctx.mu.Unlock()
	f.ctx.release()
}

// Interrupt requests that the fiber be interrupted the next time it
// reaches an interruption point (spec.md §5, interrupt()). It never blocks
// and has no effect on a fiber that has already terminated.
func (f *Fiber) Interrupt() {
	f.ctx.requestInterrupt()
}

// Properties returns the fiber's scheduling-policy properties, settable
// only by a custom [Algorithm] via FiberContext internals at spawn time.
func (f *Fiber) Properties() any { return f.ctx.props }
