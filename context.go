package fiber

import (
	"sync/atomic"
	"time"
)

// FiberID uniquely identifies a fiber for its lifetime.
type FiberID uint64

var fiberIDCounter atomic.Uint64

func nextFiberID() FiberID {
	return FiberID(fiberIDCounter.Add(1))
}

// wakeReason records why a Waiting fiber was most recently transitioned
// back to Ready, so the dispatch loop can report it through wait_until's
// boolean result (spec.md §4.3) without a race between a timeout sweep and
// a concurrent notification.
type wakeReason int

const (
	wakeNone wakeReason = iota
	wakeNotify
	wakeTimeout
)

// resumeMsg is the payload sent across a fiber's private resume channel
// when the dispatch loop hands it the baton. It is the entirety of what
// crosses the synthesized switch_context boundary (spec.md §4.1): a signal
// to either run normally or unwind.
type resumeMsg struct {
	forceUnwind  bool
	wokenByNotify bool
}

// fssEntry pairs a fiber-specific-storage value with its cleanup function
// (spec.md §4.9).
type fssEntry struct {
	value   any
	cleanup func(any)
}

// joinWaiter links a joining fiber onto a target's joiners list.
type joinWaiter struct {
	h     hook
	fiber *FiberContext
}

// FiberContext is a single fiber: a stack (realized as a dedicated Go
// goroutine), its control block, and its ownership graph (joiners,
// fiber-specific storage, properties). See spec.md §3 and SPEC_FULL.md's
// note on how component (A), the stack-switch primitive, is synthesized
// from a goroutine parked on FiberContext.resume.
type FiberContext struct {
	id FiberID

	// scheduler owns this fiber's baton channels and ready/worker
	// bookkeeping. Set once at creation; reassigned at most once after
	// that, by Scheduler.adoptStolenFiber when a WorkStealingAlgorithm
	// migrates this fiber to a new owner. Code running on this fiber's own
	// goroutine reads it directly; a cross-goroutine wakeFiber call reads it
	// through currentScheduler/mu, since a migration can race that call.
	scheduler *Scheduler
	attrs     Attributes
	entry     func() (any, error)

	// resume is the baton channel: the dispatch loop sends on it to hand
	// this fiber control; the fiber's own goroutine blocks receiving from
	// it whenever it is not the active fiber.
	resume chan resumeMsg

	// started is true once the backing goroutine has been launched. Set
	// only by the owning scheduler while holding the baton.
	started bool

	// mu guards every field below that may be observed or mutated from a
	// goroutine other than whichever currently holds this fiber's
	// scheduler's baton (e.g. Interrupt() called cross-fiber, Join() called
	// concurrently with termination).
	mu                    spinlock
	state                 FiberState
	flagMainContext       bool
	flagDispatcherContext bool
	flagInterruptBlocked  bool
	flagInterruptRequest  bool
	flagForcedUnwind      bool
	flagTerminated        bool
	flagJoinedOrDetached  bool

	result any
	err    error

	joiners waitList
	fss     map[any]*fssEntry
	props   any

	wake wakeReason

	// sleepIndex is this fiber's position in its scheduler's sleep heap, or
	// -1 if not linked. Maintained by container/heap's Swap/Push/Pop.
	sleepIndex int
	tp         time.Time

	// readyHook/workerHook are intrusive list nodes used by the scheduling
	// Algorithm and the scheduler's worker set respectively.
	readyHook  hook
	workerHook hook

	useCount atomic.Int32
}

// newFiberContext allocates a fiber in state Ready with use-count 1,
// matching FiberContext.create's contract in spec.md §4.2. The caller is
// responsible for attaching it to a scheduler.
func newFiberContext(s *Scheduler, entry func() (any, error), attrs Attributes) *FiberContext {
	f := &FiberContext{
		id:         nextFiberID(),
		scheduler:  s,
		attrs:      attrs,
		entry:      entry,
		resume:     make(chan resumeMsg),
		state:      Ready,
		fss:        nil,
		sleepIndex: -1,
	}
	f.useCount.Store(1)
	return f
}

// ID returns the fiber's stable identifier.
func (f *FiberContext) ID() FiberID { return f.id }

// currentScheduler returns the fiber's owning scheduler, synchronized
// against a concurrent Scheduler.adoptStolenFiber reassignment.
func (f *FiberContext) currentScheduler() *Scheduler {
	f.mu.Lock()
	s := f.scheduler
	f.mu.Unlock()
	return s
}

// State returns the fiber's current lifecycle state.
func (f *FiberContext) State() FiberState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// StackSizeHint returns the stack-size hint supplied at spawn time. It is
// informational only: the Go runtime grows the backing goroutine's real
// stack automatically, so this value does not bound anything.
func (f *FiberContext) StackSizeHint() int { return f.attrs.StackSize }

// ThreadAffinity reports whether this fiber is pinned to its current
// scheduler and must never migrate (spec.md §3 invariant vi).
func (f *FiberContext) ThreadAffinity() bool { return f.attrs.ThreadAffinity }

func (f *FiberContext) retain() { f.useCount.Add(1) }

func (f *FiberContext) release() { f.useCount.Add(-1) }

// setState sets the fiber's state under its spinlock.
func (f *FiberContext) setState(s FiberState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// interruptionPoint is the interruption check named throughout spec.md §5:
// join, sleep_until, future::get, CV waits, mutex lock, and channel
// push/pop all call this at entry. If InterruptionRequested is set and
// InterruptionBlocked is not, the flag is consumed and ErrFiberInterrupted
// propagates by panic, to be recovered either by a user-installed recover
// or by the fiber trampoline, which records it as the fiber's join error.
func (f *FiberContext) interruptionPoint() {
	f.mu.Lock()
	if f.flagInterruptRequest && !f.flagInterruptBlocked {
		f.flagInterruptRequest = false
		f.mu.Unlock()
		panic(ErrFiberInterrupted)
	}
	f.mu.Unlock()
}

// disableInterruption blocks interruption delivery until the returned
// function is called, implementing this_fiber::disable_interruption's
// scoped RAII contract as a plain restore closure (spec.md §6).
func (f *FiberContext) disableInterruption() (restore func()) {
	f.mu.Lock()
	prev := f.flagInterruptBlocked
	f.flagInterruptBlocked = true
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.flagInterruptBlocked = prev
		f.mu.Unlock()
	}
}

// requestInterrupt sets InterruptionRequested, per interrupt()'s contract
// (spec.md §4.2). If the target is currently Waiting it is also nudged
// awake, so a fiber blocked in join/sleep_until/CV-wait/channel push-pop
// observes the request at its next interruption point promptly rather than
// only once whatever it was waiting for eventually arrives (spec.md §8's
// "interruption of sleep" case: must return within 100ms of interrupt, not
// wait out the sleep).
func (f *FiberContext) requestInterrupt() {
	f.mu.Lock()
	f.flagInterruptRequest = true
	waiting := f.state == Waiting
	f.mu.Unlock()
	if waiting {
		wakeFiber(f)
	}
}

// join suspends the calling fiber until f terminates, per spec.md §4.2. It
// is itself an interruption point.
func (f *FiberContext) join(caller *FiberContext) (any, error) {
	caller.interruptionPoint()

	f.mu.Lock()
	if f.state == Terminated {
		result, err := f.result, f.err
		f.mu.Unlock()
		return result, err
	}
	jw := &joinWaiter{fiber: caller}
	jw.h.ownerValue = jw
	f.joiners.pushBack(&jw.h)
	f.mu.Unlock()

	for {
		caller.scheduler.waitUntil(caller, time.Time{}, nil)

		f.mu.Lock()
		if f.state == Terminated {
			result, err := f.result, f.err
			f.mu.Unlock()
			return result, err
		}
		// Woken without f having terminated: an interrupt nudge (finish
		// always unlinks jw before waking, so only requestInterrupt's
		// early wake reaches here). Unlink before checking, so a firing
		// interruption doesn't leave a stale joiners entry.
		if jw.h.linked {
			f.joiners.remove(&jw.h)
		}
		f.mu.Unlock()

		caller.interruptionPoint()

		// Interruption is currently blocked: relink and keep waiting.
		f.mu.Lock()
		if f.state == Terminated {
			result, err := f.result, f.err
			f.mu.Unlock()
			return result, err
		}
		f.joiners.pushBack(&jw.h)
		f.mu.Unlock()
	}
}

// finish runs the termination algorithm from spec.md §4.2: mark
// Terminated, wake joiners (on their own schedulers), and run FSS cleanup.
// Its caller, startFiberGoroutine, then hands control back to the
// dispatcher so it can retire this fiber.
func (f *FiberContext) finish(result any, err error) {
	f.mu.Lock()
	f.state = Terminated
	f.flagTerminated = true
	f.result, f.err = result, err
	var joiners []*FiberContext
	for h := f.joiners.popFront(); h != nil; h = f.joiners.popFront() {
		joiners = append(joiners, h.owner().(*joinWaiter).fiber)
	}
	cleanups := make([]*fssEntry, 0, len(f.fss))
	for _, e := range f.fss {
		cleanups = append(cleanups, e)
	}
	f.fss = nil
	f.mu.Unlock()

	for _, j := range joiners {
		wakeFiber(j)
	}
	for _, e := range cleanups {
		if e.cleanup != nil {
			e.cleanup(e.value)
		}
	}
}

// owner recovers the struct a hook is embedded in, set at construction time
// since Go has no container_of.
func (h *hook) owner() any {
	return h.ownerValue
}
