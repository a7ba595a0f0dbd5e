package fiber

import (
	"sync"
	"time"
)

// readyLenCounter is optionally implemented by an Algorithm to report its
// ready-queue depth for QueueMetrics.ReadyDepth; an Algorithm that doesn't
// implement it simply leaves that gauge at its last sampled value.
type readyLenCounter interface {
	readyLen() int
}

// notifierBinder is optionally implemented by an Algorithm so
// WithSuspendNotifier's value can be spliced in after construction, once
// NewScheduler has resolved options (spec.md §4.1, Algorithm::suspend_until/
// notify). All three built-in algorithms implement it.
type notifierBinder interface {
	setNotifier(SuspendNotifier)
}

// Algorithm is the pluggable scheduling policy a [Scheduler] delegates
// ready-queue order and idle behavior to (spec.md §4.1, boost::fibers::
// algo::algorithm). Implementations are owned by exactly one Scheduler.
// Notify may be called from any goroutine; the other methods run on
// whichever goroutine currently holds that scheduler's baton, except that a
// WorkStealingAlgorithm is also stolen from by its peers' dispatch loops.
type Algorithm interface {
	// Awakened is called whenever a fiber transitions to Ready, including
	// the first time it is spawned. The Algorithm must link it into
	// whatever ready-order structure it maintains.
	Awakened(f *FiberContext)

	// PickNext removes and returns the next fiber to run, or (nil, false)
	// if none is ready.
	PickNext() (*FiberContext, bool)

	// HasReadyFibers reports whether PickNext would currently succeed,
	// without mutating state.
	HasReadyFibers() bool

	// SuspendUntil is called when the dispatch loop has no ready fiber and
	// no due timer; it should block for at most until tp (the zero Time
	// means no pending timer at all) or until Notify is called, whichever
	// is first.
	SuspendUntil(tp time.Time)

	// Notify interrupts a concurrent SuspendUntil, called whenever another
	// goroutine pushes work onto the scheduler's remote-ready inbox.
	Notify()
}

// SuspendNotifier lets an embedder splice an external reactor into a
// Scheduler's idle path, corresponding to a custom Algorithm's
// suspend_until/notify pair integrating with e.g. epoll (spec.md §4.1).
type SuspendNotifier interface {
	SuspendUntil(tp time.Time)
	Notify()
}

// fifoAlgorithm is the default scheduling policy: a plain FIFO ready queue,
// intrusively linked through FiberContext.readyHook (spec.md §9, "unify on
// the round_robin vintage").
type fifoAlgorithm struct {
	ready    waitList
	notifier SuspendNotifier
	wake     chan struct{}
}

// NewFIFOAlgorithm returns the default round-robin scheduling Algorithm.
func NewFIFOAlgorithm() Algorithm {
	return &fifoAlgorithm{wake: make(chan struct{}, 1)}
}

func (a *fifoAlgorithm) Awakened(f *FiberContext) {
	f.readyHook.ownerValue = f
	a.ready.pushBack(&f.readyHook)
}

func (a *fifoAlgorithm) PickNext() (*FiberContext, bool) {
	h := a.ready.popFront()
	if h == nil {
		return nil, false
	}
	return h.owner().(*FiberContext), true
}

func (a *fifoAlgorithm) HasReadyFibers() bool { return !a.ready.Empty() }

func (a *fifoAlgorithm) readyLen() int { return a.ready.Len() }

func (a *fifoAlgorithm) setNotifier(n SuspendNotifier) { a.notifier = n }

func (a *fifoAlgorithm) SuspendUntil(tp time.Time) {
	if a.notifier != nil {
		a.notifier.SuspendUntil(tp)
		return
	}
	var timer *time.Timer
	var c <-chan time.Time
	if !tp.IsZero() {
		d := time.Until(tp)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		c = timer.C
		defer timer.Stop()
	}
	select {
	case <-a.wake:
	case <-c:
	}
}

func (a *fifoAlgorithm) Notify() {
	if a.notifier != nil {
		a.notifier.Notify()
		return
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Priority is the property this package's default PropertyAlgorithm sorts
// on, higher running first, mirroring boost::fibers::algo::priority's
// example property.
type Priority int

// priorityProps is the per-fiber property record a [PropertyAlgorithm]
// reads via FiberContext.props.
type priorityProps struct {
	Priority Priority
}

// propertyHook links a fiber into one of PropertyAlgorithm's per-priority
// FIFO buckets.
type propertyHook struct {
	h hook
	f *FiberContext
}

// PropertyAlgorithm is a priority-aware scheduling policy: fibers carrying
// higher Priority in their properties run before lower-priority ones;
// fibers with equal priority run FIFO (spec.md §4.1, boost::fibers::algo::
// algorithm_with_properties).
type PropertyAlgorithm struct {
	buckets  map[Priority]*waitList
	order    []Priority
	notifier SuspendNotifier
	wake     chan struct{}
}

// NewPropertyAlgorithm returns a priority-aware scheduling Algorithm. Fibers
// without a *priorityProps in FiberContext.props are treated as Priority 0.
func NewPropertyAlgorithm() *PropertyAlgorithm {
	return &PropertyAlgorithm{
		buckets: make(map[Priority]*waitList),
		wake:    make(chan struct{}, 1),
	}
}

func (a *PropertyAlgorithm) priorityOf(f *FiberContext) Priority {
	if p, ok := f.props.(*priorityProps); ok {
		return p.Priority
	}
	return 0
}

func (a *PropertyAlgorithm) Awakened(f *FiberContext) {
	p := a.priorityOf(f)
	l, ok := a.buckets[p]
	if !ok {
		l = &waitList{}
		a.buckets[p] = l
		a.order = insertPrioritySorted(a.order, p)
	}
	ph := &propertyHook{f: f}
	ph.h.ownerValue = ph
	l.pushBack(&ph.h)
}

func insertPrioritySorted(order []Priority, p Priority) []Priority {
	i := 0
	for i < len(order) && order[i] > p {
		i++
	}
	order = append(order, 0)
	copy(order[i+1:], order[i:])
	order[i] = p
	return order
}

func (a *PropertyAlgorithm) PickNext() (*FiberContext, bool) {
	for _, p := range a.order {
		l := a.buckets[p]
		if l == nil || l.Empty() {
			continue
		}
		h := l.popFront()
		return h.owner().(*propertyHook).f, true
	}
	return nil, false
}

func (a *PropertyAlgorithm) HasReadyFibers() bool {
	for _, l := range a.buckets {
		if !l.Empty() {
			return true
		}
	}
	return false
}

func (a *PropertyAlgorithm) readyLen() int {
	n := 0
	for _, l := range a.buckets {
		n += l.Len()
	}
	return n
}

func (a *PropertyAlgorithm) setNotifier(n SuspendNotifier) { a.notifier = n }

func (a *PropertyAlgorithm) SuspendUntil(tp time.Time) {
	if a.notifier != nil {
		a.notifier.SuspendUntil(tp)
		return
	}
	var c <-chan time.Time
	if !tp.IsZero() {
		d := time.Until(tp)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		c = timer.C
	}
	select {
	case <-a.wake:
	case <-c:
	}
}

func (a *PropertyAlgorithm) Notify() {
	if a.notifier != nil {
		a.notifier.Notify()
		return
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Stealer is implemented by a scheduling Algorithm that supports donating
// ready fibers to an idle peer.
type Stealer interface {
	// Steal removes and returns one ready fiber eligible for migration
	// (i.e. without ThreadAffinity), or (nil, false) if none qualifies.
	Steal() (*FiberContext, bool)
}

// WorkStealingAlgorithm is a FIFO policy augmented with a Steal method that
// skips ThreadAffinity-pinned fibers, and a PickNext that, failing to find
// local work, pulls from registered peers (spec.md §4.1 and §9: "work-
// stealing fibers sit in zero queues while in transit").
type WorkStealingAlgorithm struct {
	// mu guards ready: unlike fifoAlgorithm/PropertyAlgorithm, this
	// algorithm's ready list is touched from a second goroutine whenever a
	// peer's dispatch loop calls Steal, so the single-baton invariant the
	// other two rely on does not hold here.
	mu    sync.Mutex
	ready waitList
	peers []*WorkStealingAlgorithm

	// owner is the Scheduler this algorithm was installed into, bound by
	// NewScheduler. Steal's caller uses the peer's owner to migrate a stolen
	// fiber's bookkeeping to the stealing scheduler.
	owner *Scheduler

	notifier SuspendNotifier
	wake     chan struct{}
}

// NewWorkStealingAlgorithm returns a work-stealing scheduling Algorithm.
// Call LinkPeers on every instance sharing a steal domain before any
// Scheduler using them starts running.
func NewWorkStealingAlgorithm() *WorkStealingAlgorithm {
	return &WorkStealingAlgorithm{wake: make(chan struct{}, 1)}
}

// LinkPeers registers the set of algorithms this instance may steal from.
// Not safe to call concurrently with any linked scheduler's dispatch loop.
func LinkPeers(algorithms ...*WorkStealingAlgorithm) {
	for _, a := range algorithms {
		for _, p := range algorithms {
			if p != a {
				a.peers = append(a.peers, p)
			}
		}
	}
}

// bindScheduler records the Scheduler this algorithm was installed into.
// Called once by NewScheduler; never concurrently with any dispatch loop.
func (a *WorkStealingAlgorithm) bindScheduler(s *Scheduler) { a.owner = s }

func (a *WorkStealingAlgorithm) Awakened(f *FiberContext) {
	f.readyHook.ownerValue = f
	a.mu.Lock()
	a.ready.pushBack(&f.readyHook)
	a.mu.Unlock()
}

func (a *WorkStealingAlgorithm) PickNext() (*FiberContext, bool) {
	a.mu.Lock()
	h := a.ready.popFront()
	a.mu.Unlock()
	if h != nil {
		return h.owner().(*FiberContext), true
	}
	for _, p := range a.peers {
		if f, ok := p.Steal(); ok {
			// f was linked into no queue at all between p's removal and
			// here (spec.md §9); adopting it into a.owner's bookkeeping is
			// what ends that transit, and must happen before the caller's
			// switchTo so every subsequent suspend routes through the
			// right scheduler's baton channels.
			if a.owner != nil {
				a.owner.adoptStolenFiber(f)
			}
			return f, true
		}
	}
	return nil, false
}

// Steal removes and returns one non-pinned ready fiber from the back of
// this algorithm's queue (the end least likely to be picked next locally,
// reducing contention with the owning scheduler's own PickNext), or
// (nil, false) if none qualifies. The returned fiber is, for the instant
// between removal here and the caller's adoptStolenFiber, linked into no
// queue at all. Safe to call from a goroutine other than the owning
// scheduler's dispatch loop, which is the normal case: the caller is
// always a peer's PickNext.
func (a *WorkStealingAlgorithm) Steal() (*FiberContext, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for h := a.ready.tail; h != nil; h = h.prev {
		f := h.owner().(*FiberContext)
		if f.ThreadAffinity() {
			continue
		}
		a.ready.remove(h)
		return f, true
	}
	return nil, false
}

func (a *WorkStealingAlgorithm) HasReadyFibers() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.ready.Empty()
}

func (a *WorkStealingAlgorithm) readyLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready.Len()
}

func (a *WorkStealingAlgorithm) setNotifier(n SuspendNotifier) { a.notifier = n }

func (a *WorkStealingAlgorithm) SuspendUntil(tp time.Time) {
	if a.notifier != nil {
		a.notifier.SuspendUntil(tp)
		return
	}
	var c <-chan time.Time
	if !tp.IsZero() {
		d := time.Until(tp)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		c = timer.C
	}
	select {
	case <-a.wake:
	case <-c:
	}
}

func (a *WorkStealingAlgorithm) Notify() {
	if a.notifier != nil {
		a.notifier.Notify()
		return
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
}
