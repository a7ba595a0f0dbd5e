package fiber

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// sleepQueue is a min-heap of fibers ordered by wake time, implementing
// heap.Interface so an interrupted or explicitly-woken fiber can be removed
// in O(log n) rather than only ever popped from the front. Grounded on
// eventloop's timerHeap, generalized with an index field for removal.
type sleepQueue []*FiberContext

func (q sleepQueue) Len() int { return len(q) }
func (q sleepQueue) Less(i, j int) bool { return q[i].tp.Before(q[j].tp) }
func (q sleepQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].sleepIndex = i
	q[j].sleepIndex = j
}
func (q *sleepQueue) Push(x any) {
	f := x.(*FiberContext)
	f.sleepIndex = len(*q)
	*q = append(*q, f)
}
func (q *sleepQueue) Pop() any {
	old := *q
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	f.sleepIndex = -1
	*q = old[:n-1]
	return f
}

// Scheduler is a single fiber dispatch loop: the Go analogue of one OS
// thread's fiber_manager + scheduler pair (spec.md §4.1, §9 "unify on the
// newer fiber_context/scheduler vintage"). Every FiberContext it manages
// runs on its own backing goroutine, but the Scheduler enforces that only
// one such goroutine (or its own Run goroutine, standing in for the
// implicit main fiber) ever executes unblocked at a time, through the
// resume/backToDispatcher baton channels.
type Scheduler struct {
	opts *schedulerOptions

	state *schedulerFastState

	algorithm       Algorithm
	logger          Logger
	metrics         *Metrics
	registry        *registry
	idlePollInterval time.Duration

	// loopGoroutineID identifies the goroutine that called Run, which plays
	// the role of the implicit main fiber: it is the goroutine "holding the
	// baton" whenever no spawned fiber is.
	loopGoroutineID uint64
	mainFiber       *FiberContext

	// backToDispatcher is the shared channel every fiber goroutine of this
	// scheduler sends on to hand control back to the dispatch loop. It
	// carries the post-switch action to run, or nil.
	backToDispatcher chan func()

	sleep sleepQueue

	// remoteMu guards remoteReady, the only structure in this type touched
	// from goroutines that are not currently holding this scheduler's
	// baton (spec.md §4.1, set_remote_ready).
	remoteMu    sync.Mutex
	remoteReady []*FiberContext
	spawnQueue  []*FiberContext

	// workerMu guards worker. Ordinarily worker is only ever touched by
	// whichever goroutine holds this scheduler's baton, but a
	// WorkStealingAlgorithm's Steal runs on a *peer* scheduler's dispatch
	// loop, so adoptStolenFiber needs real synchronization here, not just
	// the baton invariant.
	workerMu sync.Mutex
	worker   map[FiberID]*FiberContext

	shutdownRequested bool
}

// algorithmSchedulerBinder is optionally implemented by an Algorithm that
// needs a back-reference to the Scheduler it was installed into, e.g. a
// WorkStealingAlgorithm reassigning a stolen fiber's bookkeeping to its new
// owner.
type algorithmSchedulerBinder interface {
	bindScheduler(s *Scheduler)
}

// NewScheduler constructs a Scheduler. Call Run to start its dispatch loop;
// Run must be called from the goroutine that will host it, and blocks
// until Shutdown (or the supplied context) ends the loop.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		// Construction-time option errors are a programming error; mirrors
		// eventloop's pattern of surfacing them immediately rather than
		// deferring to first use.
		panic(err)
	}
	s := &Scheduler{
		opts:             cfg,
		state:            newSchedulerFastState(),
		algorithm:        cfg.algorithm,
		logger:           cfg.logger,
		idlePollInterval: cfg.idlePollInterval,
		backToDispatcher: make(chan func()),
		worker:           make(map[FiberID]*FiberContext),
	}
	if cfg.metricsEnabled {
		s.metrics = newMetrics()
	}
	s.registry = newRegistry()
	if b, ok := s.algorithm.(algorithmSchedulerBinder); ok {
		b.bindScheduler(s)
	}
	if cfg.suspendNotifier != nil {
		if n, ok := s.algorithm.(notifierBinder); ok {
			n.setNotifier(cfg.suspendNotifier)
		}
	}
	return s
}

// Metrics returns the scheduler's runtime metrics, or nil if WithMetrics
// was not enabled.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// registryScavengeBatch bounds how much of the fiber registry's ring buffer
// Scavenge walks per dispatch-loop iteration, mirroring eventloop's
// registry.Scavenge(20) call from its own tick.
const registryScavengeBatch = 20

// Scavenge walks up to batchSize entries of the fiber registry, dropping
// any whose weak pointer has already been collected. Called once per
// dispatch-loop iteration so the registry never grows unbounded across a
// long-running scheduler; exported so an embedder driving a custom idle
// loop can call it directly too.
func (s *Scheduler) Scavenge(batchSize int) {
	s.registry.Scavenge(batchSize)
}

// sampleQueueDepths refreshes the scheduler's queue-depth gauges, if
// metrics are enabled. Called once per dispatch-loop iteration, alongside
// Scavenge, so QueueMetrics reflects a recent snapshot rather than staying
// permanently at zero.
func (s *Scheduler) sampleQueueDepths() {
	if s.metrics == nil {
		return
	}
	if rc, ok := s.algorithm.(readyLenCounter); ok {
		s.metrics.Queue.ReadyDepth.Store(int64(rc.readyLen()))
	}
	s.metrics.Queue.SleepDepth.Store(int64(len(s.sleep)))
	s.remoteMu.Lock()
	remote := int64(len(s.remoteReady) + len(s.spawnQueue))
	s.remoteMu.Unlock()
	s.metrics.Queue.RemoteDepth.Store(remote)
}

// noteMutexContention records that a fiber found a Mutex/RecursiveMutex/
// TimedMutex already held and had to actually block, rather than acquiring
// it immediately.
func (s *Scheduler) noteMutexContention(f *FiberContext) {
	if s.metrics != nil {
		s.metrics.Contention.Mutex.Add(1)
	}
	s.logContention("mutex", f)
}

// noteCondContention records that a fiber had to block in Cond.Wait/
// WaitUntil rather than being notified immediately.
func (s *Scheduler) noteCondContention(f *FiberContext) {
	if s.metrics != nil {
		s.metrics.Contention.Cond.Add(1)
	}
	s.logContention("cond", f)
}

// noteChannelContention records that a fiber blocked on a channel push or
// pop (full buffer or empty buffer).
func (s *Scheduler) noteChannelContention(f *FiberContext) {
	if s.metrics != nil {
		s.metrics.Contention.Channel.Add(1)
	}
	s.logContention("channel", f)
}

func (s *Scheduler) logContention(category string, f *FiberContext) {
	s.logger.Log(LogEntry{
		Level:    LevelDebug,
		Category: category,
		FiberID:  f.id,
		Message:  category + " contended, fiber blocked",
	})
}

// Run starts the dispatch loop on the calling goroutine and blocks until
// ctx is done or Shutdown is called. It must be called at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.TryTransition(StateAwake, StateRunning) {
		return ErrSchedulerAlreadyRunning
	}
	s.loopGoroutineID = getGoroutineID()
	s.mainFiber = &FiberContext{
		id:         nextFiberID(),
		scheduler:  s,
		state:      Running,
		sleepIndex: -1,
		flagMainContext: true,
	}
	registerFiberGoroutine(s.mainFiber)
	defer unregisterFiberGoroutine()

	s.logger.Log(LogEntry{Level: LevelInfo, Message: "scheduler started"})

	for {
		select {
		case <-ctx.Done():
			s.beginShutdown()
		default:
		}

		s.drainSpawnQueue()
		s.drainRemoteReady()
		s.sweepSleepQueue()
		s.Scavenge(registryScavengeBatch)
		s.sampleQueueDepths()

		if f, ok := s.algorithm.PickNext(); ok {
			s.switchTo(f)
			s.pruneWorker(f)
			continue
		}

		if s.shutdownRequested && len(s.worker) == 0 {
			break
		}

		s.idle(ctx)

		if s.shutdownRequested && len(s.worker) == 0 && !s.algorithm.HasReadyFibers() {
			break
		}
	}

	s.state.Store(StateTerminated)
	s.logger.Log(LogEntry{Level: LevelInfo, Message: "scheduler stopped"})
	return nil
}

// idle blocks briefly when there is no ready fiber and no algorithm-level
// wake pending, bounded by the earliest sleep-queue deadline or
// idlePollInterval, whichever comes first. A context cancellation is not
// watched here; Run observes it on its next iteration.
func (s *Scheduler) idle(ctx context.Context) {
	s.state.TryTransition(StateRunning, StateSleeping)
	defer s.state.TryTransition(StateSleeping, StateRunning)

	tp := time.Now().Add(s.idlePollInterval)
	if len(s.sleep) > 0 && s.sleep[0].tp.Before(tp) {
		tp = s.sleep[0].tp
	}
	s.algorithm.SuspendUntil(tp)
	_ = ctx
}

// beginShutdown marks the scheduler as draining: the dispatch loop stops
// once no fibers remain attached, and fibers already attached run to
// completion. Spawn does not check this flag.
func (s *Scheduler) beginShutdown() {
	s.state.TryTransition(StateRunning, StateTerminating)
	s.state.TryTransition(StateSleeping, StateTerminating)
	s.shutdownRequested = true
}

// Shutdown requests the dispatch loop drain and stop. It does not forcibly
// kill in-flight fibers; callers that need that should Interrupt them
// explicitly before calling Shutdown.
func (s *Scheduler) Shutdown() {
	s.beginShutdown()
	s.algorithm.Notify()
}

// Closed reports whether the dispatch loop has fully stopped.
func (s *Scheduler) Closed() bool { return s.state.Load() == StateTerminated }

// Spawn creates a new fiber running entry and schedules it. Safe to call
// both from within a fiber running on this scheduler and from any other
// goroutine.
func (s *Scheduler) Spawn(entry func() (any, error), attrs Attributes) *Fiber {
	f := newFiberContext(s, entry, attrs)
	s.registry.add(f)
	if cur := currentFiberContext(); cur != nil && cur.scheduler == s {
		s.attach(f)
		s.algorithm.Awakened(f)
	} else {
		s.remoteMu.Lock()
		s.spawnQueue = append(s.spawnQueue, f)
		s.remoteMu.Unlock()
		s.algorithm.Notify()
	}
	if s.metrics != nil {
		s.metrics.fibersSpawned.Add(1)
	}
	return &Fiber{ctx: f}
}

func (s *Scheduler) attach(f *FiberContext) {
	f.workerHook.ownerValue = f
	s.workerMu.Lock()
	s.worker[f.id] = f
	s.workerMu.Unlock()
}

func (s *Scheduler) drainSpawnQueue() {
	s.remoteMu.Lock()
	pending := s.spawnQueue
	s.spawnQueue = nil
	s.remoteMu.Unlock()
	for _, f := range pending {
		s.attach(f)
		s.algorithm.Awakened(f)
	}
}

// SetRemoteReady is the only supported way to wake a fiber from a goroutine
// that is not currently holding its scheduler's baton (spec.md §4.1,
// set_remote_ready). Calling SetReady cross-thread is a race; this package
// never does so, routing every cross-scheduler wake through here instead.
func (s *Scheduler) SetRemoteReady(f *FiberContext) {
	s.remoteMu.Lock()
	s.remoteReady = append(s.remoteReady, f)
	s.remoteMu.Unlock()
	s.algorithm.Notify()
}

func (s *Scheduler) drainRemoteReady() {
	s.remoteMu.Lock()
	pending := s.remoteReady
	s.remoteReady = nil
	s.remoteMu.Unlock()
	for _, f := range pending {
		s.readyLocked(f, wakeNotify)
	}
}

// SetReady transitions f to Ready and hands it to the Algorithm. It must
// only be called while the caller holds f.scheduler's baton (i.e. from f's
// own scheduler's dispatch loop or from a fiber currently running on that
// same scheduler); cross-scheduler callers must use SetRemoteReady.
func (s *Scheduler) SetReady(f *FiberContext) {
	s.readyLocked(f, wakeNotify)
}

func (s *Scheduler) readyLocked(f *FiberContext, reason wakeReason) {
	if f.sleepIndex >= 0 {
		heap.Remove(&s.sleep, f.sleepIndex)
	}
	f.mu.Lock()
	f.state = Ready
	f.wake = reason
	f.mu.Unlock()
	s.algorithm.Awakened(f)
}

func (s *Scheduler) sweepSleepQueue() {
	now := time.Now()
	for len(s.sleep) > 0 && !s.sleep[0].tp.After(now) {
		f := heap.Pop(&s.sleep).(*FiberContext)
		f.mu.Lock()
		f.state = Ready
		f.wake = wakeTimeout
		f.mu.Unlock()
		s.algorithm.Awakened(f)
	}
}

// wakeFiber wakes f regardless of which goroutine is calling: if the
// caller is currently running as a fiber of f's own scheduler, it wakes it
// directly (cheap, baton-protected); otherwise it routes through
// SetRemoteReady (spec.md §4.1 normative cross-thread path).
func wakeFiber(f *FiberContext) {
	sched := f.currentScheduler()
	if cur := currentFiberContext(); cur != nil && cur.scheduler == sched {
		sched.SetReady(f)
		return
	}
	sched.SetRemoteReady(f)
}

// yield suspends f, immediately re-marking it Ready, giving other ready
// fibers a turn (spec.md §6, this_fiber::yield).
func (s *Scheduler) yield(f *FiberContext) {
	s.suspend(f, func() {
		s.readyLocked(f, wakeNotify)
	})
}

// waitUntil suspends f until it is woken via SetReady/SetRemoteReady, or
// until tp elapses if tp is non-zero. postSwitch, if non-nil, runs on the
// dispatch-loop goroutine immediately after f's stack has logically
// switched away — the mechanism spec.md §5 uses to release a primitive's
// spinlock only once it is safe to observe the waiter list again (e.g.
// Cond.Wait releasing the Cond's own spinlock). Returns true if woken by
// notification, false if by timeout.
func (s *Scheduler) waitUntil(f *FiberContext, tp time.Time, postSwitch func()) bool {
	f.mu.Lock()
	f.state = Waiting
	f.tp = tp
	f.mu.Unlock()

	if !tp.IsZero() {
		heap.Push(&s.sleep, f)
	}

	s.suspend(f, postSwitch)

	f.mu.Lock()
	woken := f.wake == wakeNotify
	f.mu.Unlock()
	return woken
}

// suspend performs the actual baton hand-off: it yields control from f's
// goroutine back to whichever goroutine is running the dispatch loop, runs
// postSwitch there, then blocks until f is resumed.
func (s *Scheduler) suspend(f *FiberContext, postSwitch func()) {
	s.backToDispatcher <- postSwitch
	msg := <-f.resume
	if msg.forceUnwind {
		panic(forcedUnwind{})
	}
}

// switchTo hands the baton to f: starting its backing goroutine on first
// use, sending it the resume signal, then blocking until it yields control
// back via backToDispatcher.
func (s *Scheduler) switchTo(f *FiberContext) {
	f.mu.Lock()
	f.state = Running
	reason := f.wake
	f.mu.Unlock()

	if !f.started {
		f.started = true
		s.startFiberGoroutine(f)
	}

	f.resume <- resumeMsg{wokenByNotify: reason == wakeNotify}

	postSwitch := <-s.backToDispatcher
	if postSwitch != nil {
		postSwitch()
	}
}

// startFiberGoroutine launches f's backing goroutine. It blocks
// immediately on f.resume until switchTo first hands it the baton.
func (s *Scheduler) startFiberGoroutine(f *FiberContext) {
	go func() {
		msg := <-f.resume
		registerFiberGoroutine(f)
		defer unregisterFiberGoroutine()

		if msg.forceUnwind {
			f.finish(nil, nil)
			s.backToDispatcher <- func() { s.retireFiber(f) }
			return
		}

		var result any
		var ferr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(forcedUnwind); ok {
						return
					}
					if e, ok := r.(error); ok {
						ferr = e
					} else {
						ferr = panicError{Value: r}
					}
					logFiberPanicked(s.logger, f.id, r)
				}
			}()
			start := time.Now()
			result, ferr = f.entry()
			if s.metrics != nil {
				s.metrics.fiberRuntime.Observe(time.Since(start))
			}
		}()

		f.finish(result, ferr)
		s.backToDispatcher <- func() { s.retireFiber(f) }
	}()
}

// retireFiber removes a terminated fiber from the worker set and registry.
// Runs on the dispatch loop as the post-switch action following
// termination, per spec.md §4.2's "destroy any fibers still on the
// terminated list" step.
func (s *Scheduler) retireFiber(f *FiberContext) {
	s.workerMu.Lock()
	delete(s.worker, f.id)
	s.workerMu.Unlock()
	s.registry.remove(f)
	if s.metrics != nil {
		s.metrics.fibersTerminated.Add(1)
	}
}

// adoptStolenFiber reassigns f's scheduler-local bookkeeping from its prior
// owner to s, the instant a WorkStealingAlgorithm's Steal hands f to this
// scheduler's PickNext. Until this runs, f is linked into no ready queue at
// all (spec.md §9); this is what ends that transit and makes every
// subsequent suspend on f route through s's baton channels instead of its
// former owner's.
func (s *Scheduler) adoptStolenFiber(f *FiberContext) {
	f.mu.Lock()
	old := f.scheduler
	f.scheduler = s
	f.mu.Unlock()
	if old == s {
		return
	}
	old.workerMu.Lock()
	delete(old.worker, f.id)
	old.workerMu.Unlock()
	old.registry.remove(f)

	s.registry.add(f)
	s.attach(f)
}

func (s *Scheduler) pruneWorker(f *FiberContext) {
	f.mu.Lock()
	terminated := f.state == Terminated
	f.mu.Unlock()
	if terminated {
		f.release()
	}
}

// LiveFiberCount returns the number of fibers currently attached to this
// scheduler (Ready, Running, or Waiting).
func (s *Scheduler) LiveFiberCount() int {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()
	return len(s.worker)
}

// RunSchedulers starts every one of scheds' dispatch loops on its own
// goroutine via errgroup.Group, returning once all of them have stopped.
// If any Run returns a non-nil error, the shared context is canceled so
// the rest wind down too, and that first error is returned. This is the
// idiomatic way to stand up a work-stealing pool (see LinkPeers): one
// goroutine per Scheduler, exactly as Run already requires, orchestrated
// instead of hand-rolled with a sync.WaitGroup.
func RunSchedulers(ctx context.Context, scheds ...*Scheduler) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range scheds {
		s := s
		g.Go(func() error { return s.Run(ctx) })
	}
	return g.Wait()
}

// threadAlgorithmFactory records the per-goroutine default Algorithm
// factory installed by UseSchedulingAlgorithm, keyed by the installing
// goroutine's ID.
var threadAlgorithmFactory sync.Map // map[uint64]func() Algorithm

// UseSchedulingAlgorithm installs the default Algorithm factory new
// Schedulers constructed on the calling goroutine will use when no
// WithAlgorithm option is supplied, mirroring boost::fibers::
// use_scheduling_algorithm's once-per-thread contract (spec.md §6). It
// returns ErrAlgorithmAlreadyInstalled if called more than once per
// goroutine identity.
func UseSchedulingAlgorithm(factory func() Algorithm) error {
	id := getGoroutineID()
	if _, loaded := threadAlgorithmFactory.LoadOrStore(id, factory); loaded {
		return ErrAlgorithmAlreadyInstalled
	}
	return nil
}

// threadDefaultAlgorithm returns the Algorithm installed for the calling
// goroutine via UseSchedulingAlgorithm, or nil if none was installed.
func threadDefaultAlgorithm() Algorithm {
	v, ok := threadAlgorithmFactory.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(func() Algorithm)()
}
