// Package fiber implements a user-space cooperative fiber (stackful
// coroutine) scheduler for Go: a per-goroutine dispatch loop that runs
// independently-spawned [Fiber] execution streams cooperatively, plus the
// synchronization primitives ([Mutex], [RecursiveMutex], [TimedMutex],
// [Cond], [Barrier], [BoundedChannel], [UnboundedChannel]) and
// future/promise toolkit ([Future],
// [Promise], [PackagedTask]) that coordinate them.
//
// # Architecture
//
// A [Scheduler] owns exactly one dispatch loop. Every [FiberContext] it
// manages is backed by a single goroutine parked on a private resume
// channel; the dispatch loop hands control to at most one fiber goroutine
// at a time (the "baton"), reproducing single-threaded cooperative
// semantics even though the underlying runtime is free-threaded. Fibers
// migrate between schedulers only when a [WorkStealingAlgorithm] steals
// them; [Scheduler.SetRemoteReady] is the cross-thread wake path.
//
// # Scheduling policy
//
// The order in which ready fibers run is delegated to a pluggable
// [Algorithm] (the FIFO policy of [NewFIFOAlgorithm] by default). A [PropertyAlgorithm] variant
// supports priority-based orderings; a [WorkStealingAlgorithm] variant lets
// idle schedulers pull work from busier ones, refusing any fiber pinned by
// [Attributes.ThreadAffinity].
//
// # Synchronization
//
// [Mutex] and friends provide strict FIFO, hand-off acquisition to avoid
// starvation. [Cond] mirrors the textbook predicate-wait condition
// variable. [Barrier] and the channel types provide rendezvous and
// bounded/unbounded backpressure-aware queues. All of them suspend the
// calling fiber by linking it onto their own internal waiter list and
// yielding back to the scheduler, never by blocking the host goroutine in a
// way that would violate the single-active-fiber invariant.
//
// # Futures
//
// [Promise], [Future], [SharedFuture], and [PackagedTask] share a single
// monotonic, single-assignment [sharedState] cell: once settled (value or
// exception), it never changes.
//
// # Usage
//
//	sched := fiber.NewScheduler()
//	go sched.Run(context.Background())
//	defer sched.Shutdown()
//
//	// Join must be called from a fiber, so the joining side is spawned too.
//	sched.Spawn(func() (any, error) {
//	    f := sched.Spawn(func() (any, error) {
//	        return 42, nil
//	    }, fiber.Attributes{})
//	    return f.Join() // 42, nil
//	}, fiber.Attributes{})
//
// # Error types
//
// The package exposes a taxonomy of sentinel errors:
// [ErrFiberInterrupted], [ErrBrokenPromise],
// [ErrFutureUninitialized], [ErrPromiseAlreadySatisfied],
// [ErrResourceDeadlock], [ErrOperationNotPermitted], [ErrInvalidArgument],
// and friends. All implement the standard [error] interface and support
// [errors.Is]/[errors.As] through cause chains where applicable.
package fiber
