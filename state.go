package fiber

import "sync/atomic"

// SchedulerState is the lifecycle state of a [Scheduler]'s dispatch loop.
//
// State machine:
//
//	StateAwake (0)      -> StateRunning (3)      [Run]
//	StateRunning (3)    -> StateSleeping (2)      [dispatch loop idles]
//	StateRunning (3)    -> StateTerminating (4)   [Shutdown]
//	StateSleeping (2)   -> StateRunning (3)       [woken]
//	StateSleeping (2)   -> StateTerminating (4)   [Shutdown]
//	StateTerminating (4)-> StateTerminated (1)    [drain complete]
//	StateTerminated (1) -> (terminal)
//
// Use [schedulerFastState.TryTransition] (CAS) for the reversible states
// (Running/Sleeping); use Store only for the irreversible Terminated state.
type SchedulerState uint64

const (
	// StateAwake indicates the scheduler has been created but Run has not
	// yet been called.
	StateAwake SchedulerState = 0
	// StateTerminated indicates the dispatch loop has fully drained and
	// stopped.
	StateTerminated SchedulerState = 1
	// StateSleeping indicates the dispatch loop is idling, waiting for a
	// timer, a remote wake-up, or an external event.
	StateSleeping SchedulerState = 2
	// StateRunning indicates the dispatch loop is actively picking and
	// running fibers.
	StateRunning SchedulerState = 3
	// StateTerminating indicates Shutdown has been requested but the
	// dispatch loop has not yet finished draining.
	StateTerminating SchedulerState = 4
)

// String returns a human-readable representation of the state.
func (s SchedulerState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// schedulerFastState is a lock-free state machine guarding Scheduler
// lifecycle transitions: pure CAS, no transition validation (callers are
// expected to know the legal graph).
type schedulerFastState struct {
	v atomic.Uint64
}

func newSchedulerFastState() *schedulerFastState {
	s := &schedulerFastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *schedulerFastState) Load() SchedulerState {
	return SchedulerState(s.v.Load())
}

func (s *schedulerFastState) Store(state SchedulerState) {
	s.v.Store(uint64(state))
}

func (s *schedulerFastState) TryTransition(from, to SchedulerState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// FiberState is the lifecycle state of a [FiberContext], per spec.md §3.
type FiberState int

const (
	// Ready indicates the fiber is runnable and linked into some
	// scheduler's ready store.
	Ready FiberState = iota
	// Running indicates the fiber is the unique active fiber of its host
	// scheduler.
	Running
	// Waiting indicates the fiber is suspended, linked into a sleep queue
	// or some primitive's wait queue.
	Waiting
	// Terminated indicates the fiber's entry function has returned or been
	// forcibly unwound.
	Terminated
)

// String returns a human-readable representation of the state.
func (s FiberState) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
