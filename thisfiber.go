package fiber

import (
	"runtime"
	"sync"
	"time"
)

// fiberRegistry maps a backing goroutine's ID to the FiberContext it is
// currently executing, the mechanism by which package-level this_fiber
// operations (spec.md §6) find "the calling fiber" without it being passed
// explicitly. Grounded on eventloop's getGoroutineID/isLoopThread pattern,
// generalized from one loop goroutine to one entry per live fiber
// goroutine plus one per scheduler's Run goroutine.
var fiberRegistry sync.Map // map[uint64]*FiberContext

// getGoroutineID returns the current goroutine's ID, parsed out of a
// runtime.Stack dump. There is no supported API for this; it is a
// diagnostic-only identifier used here purely to key the fiber registry.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

func registerFiberGoroutine(f *FiberContext) {
	fiberRegistry.Store(getGoroutineID(), f)
}

func unregisterFiberGoroutine() {
	fiberRegistry.Delete(getGoroutineID())
}

// currentFiberContext returns the FiberContext backed by the calling
// goroutine, or nil if the calling goroutine is not a fiber (and is not a
// scheduler's Run goroutine acting as the implicit main fiber).
func currentFiberContext() *FiberContext {
	v, ok := fiberRegistry.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*FiberContext)
}

func mustCurrentFiberContext() *FiberContext {
	f := currentFiberContext()
	if f == nil {
		panic(ErrNotFiberThread)
	}
	return f
}

// Yield suspends the calling fiber, allowing its scheduler to run any other
// ready fiber, and reschedules it as ready again (spec.md §6,
// this_fiber::yield).
func Yield() {
	f := mustCurrentFiberContext()
	f.scheduler.yield(f)
}

// GetID returns the calling fiber's ID (spec.md §6, this_fiber::get_id).
func GetID() FiberID {
	return mustCurrentFiberContext().ID()
}

// InterruptionPoint raises ErrFiberInterrupted by panic if the calling
// fiber has a pending, unblocked interruption request (spec.md §6,
// this_fiber::interruption_point).
func InterruptionPoint() {
	mustCurrentFiberContext().interruptionPoint()
}

// InterruptionRequested reports whether the calling fiber has a pending
// interruption request, without consuming it.
func InterruptionRequested() bool {
	f := mustCurrentFiberContext()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flagInterruptRequest
}

// DisableInterruption blocks interruption delivery to the calling fiber
// until the returned restore function is invoked. Nest freely; each call
// must be paired with exactly one restore call, typically via defer
// (spec.md §6, this_fiber::disable_interruption).
func DisableInterruption() (restore func()) {
	return mustCurrentFiberContext().disableInterruption()
}

// SleepUntil suspends the calling fiber until the given deadline, or until
// interrupted (spec.md §6, this_fiber::sleep_until).
func SleepUntil(deadline time.Time) {
	f := mustCurrentFiberContext()
	f.interruptionPoint()
	f.scheduler.waitUntil(f, deadline, nil)
	f.interruptionPoint()
}

// Properties returns the calling fiber's scheduling-policy-defined
// properties, or nil if the active Algorithm does not use them.
func Properties() any {
	return mustCurrentFiberContext().props
}
