package fiber

import "time"

// Attributes configures a fiber at spawn time (spec.md §3).
type Attributes struct {
	// StackSize hints the backing goroutine's expected stack depth. It is
	// informational only: Go grows goroutine stacks automatically, so this
	// never bounds anything. Kept for parity with the source API.
	StackSize int

	// PreserveFPU is accepted for API parity with the source library. Go
	// has no notion of manual FPU state preservation across a context
	// switch, so this field has no effect.
	PreserveFPU bool

	// ThreadAffinity pins the fiber to the scheduler it was spawned on: a
	// work-stealing Algorithm must never steal it (spec.md §3 invariant
	// vi).
	ThreadAffinity bool
}

// schedulerOptions holds configuration collected by SchedulerOption values.
type schedulerOptions struct {
	algorithm        Algorithm
	suspendNotifier  SuspendNotifier
	metricsEnabled   bool
	logger           Logger
	idlePollInterval time.Duration
}

// SchedulerOption configures a [Scheduler] at construction time.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

type schedulerOptionImpl struct {
	applyFunc func(*schedulerOptions) error
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applyFunc(opts)
}

// WithAlgorithm installs a custom scheduling [Algorithm]. It corresponds to
// UseSchedulingAlgorithm in the source API, but scoped to one Scheduler
// instance rather than a whole thread, since each Go Scheduler already
// plays the role of one OS thread's fiber manager.
func WithAlgorithm(algorithm Algorithm) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if algorithm == nil {
			return ErrInvalidArgument
		}
		opts.algorithm = algorithm
		return nil
	}}
}

// WithSuspendNotifier installs a hook invoked whenever the dispatch loop is
// about to idle, letting an embedder integrate an external reactor (e.g. an
// epoll/kqueue poller) instead of a plain timed sleep (spec.md §4.1,
// Algorithm::suspend_until/notify).
func WithSuspendNotifier(notifier SuspendNotifier) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.suspendNotifier = notifier
		return nil
	}}
}

// WithMetrics enables runtime scheduling metrics collection, retrievable
// via Scheduler.Metrics. Mirrors eventloop's WithMetrics.
func WithMetrics(enabled bool) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLogger installs a structured [Logger] for scheduler lifecycle and
// fiber-panic diagnostics. Defaults to a no-op logger.
func WithLogger(logger Logger) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if logger == nil {
			logger = NewNoOpLogger()
		}
		opts.logger = logger
		return nil
	}}
}

// WithIdlePollInterval bounds how long the dispatch loop will block waiting
// for a remote wake-up or timer when it has no default SuspendNotifier
// installed. Defaults to 10ms; lower values trade CPU for responsiveness to
// changes the loop cannot otherwise observe (e.g. a brand-new scheduler
// with zero fibers attached yet).
func WithIdlePollInterval(d time.Duration) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if d <= 0 {
			return ErrInvalidArgument
		}
		opts.idlePollInterval = d
		return nil
	}}
}

func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	algorithm := threadDefaultAlgorithm()
	if algorithm == nil {
		algorithm = NewFIFOAlgorithm()
	}
	cfg := &schedulerOptions{
		algorithm:        algorithm,
		logger:           NewNoOpLogger(),
		idlePollInterval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
