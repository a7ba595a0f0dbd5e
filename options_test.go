package fiber

import (
	"errors"
	"testing"
	"time"
)

func TestResolveSchedulerOptionsDefaults(t *testing.T) {
	cfg, err := resolveSchedulerOptions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.algorithm == nil {
		t.Error("expected a default Algorithm to be installed")
	}
	if cfg.logger == nil {
		t.Error("expected a default no-op Logger to be installed")
	}
	if cfg.idlePollInterval != 10*time.Millisecond {
		t.Errorf("expected default idle poll interval of 10ms, got %v", cfg.idlePollInterval)
	}
	if cfg.metricsEnabled {
		t.Error("expected metrics disabled by default")
	}
}

func TestWithAlgorithmRejectsNil(t *testing.T) {
	_, err := resolveSchedulerOptions([]SchedulerOption{WithAlgorithm(nil)})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestWithIdlePollIntervalRejectsNonPositive(t *testing.T) {
	_, err := resolveSchedulerOptions([]SchedulerOption{WithIdlePollInterval(0)})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestWithMetricsAndLoggerApply(t *testing.T) {
	logger := NewNoOpLogger()
	cfg, err := resolveSchedulerOptions([]SchedulerOption{
		WithMetrics(true),
		WithLogger(logger),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.metricsEnabled {
		t.Error("expected metrics enabled")
	}
	if cfg.logger != Logger(logger) {
		t.Error("expected the installed logger to be used")
	}
}

// fakeSuspendNotifier records whether it was ever consulted by a
// Scheduler's idle path.
type fakeSuspendNotifier struct {
	suspended chan struct{}
	notified  chan struct{}
}

func newFakeSuspendNotifier() *fakeSuspendNotifier {
	return &fakeSuspendNotifier{
		suspended: make(chan struct{}, 8),
		notified:  make(chan struct{}, 8),
	}
}

func (n *fakeSuspendNotifier) SuspendUntil(time.Time) {
	select {
	case n.suspended <- struct{}{}:
	default:
	}
}

func (n *fakeSuspendNotifier) Notify() {
	select {
	case n.notified <- struct{}{}:
	default:
	}
}

func TestWithSuspendNotifierIsWiredIntoAlgorithm(t *testing.T) {
	notifier := newFakeSuspendNotifier()
	s := NewScheduler(WithSuspendNotifier(notifier))
	shutdown := runScheduler(t, s)

	select {
	case <-notifier.suspended:
	case <-time.After(5 * time.Second):
		t.Fatal("expected the installed SuspendNotifier to be consulted while idling")
	}

	shutdown()

	select {
	case <-notifier.notified:
	case <-time.After(5 * time.Second):
		t.Fatal("expected Shutdown to call the installed SuspendNotifier's Notify")
	}
}

func TestWithLoggerNilFallsBackToNoOp(t *testing.T) {
	cfg, err := resolveSchedulerOptions([]SchedulerOption{WithLogger(nil)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cfg.logger.(*NoOpLogger); !ok {
		t.Errorf("expected a NoOpLogger fallback, got %T", cfg.logger)
	}
}
