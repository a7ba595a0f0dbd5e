package fiber

import "testing"

func TestSchedulerFastStateTransitions(t *testing.T) {
	s := newSchedulerFastState()
	if s.Load() != StateAwake {
		t.Fatalf("expected initial state Awake, got %v", s.Load())
	}
	if !s.TryTransition(StateAwake, StateRunning) {
		t.Fatal("expected Awake -> Running to succeed")
	}
	if s.TryTransition(StateAwake, StateRunning) {
		t.Fatal("expected a stale Awake -> Running transition to fail once already Running")
	}
	if !s.TryTransition(StateRunning, StateSleeping) {
		t.Fatal("expected Running -> Sleeping to succeed")
	}
	s.Store(StateTerminated)
	if s.Load() != StateTerminated {
		t.Fatalf("expected Store to set Terminated directly, got %v", s.Load())
	}
}

func TestSchedulerStateString(t *testing.T) {
	cases := map[SchedulerState]string{
		StateAwake:         "Awake",
		StateRunning:       "Running",
		StateSleeping:      "Sleeping",
		StateTerminating:   "Terminating",
		StateTerminated:    "Terminated",
		SchedulerState(99): "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("SchedulerState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestFiberStateString(t *testing.T) {
	cases := map[FiberState]string{
		Ready:          "Ready",
		Running:        "Running",
		Waiting:        "Waiting",
		Terminated:     "Terminated",
		FiberState(99): "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("FiberState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
