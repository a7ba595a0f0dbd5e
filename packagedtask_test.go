package fiber

import (
	"errors"
	"testing"
	"time"
)

func TestPackagedTaskCallSettlesFuture(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	task := NewPackagedTask[int](func() int { return 99 })
	future := task.GetFuture()
	result := make(chan int, 1)

	s.Spawn(func() (any, error) {
		v, err := future.Get()
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		result <- v
		return nil, nil
	}, Attributes{})

	task.Call()

	select {
	case v := <-result:
		if v != 99 {
			t.Errorf("expected 99, got %d", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPackagedTaskCallCapturesPanic(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	boom := errors.New("boom")
	task := NewPackagedTask[int](func() int { panic(boom) })
	future := task.GetFuture()
	result := make(chan error, 1)

	s.Spawn(func() (any, error) {
		_, err := future.Get()
		result <- err
		return nil, nil
	}, Attributes{})

	task.Call()

	select {
	case err := <-result:
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped %v, got %v", boom, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPackagedTaskDoubleCallPanics(t *testing.T) {
	task := NewPackagedTask[int](func() int { return 1 })
	task.Call()
	defer func() {
		r := recover()
		if !errors.Is(r.(error), ErrTaskAlreadyStarted) {
			t.Errorf("expected ErrTaskAlreadyStarted, got %v", r)
		}
	}()
	task.Call()
}

func TestPackagedTaskGetFutureTwicePanics(t *testing.T) {
	task := NewPackagedTask[int](func() int { return 1 })
	_ = task.GetFuture()

	defer func() {
		r := recover()
		if err, ok := r.(error); !ok || !errors.Is(err, ErrFutureAlreadyRetrieved) {
			t.Errorf("expected ErrFutureAlreadyRetrieved, got %v", r)
		}
	}()
	task.GetFuture()
}

func TestPackagedTaskResetAllowsReuse(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	n := 0
	task := NewPackagedTask[int](func() int { n++; return n })

	task.Call()
	first := task.GetFuture()
	task.Reset()
	task.Call()
	second := task.GetFuture()

	result := make(chan [2]int, 1)
	s.Spawn(func() (any, error) {
		v1, _ := first.Get()
		v2, _ := second.Get()
		result <- [2]int{v1, v2}
		return nil, nil
	}, Attributes{})

	select {
	case vs := <-result:
		if vs[0] != 1 || vs[1] != 2 {
			t.Errorf("expected [1 2], got %v", vs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPackagedTaskTakeCallableThenUsePanics(t *testing.T) {
	task := NewPackagedTask[int](func() int { return 5 })
	fn := task.TakeCallable()
	if fn() != 5 {
		t.Error("expected the taken callable to still behave correctly")
	}
	defer func() {
		r := recover()
		if !errors.Is(r.(error), ErrTaskMoved) {
			t.Errorf("expected ErrTaskMoved, got %v", r)
		}
	}()
	task.Call()
}
