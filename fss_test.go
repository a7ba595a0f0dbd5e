package fiber

import (
	"testing"
	"time"
)

func TestFSSGetSetPerFiber(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	slot := NewFSS[int]()
	results := make(chan int, 2)

	s.Spawn(func() (any, error) {
		slot.Set(1, nil)
		v, ok := slot.Get()
		if !ok || v != 1 {
			t.Errorf("expected (1, true), got (%v, %v)", v, ok)
		}
		results <- v
		return nil, nil
	}, Attributes{})

	s.Spawn(func() (any, error) {
		// A fiber that never calls Set sees nothing, even though the other
		// fiber has set a value for the same slot.
		_, ok := slot.Get()
		if ok {
			t.Error("expected no value for a fiber that never called Set")
		}
		results <- -1
		return nil, nil
	}, Attributes{})

	for i := 0; i < 2; i++ {
		select {
		case <-results:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestFSSSetOverwriteRunsCleanup(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	slot := NewFSS[string]()
	cleaned := make(chan string, 1)
	done := make(chan struct{}, 1)

	s.Spawn(func() (any, error) {
		slot.Set("first", func(v string) { cleaned <- v })
		slot.Set("second", nil)
		done <- struct{}{}
		return nil, nil
	}, Attributes{})

	select {
	case v := <-cleaned:
		if v != "first" {
			t.Errorf("expected cleanup for %q, got %q", "first", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for overwrite cleanup")
	}
	<-done
}

func TestFSSResetRunsCleanup(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	slot := NewFSS[int]()
	cleaned := make(chan int, 1)

	s.Spawn(func() (any, error) {
		slot.Set(7, func(v int) { cleaned <- v })
		slot.Reset()
		if _, ok := slot.Get(); ok {
			t.Error("expected no value after Reset")
		}
		return nil, nil
	}, Attributes{})

	select {
	case v := <-cleaned:
		if v != 7 {
			t.Errorf("expected cleanup for 7, got %d", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Reset cleanup")
	}
}

func TestFSSCleanupRunsOnFiberTermination(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	slot := NewFSS[int]()
	cleaned := make(chan int, 1)

	joinErr := make(chan error, 1)
	s.Spawn(func() (any, error) {
		f := s.Spawn(func() (any, error) {
			slot.Set(3, func(v int) { cleaned <- v })
			return nil, nil
		}, Attributes{})
		_, err := f.Join()
		joinErr <- err
		return nil, nil
	}, Attributes{})

	select {
	case err := <-joinErr:
		if err != nil {
			t.Fatalf("unexpected join error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Join")
	}

	select {
	case v := <-cleaned:
		if v != 3 {
			t.Errorf("expected cleanup for 3, got %d", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for termination cleanup")
	}
}
