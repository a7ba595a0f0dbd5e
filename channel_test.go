package fiber

import (
	"testing"
	"time"
)

func TestBoundedChannelBackpressure(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	ch := NewBoundedChannel[int](2, 1)
	pushedThird := make(chan struct{}, 1)

	s.Spawn(func() (any, error) {
		ch.Push(1)
		ch.Push(2)
		// Buffer is at hwm (2): this Push must block until a Pop drains it.
		ch.Push(3)
		pushedThird <- struct{}{}
		return nil, nil
	}, Attributes{})

	select {
	case <-pushedThird:
		t.Fatal("third Push returned before any Pop drained the buffer")
	case <-time.After(50 * time.Millisecond):
	}

	s.Spawn(func() (any, error) {
		v, status := ch.Pop()
		if status != StatusSuccess || v != 1 {
			t.Errorf("expected (1, Success), got (%v, %v)", v, status)
		}
		return nil, nil
	}, Attributes{})

	select {
	case <-pushedThird:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for blocked Push to unblock after a Pop")
	}
}

func TestBoundedChannelCloseDrainsThenClosed(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	ch := NewBoundedChannel[int](4, 0)

	result := make(chan [2]ChannelStatus, 1)
	s.Spawn(func() (any, error) {
		ch.Push(1)
		ch.Push(2)
		ch.Close()
		var statuses [2]ChannelStatus
		v1, s1 := ch.Pop()
		statuses[0] = s1
		_ = v1
		_, statuses[1] = ch.Pop()
		result <- statuses
		return nil, nil
	}, Attributes{})

	select {
	case statuses := <-result:
		if statuses[0] != StatusSuccess {
			t.Errorf("expected first drained Pop to succeed, got %v", statuses[0])
		}
		if statuses[1] != StatusSuccess {
			t.Errorf("expected second drained Pop to succeed, got %v", statuses[1])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out draining closed channel")
	}

	final := make(chan ChannelStatus, 1)
	s.Spawn(func() (any, error) {
		_, status := ch.Pop()
		final <- status
		return nil, nil
	}, Attributes{})

	select {
	case status := <-final:
		if status != StatusClosed {
			t.Errorf("expected StatusClosed once drained, got %v", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestBoundedChannelPushUntilTimesOut(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	ch := NewBoundedChannel[int](1, 0)

	result := make(chan ChannelStatus, 1)
	s.Spawn(func() (any, error) {
		ch.Push(1)
		result <- ch.PushUntil(2, time.Now().Add(30*time.Millisecond))
		return nil, nil
	}, Attributes{})

	select {
	case status := <-result:
		if status != StatusTimeout {
			t.Errorf("expected StatusTimeout, got %v", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for PushUntil")
	}
}

func TestUnboundedChannelNeverBlocksPush(t *testing.T) {
	s := NewScheduler()
	shutdown := runScheduler(t, s)
	defer shutdown()

	ch := NewUnboundedChannel[int]()
	done := make(chan struct{}, 1)
	s.Spawn(func() (any, error) {
		for i := 0; i < 1000; i++ {
			if status := ch.Push(i); status != StatusSuccess {
				t.Errorf("unexpected push status %v", status)
			}
		}
		done <- struct{}{}
		return nil, nil
	}, Attributes{})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out pushing to unbounded channel")
	}
	if ch.Len() != 1000 {
		t.Errorf("expected 1000 buffered items, got %d", ch.Len())
	}
}

func TestNewBoundedChannelInvalidWatermarksPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected invalid watermarks to panic")
		}
	}()
	NewBoundedChannel[int](0, 0)
}
