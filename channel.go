package fiber

import "time"

// channelWaiter links a blocked fiber onto a channel's push or pop waiter
// list.
type channelWaiter struct {
	h     hook
	fiber *FiberContext
}

// BoundedChannel is a fixed-capacity, high/low-water-mark backpressure
// queue (spec.md §4.7, boost::fibers::buffered_channel /
// bounded_channel). Push blocks once the buffer reaches hwm items; Pop
// wakes blocked pushers whenever the buffer drains to lwm or below — one
// of them if hwm==lwm (exactly one slot opened), every one of them
// otherwise, since each could now have room. Once Close is called, Push
// returns StatusClosed and Pop continues to drain remaining buffered
// items before itself returning StatusClosed.
type BoundedChannel[T any] struct {
	spin        spinlock
	buf         []T
	hwm, lwm    int
	closed      bool
	pushWaiters waitList
	popWaiters  waitList
}

// NewBoundedChannel constructs a BoundedChannel with the given high and
// low water marks. Panics with ErrInvalidArgument if hwm <= 0 or
// lwm < 0 or lwm > hwm.
func NewBoundedChannel[T any](hwm, lwm int) *BoundedChannel[T] {
	if hwm <= 0 || lwm < 0 || lwm > hwm {
		panic(ErrInvalidArgument)
	}
	return &BoundedChannel[T]{hwm: hwm, lwm: lwm, buf: make([]T, 0, hwm)}
}

// Push blocks the calling fiber until there is room in the buffer, the
// channel is closed, or (via PushUntil) a deadline elapses. It is an
// interruption point.
func (c *BoundedChannel[T]) Push(v T) ChannelStatus {
	return c.push(v, time.Time{}, true)
}

// PushUntil is Push bounded by a deadline, returning StatusTimeout if it
// elapses first.
func (c *BoundedChannel[T]) PushUntil(v T, deadline time.Time) ChannelStatus {
	return c.push(v, deadline, true)
}

// PushFor is PushUntil with a relative timeout.
func (c *BoundedChannel[T]) PushFor(v T, timeout time.Duration) ChannelStatus {
	return c.push(v, time.Now().Add(timeout), true)
}

// TryPush pushes v only if the buffer currently has room, never blocking.
func (c *BoundedChannel[T]) TryPush(v T) ChannelStatus {
	return c.push(v, time.Time{}, false)
}

func (c *BoundedChannel[T]) push(v T, deadline time.Time, blocking bool) ChannelStatus {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	c.spin.Lock()
	for {
		if c.closed {
			c.spin.Unlock()
			return StatusClosed
		}
		if len(c.buf) < c.hwm {
			c.buf = append(c.buf, v)
			var wake *FiberContext
			if h := c.popWaiters.popFront(); h != nil {
				wake = h.owner().(*channelWaiter).fiber
			}
			c.spin.Unlock()
			if wake != nil {
				wakeFiber(wake)
			}
			return StatusSuccess
		}
		if !blocking {
			c.spin.Unlock()
			return StatusFull
		}
		w := &channelWaiter{fiber: cur}
		w.h.ownerValue = w
		c.pushWaiters.pushBack(&w.h)

		cur.scheduler.noteChannelContention(cur)
		woken := cur.scheduler.waitUntil(cur, deadline, func() { c.spin.Unlock() })
		c.spin.Lock()
		if w.h.linked {
			c.pushWaiters.remove(&w.h)
			if !woken && !deadline.IsZero() {
				c.spin.Unlock()
				return StatusTimeout
			}
			// Still linked but not a genuine timeout: either a zero-deadline
			// wake that wasn't given room, or an interrupt nudge. Either
			// way nothing was granted, so recheck interruption and retry.
			c.spin.Unlock()
			cur.interruptionPoint()
			c.spin.Lock()
		}
		// Unlinked already: either genuinely given room (loop head will
		// pick it up) or the timeout raced a concurrent Pop that reserved
		// room for us anyway. Either way, retry the loop.
	}
}

// Pop blocks the calling fiber until an item is available or the channel
// is closed and drained. It is an interruption point.
func (c *BoundedChannel[T]) Pop() (T, ChannelStatus) {
	return c.pop(time.Time{}, true)
}

// PopUntil is Pop bounded by a deadline.
func (c *BoundedChannel[T]) PopUntil(deadline time.Time) (T, ChannelStatus) {
	return c.pop(deadline, true)
}

// PopFor is PopUntil with a relative timeout.
func (c *BoundedChannel[T]) PopFor(timeout time.Duration) (T, ChannelStatus) {
	return c.pop(time.Now().Add(timeout), true)
}

// TryPop pops an item only if one is immediately available.
func (c *BoundedChannel[T]) TryPop() (T, ChannelStatus) {
	return c.pop(time.Time{}, false)
}

func (c *BoundedChannel[T]) pop(deadline time.Time, blocking bool) (T, ChannelStatus) {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	c.spin.Lock()
	for {
		if len(c.buf) > 0 {
			v := c.buf[0]
			c.buf = c.buf[1:]
			var woken []*FiberContext
			if len(c.buf) <= c.lwm {
				// hwm==lwm: exactly one slot just opened up, so wake one
				// pusher. Otherwise every pusher blocked above lwm is now
				// eligible to recheck room, so wake all of them (bounded_
				// queue.hpp: lwm_==hwm_ ? notify_one() : notify_all()).
				if c.hwm == c.lwm {
					if h := c.pushWaiters.popFront(); h != nil {
						woken = append(woken, h.owner().(*channelWaiter).fiber)
					}
				} else {
					for h := c.pushWaiters.popFront(); h != nil; h = c.pushWaiters.popFront() {
						woken = append(woken, h.owner().(*channelWaiter).fiber)
					}
				}
			}
			c.spin.Unlock()
			for _, f := range woken {
				wakeFiber(f)
			}
			return v, StatusSuccess
		}
		if c.closed {
			c.spin.Unlock()
			var zero T
			return zero, StatusClosed
		}
		if !blocking {
			c.spin.Unlock()
			var zero T
			return zero, StatusEmpty
		}
		w := &channelWaiter{fiber: cur}
		w.h.ownerValue = w
		c.popWaiters.pushBack(&w.h)

		cur.scheduler.noteChannelContention(cur)
		woken := cur.scheduler.waitUntil(cur, deadline, func() { c.spin.Unlock() })
		c.spin.Lock()
		if w.h.linked {
			c.popWaiters.remove(&w.h)
			if !woken && !deadline.IsZero() {
				c.spin.Unlock()
				var zero T
				return zero, StatusTimeout
			}
			c.spin.Unlock()
			cur.interruptionPoint()
			c.spin.Lock()
		}
	}
}

// Close marks the channel closed: further Push calls return StatusClosed
// immediately, while Pop continues to drain any buffered items before it
// too starts returning StatusClosed. Every currently blocked pusher and
// popper is woken so it can observe the new state.
func (c *BoundedChannel[T]) Close() {
	c.spin.Lock()
	c.closed = true
	var woken []*FiberContext
	for h := c.pushWaiters.popFront(); h != nil; h = c.pushWaiters.popFront() {
		woken = append(woken, h.owner().(*channelWaiter).fiber)
	}
	for h := c.popWaiters.popFront(); h != nil; h = c.popWaiters.popFront() {
		woken = append(woken, h.owner().(*channelWaiter).fiber)
	}
	c.spin.Unlock()
	for _, f := range woken {
		wakeFiber(f)
	}
}

// Len returns the number of items currently buffered.
func (c *BoundedChannel[T]) Len() int {
	c.spin.Lock()
	defer c.spin.Unlock()
	return len(c.buf)
}

// UnboundedChannel is a channel with no capacity limit: Push never blocks
// except when closed (spec.md §4.7, boost::fibers::unbounded_channel).
type UnboundedChannel[T any] struct {
	spin       spinlock
	buf        []T
	closed     bool
	popWaiters waitList
}

// NewUnboundedChannel constructs an UnboundedChannel.
func NewUnboundedChannel[T any]() *UnboundedChannel[T] {
	return &UnboundedChannel[T]{}
}

// Push appends v, or returns StatusClosed if the channel is closed. Never
// blocks.
func (c *UnboundedChannel[T]) Push(v T) ChannelStatus {
	c.spin.Lock()
	if c.closed {
		c.spin.Unlock()
		return StatusClosed
	}
	c.buf = append(c.buf, v)
	var wake *FiberContext
	if h := c.popWaiters.popFront(); h != nil {
		wake = h.owner().(*channelWaiter).fiber
	}
	c.spin.Unlock()
	if wake != nil {
		wakeFiber(wake)
	}
	return StatusSuccess
}

// Pop blocks the calling fiber until an item is available or the channel
// is closed and drained.
func (c *UnboundedChannel[T]) Pop() (T, ChannelStatus) {
	return c.pop(time.Time{}, true)
}

// PopUntil is Pop bounded by a deadline.
func (c *UnboundedChannel[T]) PopUntil(deadline time.Time) (T, ChannelStatus) {
	return c.pop(deadline, true)
}

// TryPop pops an item only if one is immediately available.
func (c *UnboundedChannel[T]) TryPop() (T, ChannelStatus) {
	return c.pop(time.Time{}, false)
}

func (c *UnboundedChannel[T]) pop(deadline time.Time, blocking bool) (T, ChannelStatus) {
	cur := mustCurrentFiberContext()
	cur.interruptionPoint()

	c.spin.Lock()
	for {
		if len(c.buf) > 0 {
			v := c.buf[0]
			c.buf = c.buf[1:]
			c.spin.Unlock()
			return v, StatusSuccess
		}
		if c.closed {
			c.spin.Unlock()
			var zero T
			return zero, StatusClosed
		}
		if !blocking {
			c.spin.Unlock()
			var zero T
			return zero, StatusEmpty
		}
		w := &channelWaiter{fiber: cur}
		w.h.ownerValue = w
		c.popWaiters.pushBack(&w.h)

		cur.scheduler.noteChannelContention(cur)
		woken := cur.scheduler.waitUntil(cur, deadline, func() { c.spin.Unlock() })
		c.spin.Lock()
		if w.h.linked {
			c.popWaiters.remove(&w.h)
			if !woken && !deadline.IsZero() {
				c.spin.Unlock()
				var zero T
				return zero, StatusTimeout
			}
			c.spin.Unlock()
			cur.interruptionPoint()
			c.spin.Lock()
		}
	}
}

// Close marks the channel closed, waking every blocked popper.
func (c *UnboundedChannel[T]) Close() {
	c.spin.Lock()
	c.closed = true
	var woken []*FiberContext
	for h := c.popWaiters.popFront(); h != nil; h = c.popWaiters.popFront() {
		woken = append(woken, h.owner().(*channelWaiter).fiber)
	}
	c.spin.Unlock()
	for _, f := range woken {
		wakeFiber(f)
	}
}

// Len returns the number of items currently buffered.
func (c *UnboundedChannel[T]) Len() int {
	c.spin.Lock()
	defer c.spin.Unlock()
	return len(c.buf)
}
