// Package bandwidth implements the global rate scheduler: a single
// byte/second budget distributed fairly across all registered streams
// every time ScheduleTransfer runs.
package bandwidth

import (
	"sync"
	"time"

	"github.com/relaypull/fetchd/internal/clock"
	"github.com/relaypull/fetchd/internal/timerio"
)

// Stream is the contract a bandwidth-throttled adapter exposes to the
// controller: how much buffered data it has, and a request to release
// up to n bytes of it to its consumer.
type Stream interface {
	SetBuffer(max int64)
	Available() int64
	Transfer(n int64)
}

// Registration is the handle returned by Register. The controller
// never extends a stream's lifetime through it; a stream deregisters
// itself from close() by calling Remove.
//
// Registration is an index+generation pair into the controller's slot
// slice: Remove is O(1) and reliable, and a Registration outliving
// its slot's reuse is simply ignored.
type Registration struct {
	idx  int
	gen  uint64
	ctrl *Controller
}

// Remove deregisters the stream. Safe to call more than once, and
// safe to call after the controller has already reused the slot.
func (r Registration) Remove() {
	if r.ctrl == nil {
		return
	}
	r.ctrl.remove(r.idx, r.gen)
}

type slot struct {
	gen    uint64
	stream Stream
	active bool
}

// Controller maintains the slot map and drives schedule_transfer.
type Controller struct {
	mu       sync.Mutex
	limit    int64 // bytes per second; expected > 0 (see NewController)
	slots    []slot
	freeList []int
	elapsed  *clock.Elapsed
	timer    *timerio.Timer
	armed    bool
	closed   bool
}

// NewController returns a running Controller capped at limit
// bytes/second. A limit <= 0 is rejected by callers upstream (the CLI
// validates -l); the controller itself does not special-case it.
func NewController(limit int64, c clock.Clock) *Controller {
	ctl := &Controller{
		limit:   limit,
		elapsed: clock.NewElapsed(c),
		timer:   timerio.New(),
	}
	go ctl.watchTimer()
	return ctl
}

func (c *Controller) watchTimer() {
	for ev := range c.timer.Events() {
		switch ev.Kind {
		case timerio.EventFire:
			c.ScheduleTransfer()
		case timerio.EventClose:
			return
		}
	}
}

// Register adds s to the controller, sizing its buffer to 4x the rate
// limit and returning the handle s keeps until close().
func (c *Controller) Register(s Stream) Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.SetBuffer(4 * c.limit)

	var idx int
	if n := len(c.freeList); n > 0 {
		idx = c.freeList[n-1]
		c.freeList = c.freeList[:n-1]
		c.slots[idx].gen++
		c.slots[idx].stream = s
		c.slots[idx].active = true
	} else {
		idx = len(c.slots)
		c.slots = append(c.slots, slot{gen: 1, stream: s, active: true})
	}
	return Registration{idx: idx, gen: c.slots[idx].gen, ctrl: c}
}

func (c *Controller) remove(idx int, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.slots) {
		return
	}
	if c.slots[idx].gen != gen || !c.slots[idx].active {
		return
	}
	c.slots[idx].active = false
	c.slots[idx].stream = nil
	c.freeList = append(c.freeList, idx)
}

// ScheduleTransfer runs one pass of the fair-share algorithm. If the
// elapsed time since the last call yields no budget yet, it arms a
// 50ms timer to retry instead of spinning.
func (c *Controller) ScheduleTransfer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	elapsedMs := c.elapsed.Since().Milliseconds()
	budget := c.limit * elapsedMs / 1000
	if budget <= 0 {
		if !c.armed {
			c.armed = true
			c.timer.Start(50*time.Millisecond, 0)
		}
		return
	}
	c.armed = false

	live := c.liveStreamsLocked()
	pending := int64(len(live))
	for budget > 0 && pending > 0 {
		chunk := budget / pending
		if chunk < 1 {
			chunk = 1
		}
		pending = 0
		for _, s := range live {
			a := s.Available()
			t := a
			if t > chunk {
				t = chunk
			}
			if t == 0 {
				continue
			}
			s.Transfer(t)
			budget -= t
			if a-t > 0 {
				pending++
			}
		}
	}
}

func (c *Controller) liveStreamsLocked() []Stream {
	live := make([]Stream, 0, len(c.slots))
	for _, s := range c.slots {
		if s.active {
			live = append(live, s.stream)
		}
	}
	return live
}

// Close stops the controller's internal retry timer. Registered
// streams are expected to have already deregistered themselves.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.timer.Close()
}
