// Package timerio implements one-shot or repeating wakeups, delivered
// as events so a Downloader's owning goroutine can treat timer fires
// the same way it treats socket/file events — a single inbound event
// channel, never a raw callback racing against other state-machine
// input.
package timerio

import (
	"errors"
	"sync"
	"time"
)

// EventKind distinguishes the events a Timer can emit.
type EventKind int

const (
	EventFire EventKind = iota
	EventClose
	EventError
)

// Event is what a Timer sends on its channel.
type Event struct {
	Kind EventKind
	Err  error
}

// Timer is a start/stop/close wrapper over time.Timer that reports
// fires as Events instead of invoking a callback directly, so its
// owner can multiplex it with other event sources via select.
type Timer struct {
	mu      sync.Mutex
	raw     *time.Timer
	timeout time.Duration
	repeat  time.Duration
	events  chan Event
	stopped bool
	closed  bool
}

// New returns a Timer that has not been started yet.
func New() *Timer {
	return &Timer{events: make(chan Event, 4)}
}

// Events returns the channel Fire/Close/Error events are delivered on.
func (t *Timer) Events() <-chan Event { return t.events }

// Start arms the timer. If repeat is 0 it fires once; otherwise it
// re-arms itself with the same repeat duration after every fire.
func (t *Timer) Start(timeout, repeat time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("timerio: start on closed timer")
	}
	if timeout <= 0 {
		err := errors.New("timerio: timeout must be positive")
		t.emitLocked(Event{Kind: EventError, Err: err})
		return err
	}
	t.timeout = timeout
	t.repeat = repeat
	t.stopped = false
	if t.raw != nil {
		t.raw.Stop()
	}
	t.raw = time.AfterFunc(timeout, t.fire)
	return nil
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.closed || t.stopped {
		t.mu.Unlock()
		return
	}
	repeat := t.repeat
	if repeat > 0 {
		t.raw = time.AfterFunc(repeat, t.fire)
	}
	t.mu.Unlock()

	select {
	case t.events <- Event{Kind: EventFire}:
	default:
		// Consumer fell behind; a dropped repeat tick is acceptable,
		// the next one carries the same meaning.
	}
}

// Again restarts the timer with the timeout it was last Start-ed
// with.
func (t *Timer) Again() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("timerio: again on closed timer")
	}
	if t.timeout <= 0 {
		return errors.New("timerio: again called before start")
	}
	t.stopped = false
	if t.raw != nil {
		t.raw.Stop()
	}
	t.raw = time.AfterFunc(t.timeout, t.fire)
	return nil
}

// Stop cancels the pending fire without releasing the handle — a
// later Start or Again can reuse it.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.raw != nil {
		t.raw.Stop()
	}
}

// Close releases the timer and emits exactly one CloseEvent. Closing
// twice is a no-op.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.raw != nil {
		t.raw.Stop()
	}
	t.emitLocked(Event{Kind: EventClose})
}

func (t *Timer) emitLocked(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}
