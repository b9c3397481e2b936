// Package throttle implements the bandwidth-throttled socket adapter:
// it wraps a raw socket, buffers its DataEvents in a FIFO, and only
// releases bytes to its own consumer when the bandwidth controller
// calls Transfer.
package throttle

import (
	"context"
	"net"
	"sync"

	"github.com/relaypull/fetchd/internal/bandwidth"
	"github.com/relaypull/fetchd/internal/netio"
	"github.com/relaypull/fetchd/internal/types"
)

// Registrar is the subset of *bandwidth.Controller a ThrottledSocket
// needs; narrowed to an interface so tests can substitute a stub.
type Registrar interface {
	Register(s bandwidth.Stream) bandwidth.Registration
	ScheduleTransfer()
}

// ThrottledSocket implements netio.Socket for its consumer and
// bandwidth.Stream for the controller. It tracks two independent
// flags: paused (raw socket stopped because the FIFO is full) and
// stopped (consumer asked to stop reading).
type ThrottledSocket struct {
	mu         sync.Mutex
	raw        netio.Socket
	events     chan netio.SocketEvent
	ctrl       Registrar
	reg        bandwidth.Registration
	fifo       []types.DataChunk
	bufferUsed int64
	bufferMax  int64
	paused     bool
	stopped    bool
	eof        bool
	closed     bool
}

// New wraps raw and registers the adapter with ctrl. stopped starts
// true: a freshly constructed stream does not read until its consumer
// calls Read().
func New(raw netio.Socket, ctrl Registrar) *ThrottledSocket {
	t := &ThrottledSocket{
		raw:     raw,
		events:  make(chan netio.SocketEvent, 32),
		ctrl:    ctrl,
		stopped: true,
	}
	t.reg = ctrl.Register(t)
	go t.pump()
	return t
}

func (t *ThrottledSocket) Events() <-chan netio.SocketEvent { return t.events }

// --- netio.Socket ---

func (t *ThrottledSocket) Connect(ctx context.Context, ip net.IP, port int) {
	t.raw.Connect(ctx, ip, port)
}

func (t *ThrottledSocket) Read() {
	t.mu.Lock()
	t.stopped = false
	paused := t.paused
	t.mu.Unlock()
	if !paused {
		t.raw.Read()
	}
}

func (t *ThrottledSocket) Stop() {
	t.mu.Lock()
	t.stopped = true
	paused := t.paused
	t.mu.Unlock()
	if !paused {
		t.raw.Stop()
	}
}

func (t *ThrottledSocket) Write(data []byte) error { return t.raw.Write(data) }

func (t *ThrottledSocket) Shutdown() { t.raw.Shutdown() }

func (t *ThrottledSocket) IsActive() bool {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	return !stopped || t.raw.IsActive()
}

// Close deregisters from the controller and closes the raw socket.
// The adapter's own CloseEvent follows once the raw socket's does.
func (t *ThrottledSocket) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.reg.Remove()
	t.raw.Close()
}

// --- bandwidth.Stream ---

func (t *ThrottledSocket) SetBuffer(max int64) {
	t.mu.Lock()
	t.bufferMax = max
	t.mu.Unlock()
}

func (t *ThrottledSocket) Available() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bufferUsed
}

// Transfer releases up to n bytes from the FIFO as a single owned
// buffer, possibly spanning several chunks.
func (t *ThrottledSocket) Transfer(n int64) {
	t.mu.Lock()
	if t.stopped || n == 0 || t.bufferUsed == 0 {
		t.mu.Unlock()
		return
	}

	take := n
	if take > t.bufferUsed {
		take = t.bufferUsed
	}

	buf := make([]byte, 0, take)
	remaining := take
	for remaining > 0 && len(t.fifo) > 0 {
		c := &t.fifo[0]
		avail := int64(c.Remaining())
		chunkTake := avail
		if chunkTake > remaining {
			chunkTake = remaining
		}
		buf = append(buf, c.Data[c.Offset:c.Offset+int(chunkTake)]...)
		c.Offset += int(chunkTake)
		remaining -= chunkTake
		if c.Remaining() == 0 {
			t.fifo = t.fifo[1:]
		}
	}
	t.bufferUsed -= take

	var becomeStopped, clearPause bool
	if t.eof && t.bufferUsed == 0 {
		becomeStopped = true
		t.stopped = true
	} else if t.paused && t.bufferUsed < t.bufferMax {
		clearPause = true
		t.paused = false
	}
	t.mu.Unlock()

	t.emit(netio.SocketEvent{Kind: netio.SockData, Data: buf})
	switch {
	case becomeStopped:
		t.emit(netio.SocketEvent{Kind: netio.SockEnd})
	case clearPause:
		t.raw.Read()
	}
}

func (t *ThrottledSocket) pump() {
	for ev := range t.raw.Events() {
		switch ev.Kind {
		case netio.SockData:
			t.onRawData(ev.Data)
		case netio.SockEnd:
			t.onRawEnd()
		case netio.SockClose:
			t.emit(ev)
			close(t.events)
			return
		default:
			t.emit(ev)
		}
	}
}

func (t *ThrottledSocket) onRawData(data []byte) {
	t.mu.Lock()
	t.fifo = append(t.fifo, types.DataChunk{Data: data, Length: len(data)})
	t.bufferUsed += int64(len(data))
	pause := false
	if t.bufferUsed >= t.bufferMax {
		t.paused = true
		pause = true
	}
	t.mu.Unlock()

	if pause {
		t.raw.Stop()
	}
	t.ctrl.ScheduleTransfer()
}

func (t *ThrottledSocket) onRawEnd() {
	t.mu.Lock()
	t.eof = true
	drained := t.bufferUsed == 0
	if drained {
		t.stopped = true
	}
	t.mu.Unlock()

	if drained {
		t.emit(netio.SocketEvent{Kind: netio.SockEnd})
	}
	// Otherwise EndEvent is deferred until Transfer drains the FIFO.
}

func (t *ThrottledSocket) emit(ev netio.SocketEvent) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed && ev.Kind != netio.SockClose {
		return
	}
	t.events <- ev
}
