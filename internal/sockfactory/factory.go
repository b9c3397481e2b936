// Package sockfactory implements component H: plain or
// bandwidth-wrapped socket creation. The orchestrator holds one
// Factory and hands it to every downloader it starts.
package sockfactory

import (
	"github.com/relaypull/fetchd/internal/bandwidth"
	"github.com/relaypull/fetchd/internal/netio"
	"github.com/relaypull/fetchd/internal/throttle"
)

// Factory produces sockets for the downloader. readBufSize sizes each
// raw TCP socket's read buffer; callers typically thread this through
// from RuntimeConfig.GetReadBufferSize.
type Factory struct {
	ctrl        *bandwidth.Controller // nil means unthrottled
	readBufSize int
}

// New returns a Factory. ctrl may be nil, in which case NewSocket
// always returns a plain TCPSocket.
func New(ctrl *bandwidth.Controller, readBufSize int) *Factory {
	return &Factory{ctrl: ctrl, readBufSize: readBufSize}
}

// NewSocket returns a fresh, unconnected socket: a bare TCPSocket when
// no bandwidth controller is configured, or one wrapped by a
// ThrottledSocket adapter registered with the controller otherwise.
func (f *Factory) NewSocket() netio.Socket {
	raw := netio.NewTCPSocket(f.readBufSize)
	if f.ctrl == nil {
		return raw
	}
	return throttle.New(raw, f.ctrl)
}

// Throttled reports whether sockets from this factory are
// bandwidth-limited.
func (f *Factory) Throttled() bool {
	return f.ctrl != nil
}
