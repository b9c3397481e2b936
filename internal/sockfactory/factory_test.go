package sockfactory

import (
	"testing"

	"github.com/relaypull/fetchd/internal/bandwidth"
	"github.com/relaypull/fetchd/internal/clock"
	"github.com/relaypull/fetchd/internal/netio"
	"github.com/relaypull/fetchd/internal/throttle"
	"github.com/stretchr/testify/assert"
)

func TestFactory_PlainSocket(t *testing.T) {
	f := New(nil, 0)
	assert.False(t, f.Throttled())

	s := f.NewSocket()
	_, ok := s.(*netio.TCPSocket)
	assert.True(t, ok)
}

func TestFactory_ThrottledSocket(t *testing.T) {
	ctrl := bandwidth.NewController(1000, clock.System{})
	defer ctrl.Close()

	f := New(ctrl, 0)
	assert.True(t, f.Throttled())

	s := f.NewSocket()
	_, ok := s.(*throttle.ThrottledSocket)
	assert.True(t, ok)
}
