package bandwidth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

type fakeStream struct {
	available int64
	transfers []int64
	bufMax    int64
}

func (s *fakeStream) SetBuffer(max int64) { s.bufMax = max }
func (s *fakeStream) Available() int64    { return s.available }
func (s *fakeStream) Transfer(n int64) {
	s.transfers = append(s.transfers, n)
	s.available -= n
}

func TestController_Register_SetsQuadrupleBuffer(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	c := NewController(1000, fc)
	defer c.Close()

	s := &fakeStream{}
	c.Register(s)
	assert.Equal(t, int64(4000), s.bufMax)
}

// S6 — fair split: equal availables, budget exactly covers all.
func TestController_FairSplit_S6(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	c := NewController(9000, fc)
	defer c.Close()

	s1 := &fakeStream{available: 3000}
	s2 := &fakeStream{available: 3000}
	s3 := &fakeStream{available: 3000}
	c.Register(s1)
	c.Register(s2)
	c.Register(s3)

	fc.t = fc.t.Add(time.Second)
	c.ScheduleTransfer()

	require.Len(t, s1.transfers, 1)
	require.Len(t, s2.transfers, 1)
	require.Len(t, s3.transfers, 1)
	assert.Equal(t, int64(3000), s1.transfers[0])
	assert.Equal(t, int64(3000), s2.transfers[0])
	assert.Equal(t, int64(3000), s3.transfers[0])
	assert.Equal(t, int64(0), s1.available)
	assert.Equal(t, int64(0), s2.available)
	assert.Equal(t, int64(0), s3.available)
}

// S7 — redistribution: uneven availables, all drained to 0.
func TestController_Redistribution_S7(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	c := NewController(9000, fc)
	defer c.Close()

	s1 := &fakeStream{available: 3500}
	s2 := &fakeStream{available: 1000}
	s3 := &fakeStream{available: 4500}
	c.Register(s1)
	c.Register(s2)
	c.Register(s3)

	fc.t = fc.t.Add(time.Second)
	c.ScheduleTransfer()

	assert.Equal(t, int64(0), s1.available)
	assert.Equal(t, int64(0), s2.available)
	assert.Equal(t, int64(0), s3.available)

	var total int64
	for _, n := range s1.transfers {
		total += n
	}
	for _, n := range s2.transfers {
		total += n
	}
	for _, n := range s3.transfers {
		total += n
	}
	assert.Equal(t, int64(9000), total)
}

// S8 — zero-budget deferral: first call yields no budget, arms a
// timer, second call (driven by the fired timer) drains streams.
func TestController_ZeroBudgetDeferral_S8(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	c := NewController(9000, fc)
	defer c.Close()

	s := &fakeStream{available: 100}
	c.Register(s)

	c.ScheduleTransfer() // elapsed == 0 -> no budget, timer armed
	assert.Empty(t, s.transfers)

	fc.t = fc.t.Add(50 * time.Millisecond)

	// The controller's own watchTimer goroutine invokes
	// ScheduleTransfer again once the 50ms retry timer fires.
	require.Eventually(t, func() bool {
		return len(s.transfers) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(100), s.transfers[0])
}

func TestController_Remove_StopsFutureTransfers(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	c := NewController(9000, fc)
	defer c.Close()

	s := &fakeStream{available: 100}
	reg := c.Register(s)
	reg.Remove()

	fc.t = fc.t.Add(time.Second)
	c.ScheduleTransfer()

	assert.Empty(t, s.transfers)
}

func TestController_RemoveIsIdempotentAndSlotReusable(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	c := NewController(9000, fc)
	defer c.Close()

	s1 := &fakeStream{available: 100}
	reg1 := c.Register(s1)
	reg1.Remove()
	reg1.Remove() // no panic, no-op

	s2 := &fakeStream{available: 200}
	c.Register(s2)

	fc.t = fc.t.Add(time.Second)
	c.ScheduleTransfer()

	assert.Empty(t, s1.transfers)
	require.Len(t, s2.transfers, 1)
	assert.Equal(t, int64(200), s2.transfers[0])
}
