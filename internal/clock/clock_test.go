package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func TestElapsed_Since(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	e := NewElapsed(fc)

	fc.t = fc.t.Add(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, e.Since())

	// Second call measures from the previous Since(), not construction.
	fc.t = fc.t.Add(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, e.Since())
}

func TestElapsed_NeverNegative(t *testing.T) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	e := NewElapsed(fc)
	fc.t = fc.t.Add(-10 * time.Millisecond)
	assert.Equal(t, time.Duration(0), e.Since())
}
