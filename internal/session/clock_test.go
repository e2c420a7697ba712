package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/proctorquiz/internal/session"
)

func TestClock_CountsDownToZero(t *testing.T) {
	t.Parallel()

	ft := newFakeTicker()
	clk := session.NewClock(3, ft.factory())

	ticks := make(chan int, 8)
	expired := make(chan struct{})
	clk.Start(
		func(remaining int) { ticks <- remaining },
		func() { close(expired) },
	)

	ft.tick()
	assert.Equal(t, 2, <-ticks)
	ft.tick()
	assert.Equal(t, 1, <-ticks)
	ft.tick()
	assert.Equal(t, 0, <-ticks)

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("expiry did not fire")
	}
}

func TestClock_StopPreventsFurtherTicks(t *testing.T) {
	t.Parallel()

	ft := newFakeTicker()
	clk := session.NewClock(10, ft.factory())

	ticks := make(chan int, 8)
	clk.Start(
		func(remaining int) { ticks <- remaining },
		func() { t.Error("expiry fired on a stopped clock") },
	)

	ft.tick()
	require.Equal(t, 9, <-ticks)

	clk.Stop()
	clk.Stop() // idempotent

	select {
	case r := <-ticks:
		t.Fatalf("tick after stop: remaining=%d", r)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeTicker drives the countdown from the test instead of wall time.
type fakeTicker struct {
	ch chan time.Time
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

func (f *fakeTicker) tick() {
	select {
	case f.ch <- time.Time{}:
	case <-time.After(time.Second):
	}
}

func (f *fakeTicker) factory() func(time.Duration) session.Ticker {
	return func(time.Duration) session.Ticker { return f }
}

// neverTicker keeps the countdown frozen so tests can exercise the session
// without racing the clock.
type neverTicker struct{}

func (neverTicker) C() <-chan time.Time { return nil }
func (neverTicker) Stop()               {}

func frozenClock(time.Duration) session.Ticker { return neverTicker{} }
