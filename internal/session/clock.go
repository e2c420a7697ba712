package session

import (
	"sync"
	"time"
)

// Ticker abstracts time.Ticker so tests can drive ticks deterministically.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

func newRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Clock counts down a quiz time budget in whole seconds. Each tick reports
// the new remaining value; reaching zero reports expiry exactly once and the
// clock stops itself. There is no pause: the countdown is continuous from
// Start until Stop or expiry.
type Clock struct {
	seconds int
	ticker  Ticker

	stopOnce sync.Once
	stop     chan struct{}
}

// NewClock creates a countdown over the given positive number of seconds.
// newTicker may be nil, in which case a real 1s ticker is used.
func NewClock(seconds int, newTicker func(d time.Duration) Ticker) *Clock {
	if newTicker == nil {
		newTicker = newRealTicker
	}

	return &Clock{
		seconds: seconds,
		ticker:  newTicker(time.Second),
		stop:    make(chan struct{}),
	}
}

// Start begins ticking. onTick receives the remaining seconds after each
// tick; it never receives a negative value. onExpire fires once when the
// countdown reaches zero, after the final onTick(0).
func (c *Clock) Start(onTick func(remaining int), onExpire func()) {
	go func() {
		remaining := c.seconds
		for {
			select {
			case <-c.ticker.C():
				remaining--
				if remaining <= 0 {
					onTick(0)
					c.Stop()
					onExpire()
					return
				}
				onTick(remaining)

			case <-c.stop:
				return
			}
		}
	}()
}

// Stop tears down the ticking goroutine. Safe to call multiple times and
// required on session teardown so a tick cannot fire into a dead session.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		c.ticker.Stop()
		close(c.stop)
	})
}
