// coarsetime provides a coarse clock for timestamps taken on every request and
// every read, where time.Now() would show up in profiles.
// It updates the current time at a fixed interval (50ms) in a separate goroutine.
//

package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var now atomic.Value

func init() {
	now.Store(time.Now())
	go refresh(time.NewTicker(tick))
}

func refresh(t *time.Ticker) {
	for range t.C {
		now.Store(time.Now())
	}
}

// Now returns the current time, at most one tick old.
func Now() time.Time {
	return now.Load().(time.Time)
}

// Since returns the time elapsed since t, with the precision of Now.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
