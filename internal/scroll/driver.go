package scroll

import (
	"sync"
	"time"
)

// DefaultTickRate is the driver frequency the reference UI renders at.
const DefaultTickRate = 60

// Driver delivers a periodic tick callback. Implementations own the
// goroutine the callback runs on.
type Driver interface {
	// Run invokes tick at the driver's frequency until Stop is called.
	Run(tick func(now time.Time))

	// Stop halts the driver and waits for the callback goroutine to
	// exit; no tick is delivered after Stop returns. Idempotent.
	Stop()
}

// TickerDriver drives ticks from a wall-clock [time.Ticker].
type TickerDriver struct {
	interval time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewTickerDriver creates a driver firing hz times per second. Non-positive
// rates fall back to [DefaultTickRate].
func NewTickerDriver(hz int) *TickerDriver {
	if hz <= 0 {
		hz = DefaultTickRate
	}
	return &TickerDriver{
		interval: time.Second / time.Duration(hz),
		done:     make(chan struct{}),
	}
}

// Run starts the ticker goroutine and returns immediately.
func (d *TickerDriver) Run(tick func(now time.Time)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.done:
				return
			case now := <-ticker.C:
				tick(now)
			}
		}
	}()
}

// Stop halts the ticker and blocks until the last callback has returned.
func (d *TickerDriver) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}
