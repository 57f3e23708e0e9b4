package usecase

import (
	"sync"
	"time"

	"signscribe/internal/ports"
)

// SystemClock is the wall-clock ports.Clock.
type SystemClock struct{}

func (SystemClock) NewTicker(d time.Duration) ports.Ticker {
	return &systemTicker{ticker: time.NewTicker(d)}
}

type systemTicker struct {
	ticker *time.Ticker
}

func (t *systemTicker) C() <-chan time.Time { return t.ticker.C }
func (t *systemTicker) Stop()               { t.ticker.Stop() }

// intervalTimer owns one ticker and the goroutine draining it. Stop is
// idempotent and never blocks on the callback, so a callback may stop its own
// timer.
type intervalTimer struct {
	ticker ports.Ticker
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// startInterval calls fn on every tick until fn returns false or Stop is called.
func startInterval(clock ports.Clock, every time.Duration, fn func(t *intervalTimer) bool) *intervalTimer {
	t := &intervalTimer{
		ticker: clock.NewTicker(every),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

func (t *intervalTimer) run(fn func(t *intervalTimer) bool) {
	defer close(t.done)
	defer t.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C():
			select {
			case <-t.stop:
				return
			default:
			}
			if !fn(t) {
				return
			}
		}
	}
}

func (t *intervalTimer) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		close(t.stop)
		t.ticker.Stop()
	})
}

// Done is closed once the timer goroutine has exited.
func (t *intervalTimer) Done() <-chan struct{} {
	return t.done
}
