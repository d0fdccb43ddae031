package prayer

import (
	"context"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
)

// Tick is one evaluation of the live countdown.
type Tick struct {
	Event     *model.NextEvent `json:"event"`
	Remaining time.Duration    `json:"-"`
	Countdown string           `json:"countdown"`
	At        time.Time        `json:"at"`
}

// Evaluate combines Next and Countdown for a single instant.
func Evaluate(table *model.DailyTable, now time.Time) (Tick, bool) {
	ev, ok := Next(table, now)
	if !ok {
		return Tick{At: now}, false
	}
	remaining, text, err := Countdown(ev.Time, now)
	if err != nil {
		return Tick{At: now}, false
	}
	return Tick{Event: ev, Remaining: remaining, Countdown: text, At: now}, true
}

// Ticker re-runs a callback on a fixed interval until stopped. It is the
// only mutable state of the countdown and must be stopped on teardown.
type Ticker struct {
	Interval time.Duration
	Now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTicker() *Ticker {
	return &Ticker{Interval: time.Second, Now: time.Now}
}

// Start calls fn immediately and then on every interval until ctx is done
// or Stop is called. Starting a running ticker restarts it.
func (t *Ticker) Start(ctx context.Context, fn func(now time.Time)) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()

		fn(t.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(t.Now())
			}
		}
	}()
}

// Stop halts the ticker and waits for the running callback to return. It
// must not be called from inside the callback.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
