package broker

import (
	"context"
	"sync"
	"time"
)

// rateGate enforces the brokerage's account-independent minimum interval
// between outbound calls. The mutex is held across the wait, so exactly one
// caller is in the gate at a time; an unguarded check-then-sleep would let two
// callers observe "elapsed" and fire together.
type rateGate struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{interval: interval}
}

func (g *rateGate) wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() {
		if remaining := g.interval - time.Since(g.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	g.last = time.Now()
	return nil
}
