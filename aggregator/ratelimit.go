package aggregator

import (
	"context"
	"sync"
	"time"
)

// rateGate enforces a minimum interval between calls sharing a key. Each
// Wait reserves the next slot under the lock and then sleeps outside it, so
// concurrent callers for the same merchant queue up in reservation order.
type rateGate struct {
	mu       sync.Mutex
	interval time.Duration
	next     map[string]time.Time

	now func() time.Time
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{
		interval: interval,
		next:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Wait blocks until the key's next slot, or until the context is done.
func (g *rateGate) Wait(ctx context.Context, key string) error {
	if g.interval <= 0 {
		return nil
	}

	g.mu.Lock()
	now := g.now()
	slot := g.next[key]
	if slot.Before(now) {
		slot = now
	}
	g.next[key] = slot.Add(g.interval)
	g.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
