// Package worker runs background maintenance loops for the booking
// engine.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/spotmarket/slot-reservation/internal/booking"
)

// Expirer periodically fails PENDING reservations whose hold has aged
// out, releasing their slots for other customers.
type Expirer struct {
	engine   *booking.Engine
	interval time.Duration
}

// NewExpirer constructs an Expirer sweeping at the given interval.
func NewExpirer(engine *booking.Engine, interval time.Duration) *Expirer {
	if engine == nil {
		panic("nil engine passed to NewExpirer")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Expirer{engine: engine, interval: interval}
}

// Run sweeps until the context is cancelled.  Sweep failures are logged
// and retried on the next tick; stale holds are harmless in the interim
// because confirm rejects them independently of the sweeper.
func (w *Expirer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.engine.ExpireStale(ctx)
			if err != nil {
				log.Printf("expirer: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("expirer: expired %d stale reservations", n)
			}
		}
	}
}
