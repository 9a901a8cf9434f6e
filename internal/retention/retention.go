// Package retention periodically trims the delivery log.
package retention

import (
	"context"
	"log"
	"time"
)

// DefaultInterval is how often the log is pruned.
const DefaultInterval = time.Hour

// Store deletes deliveries received before an RFC3339 cutoff.
type Store interface {
	PruneDeliveries(cutoff string) (int64, error)
}

// Pruner deletes deliveries older than Keep, once at start and then every Interval.
type Pruner struct {
	Store    Store
	Keep     time.Duration
	Interval time.Duration

	now func() time.Time
}

// New returns a Pruner with DefaultInterval.
func New(store Store, keep time.Duration) *Pruner {
	return &Pruner{Store: store, Keep: keep, Interval: DefaultInterval, now: time.Now}
}

// PruneOnce removes everything older than Keep and returns the number of rows deleted.
func (p *Pruner) PruneOnce() (int64, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().UTC().Add(-p.Keep).Format(time.RFC3339)
	return p.Store.PruneDeliveries(cutoff)
}

// Run prunes until ctx is cancelled. A non-positive Keep disables pruning
// and Run returns immediately.
func (p *Pruner) Run(ctx context.Context) error {
	if p.Keep <= 0 {
		return nil
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	for {
		n, err := p.PruneOnce()
		if err != nil {
			log.Printf("retention: prune failed: %v", err)
		} else if n > 0 {
			log.Printf("retention: pruned %d deliveries older than %s", n, p.Keep)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
