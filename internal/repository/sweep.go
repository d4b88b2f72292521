package repository

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired entries from an in-memory store.
type Sweeper interface {
	Sweep(now time.Time) int
}

// RunSweeper calls s.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, name string, s Sweeper, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				slog.Debug("swept expired entries", "store", name, "count", n)
			}
		}
	}
}
