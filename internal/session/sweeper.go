package session

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	// OnSweep, when set, is called with the number of sessions removed by each pass.
	OnSweep func(ctx context.Context, removed int64)
}

// NewSweeper returns a Sweeper running every interval (default 5m).
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{manager: m, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// Sweep failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("session: sweep failed: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("session: swept %d expired session(s)", n)
	}
	if s.OnSweep != nil {
		s.OnSweep(ctx, n)
	}
}
