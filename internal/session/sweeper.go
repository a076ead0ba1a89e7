// ABOUTME: Background loop that deletes expired sessions on an interval
// ABOUTME: Readers never depend on it; Get already expires rows lazily

package session

import (
	"context"
	"time"
)

// Sweeper periodically removes expired sessions.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a sweeper. Call Run to start it.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		manager:  m,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run sweeps every interval until ctx is cancelled. It blocks.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.manager.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.manager.logger.Warn("session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.manager.logger.Info("swept expired sessions", "count", n)
			}
		}
	}
}

// Done is closed once Run returns.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}
