package server

import (
	"context"
	"log"
	"time"

	"github.com/canopyops/portal/internal/repository"
	"github.com/canopyops/portal/internal/telemetry"
)

// SessionSweeper periodically removes expired session rows. Expired sessions
// are already unusable for authentication; the sweep keeps the table from
// accumulating dead rows and stale provider tokens.
type SessionSweeper struct {
	sessions repository.SessionRepository
	metrics  *telemetry.AuthMetrics
	interval time.Duration
}

// NewSessionSweeper creates a sweeper running at the given interval.
func NewSessionSweeper(sessions repository.SessionRepository, metrics *telemetry.AuthMetrics, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{sessions: sessions, metrics: metrics, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is canceled.
func (s *SessionSweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep removes sessions that expired before now. Exposed for administrative
// triggering alongside the background loop.
func (s *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, time.Now())
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	removed, err := s.Sweep(ctx)
	if err != nil {
		log.Printf("session sweep: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("session sweep: removed %d expired sessions", removed)
	}
	s.metrics.RecordSweep(ctx, removed)
}
