package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// DefaultHoldWindow is how long a pending reservation holds capacity.
const DefaultHoldWindow = 15 * time.Minute

// Sweeper rejects pending reservations whose hold window has elapsed so
// that their units return to the pool.  The reservation coordinator runs
// it for the target event before every capacity check; Run is an optional
// background pass on top of that.
type Sweeper struct {
	reservations *repository.ReservationRepo
	occupancy    *OccupancyService
	window       time.Duration
	log          *zap.Logger
	Now          func() time.Time
}

// NewSweeper returns a Sweeper with the given hold window.  A non-positive
// window falls back to DefaultHoldWindow.  occupancy may be nil; when set,
// its cached entry is dropped for every event a sweep changed.
func NewSweeper(reservations *repository.ReservationRepo, occupancy *OccupancyService, window time.Duration, log *zap.Logger) *Sweeper {
	if window <= 0 {
		window = DefaultHoldWindow
	}
	return &Sweeper{reservations: reservations, occupancy: occupancy, window: window, log: log, Now: utcNow}
}

// Window returns the configured hold window.
func (s *Sweeper) Window() time.Duration { return s.window }

// Cutoff returns the creation time at or before which a pending
// reservation is stale at now.
func (s *Sweeper) Cutoff(now time.Time) time.Time { return now.Add(-s.window) }

// SweepEvent rejects the stale pending reservations of one event.  It is
// idempotent.  A returned error must abort the reservation attempt that
// triggered it.
func (s *Sweeper) SweepEvent(ctx context.Context, eventID uint64, now time.Time) (int64, error) {
	n, err := s.reservations.RejectExpired(ctx, eventID, s.Cutoff(now))
	if err != nil {
		return 0, fmt.Errorf("sweep event %d: %w", eventID, err)
	}
	if n > 0 {
		s.log.Info("swept expired reservations", zap.Uint64("event_id", eventID), zap.Int64("rejected", n))
		if s.occupancy != nil {
			if err := s.occupancy.Invalidate(ctx, eventID); err != nil {
				s.log.Warn("invalidate occupancy after sweep", zap.Uint64("event_id", eventID), zap.Error(err))
			}
		}
	}
	return n, nil
}

// SweepAll sweeps every event that currently has stale reservations and
// returns the total rejected.  It stops at the first error.
func (s *Sweeper) SweepAll(ctx context.Context) (int64, error) {
	now := s.Now()
	ids, err := s.reservations.EventsWithExpired(ctx, s.Cutoff(now))
	if err != nil {
		return 0, fmt.Errorf("list events with expired holds: %w", err)
	}
	var total int64
	for _, id := range ids {
		n, err := s.SweepEvent(ctx, id, now)
		if err != nil {
			return total, err
		}
		metrics.Swept(id, "background", n)
		total += n
	}
	return total, nil
}

// Run calls SweepAll every interval until ctx is cancelled.  Failures are
// logged; the lazy sweep keeps enforcing the hold window regardless.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepAll(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("background sweep failed", zap.Error(err))
			}
		}
	}
}
