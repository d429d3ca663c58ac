package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// OccupancyService serves the live occupancy view of an event.  Counts are
// recomputed from reservations and credentials; Redis only shortens the
// path for dashboards that poll.  Writes invalidate the cached entry.
type OccupancyService struct {
	reservations *repository.ReservationRepo
	credentials  *repository.CredentialRepo
	rdb          *redis.Client
	ttl          time.Duration
	log          *zap.Logger
}

// NewOccupancyService returns an OccupancyService.  rdb may be nil, in
// which case every Get recomputes.
func NewOccupancyService(reservations *repository.ReservationRepo, credentials *repository.CredentialRepo, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *OccupancyService {
	return &OccupancyService{reservations: reservations, credentials: credentials, rdb: rdb, ttl: ttl, log: log}
}

func occupancyKey(eventID uint64) string { return "occupancy:" + strconv.FormatUint(eventID, 10) }

// Get returns the occupancy of an event, from cache when fresh.
func (s *OccupancyService) Get(ctx context.Context, eventID uint64) (model.Occupancy, error) {
	if s.rdb != nil && s.ttl > 0 {
		raw, err := s.rdb.Get(ctx, occupancyKey(eventID)).Result()
		switch {
		case err == nil:
			var occ model.Occupancy
			if jerr := json.Unmarshal([]byte(raw), &occ); jerr == nil {
				return occ, nil
			}
		case !errors.Is(err, redis.Nil):
			s.log.Warn("occupancy cache read failed", zap.Uint64("event_id", eventID), zap.Error(err))
		}
	}
	occ, err := s.Compute(ctx, eventID)
	if err != nil {
		return model.Occupancy{}, err
	}
	s.store(ctx, occ)
	return occ, nil
}

// Compute recomputes the occupancy from the database, bypassing the cache.
func (s *OccupancyService) Compute(ctx context.Context, eventID uint64) (model.Occupancy, error) {
	validated, pending, err := s.credentials.CountByStatus(ctx, eventID)
	if err != nil {
		return model.Occupancy{}, fmt.Errorf("count credentials: %w", err)
	}
	reserved, err := s.reservations.OccupiedUnits(ctx, eventID)
	if err != nil {
		return model.Occupancy{}, fmt.Errorf("occupied units: %w", err)
	}
	occ := model.Occupancy{EventID: eventID, Validated: validated, Pending: pending, TotalReserved: reserved}
	metrics.Occupancy(eventID, validated, pending, reserved)
	return occ, nil
}

// Refresh drops the cached entry and recomputes it.  Writers call it after
// commit so that the next poll and the realtime push agree.
func (s *OccupancyService) Refresh(ctx context.Context, eventID uint64) (model.Occupancy, error) {
	if err := s.Invalidate(ctx, eventID); err != nil {
		s.log.Warn("occupancy cache invalidate failed", zap.Uint64("event_id", eventID), zap.Error(err))
	}
	occ, err := s.Compute(ctx, eventID)
	if err != nil {
		return model.Occupancy{}, err
	}
	s.store(ctx, occ)
	return occ, nil
}

// Invalidate removes the cached entry of an event.
func (s *OccupancyService) Invalidate(ctx context.Context, eventID uint64) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, occupancyKey(eventID)).Err()
}

func (s *OccupancyService) store(ctx context.Context, occ model.Occupancy) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}
	b, err := json.Marshal(occ)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, occupancyKey(occ.EventID), string(b), s.ttl).Err(); err != nil {
		s.log.Warn("occupancy cache write failed", zap.Uint64("event_id", occ.EventID), zap.Error(err))
	}
}
