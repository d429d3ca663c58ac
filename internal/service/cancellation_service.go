package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// CancellationSummary reports what cancelling an event changed.
type CancellationSummary struct {
	EventID     uint64          `json:"event_id"`
	Cancelled   int             `json:"cancelled_reservations"`
	Rejected    int             `json:"rejected_reservations"`
	Refunds     int             `json:"refunds"`
	RefundTotal decimal.Decimal `json:"refund_total"`
}

// CancellationService cancels events.  The event row lock taken here is
// the same one the reservation coordinator takes, so no reservation can
// commit for an event while it is being cancelled.
type CancellationService struct {
	db           *sql.DB
	events       *repository.EventRepo
	reservations *repository.ReservationRepo
	payments     *repository.PaymentRepo
	occupancy    *OccupancyService
	publisher    Publisher
	log          *zap.Logger

	Now func() time.Time
}

// NewCancellationService wires a CancellationService over db.
func NewCancellationService(db *sql.DB, occupancy *OccupancyService, publisher Publisher, log *zap.Logger) *CancellationService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &CancellationService{
		db:           db,
		events:       repository.NewEventRepo(db),
		reservations: repository.NewReservationRepo(db),
		payments:     repository.NewPaymentRepo(db),
		occupancy:    occupancy,
		publisher:    publisher,
		log:          log,
		Now:          utcNow,
	}
}

type cancelled struct {
	res      model.Reservation
	refunded decimal.Decimal
}

// CancelEvent cancels an event owned by organizerID.  Confirmed
// reservations become cancelled and get a refund record for their
// completed payment; pending ones are rejected and their payment failed.
// One attendee notification per affected reservation is published after
// commit.
func (s *CancellationService) CancelEvent(ctx context.Context, eventID, organizerID uint64) (*CancellationSummary, error) {
	now := s.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	event, err := s.events.LockForUpdateTx(ctx, tx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if event.OrganizerID != organizerID {
		return nil, repository.ErrForbidden
	}
	if event.Status == model.EventCancelled || event.Status == model.EventFinished {
		return nil, ErrInvalidTransition
	}
	if err := s.events.UpdateStatusTx(ctx, tx, event.ID, event.Status, model.EventCancelled); err != nil {
		return nil, fmt.Errorf("cancel event: %w", err)
	}

	holding, err := s.reservations.ListHoldingByEventTx(ctx, tx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	sum := &CancellationSummary{EventID: event.ID, RefundTotal: decimal.Zero}
	affected := make([]cancelled, 0, len(holding))
	for _, r := range holding {
		c := cancelled{res: r, refunded: decimal.Zero}
		switch r.Status {
		case model.ReservationConfirmed:
			if err := s.reservations.TransitionTx(ctx, tx, r.ID, model.ReservationConfirmed, model.ReservationCancelled); err != nil {
				return nil, fmt.Errorf("cancel reservation %s: %w", r.ID, err)
			}
			c.res.Status = model.ReservationCancelled
			sum.Cancelled++
			p, err := s.payments.GetByReservationTx(ctx, tx, r.ID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("load payment %s: %w", r.ID, err)
			}
			if p != nil && p.Status == model.PaymentCompleted {
				rf := &model.Refund{PaymentID: p.ID, ReservationID: r.ID, Amount: p.Amount, Reason: "event_cancelled", CreatedAt: now}
				if err := s.payments.CreateRefundTx(ctx, tx, rf); err != nil {
					return nil, fmt.Errorf("refund %s: %w", r.ID, err)
				}
				c.refunded = p.Amount
				sum.Refunds++
				sum.RefundTotal = sum.RefundTotal.Add(p.Amount)
			}
		case model.ReservationPending:
			if err := s.reservations.TransitionTx(ctx, tx, r.ID, model.ReservationPending, model.ReservationRejected); err != nil {
				return nil, fmt.Errorf("reject reservation %s: %w", r.ID, err)
			}
			if err := s.payments.SettleTx(ctx, tx, r.ID, model.PaymentFailed, nil); err != nil && !errors.Is(err, repository.ErrConflict) {
				return nil, fmt.Errorf("fail payment %s: %w", r.ID, err)
			}
			c.res.Status = model.ReservationRejected
			sum.Rejected++
		}
		affected = append(affected, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	s.log.Info("event cancelled",
		zap.Uint64("event_id", event.ID),
		zap.Int("cancelled", sum.Cancelled),
		zap.Int("rejected", sum.Rejected),
		zap.String("refund_total", sum.RefundTotal.StringFixed(2)))
	for _, c := range affected {
		n := queue.AttendeeNotification{
			Kind:          queue.NotifyEventCancelled,
			UserID:        c.res.UserID,
			ReservationID: c.res.ID,
			EventID:       event.ID,
			EventName:     event.Name,
			At:            now,
		}
		if c.refunded.IsPositive() {
			n.Refunded = c.refunded.StringFixed(2)
		}
		bestEffort(ctx, s.log, "rabbitmq", func(ctx context.Context) error {
			return s.publisher.Publish(ctx, queue.NotificationQueue, n)
		})
	}
	if s.occupancy != nil {
		bestEffort(ctx, s.log, "occupancy_cache", func(ctx context.Context) error {
			return s.occupancy.Invalidate(ctx, event.ID)
		})
	}
	return sum, nil
}
