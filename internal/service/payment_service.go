package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// PaymentService applies the payment collaborator's signal to a
// reservation.  completed confirms the reservation and failed rejects it;
// both only apply to pending reservations, which keeps transitions
// forward only.
type PaymentService struct {
	db           *sql.DB
	reservations *repository.ReservationRepo
	payments     *repository.PaymentRepo
	sweeper      *Sweeper
	occupancy    *OccupancyService
	publisher    Publisher
	log          *zap.Logger

	Now func() time.Time
}

// NewPaymentService wires a PaymentService over db.
func NewPaymentService(db *sql.DB, sweeper *Sweeper, occupancy *OccupancyService, publisher Publisher, log *zap.Logger) *PaymentService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &PaymentService{
		db:           db,
		reservations: repository.NewReservationRepo(db),
		payments:     repository.NewPaymentRepo(db),
		sweeper:      sweeper,
		occupancy:    occupancy,
		publisher:    publisher,
		log:          log,
		Now:          utcNow,
	}
}

// PaymentSignal is the inbound payment notification.
type PaymentSignal struct {
	ReservationID string
	Status        model.PaymentStatus
	ExternalRef   *string
}

// Apply records the signal.  A completed payment that arrives after the
// hold window has elapsed does not confirm the reservation: the hold is
// rejected in the same transaction and ErrHoldExpired is returned so the
// collaborator can refund.
func (s *PaymentService) Apply(ctx context.Context, sig PaymentSignal) (*model.Reservation, error) {
	if sig.Status != model.PaymentCompleted && sig.Status != model.PaymentFailed {
		return nil, ErrInvalidTransition
	}
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

	r, err := s.reservations.GetForUpdateTx(ctx, tx, sig.ReservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	if r.Status != model.ReservationPending {
		return nil, ErrInvalidTransition
	}

	to, payTo := model.ReservationConfirmed, sig.Status
	expired := !r.CreatedAt.After(s.sweeper.Cutoff(now))
	if sig.Status == model.PaymentFailed || expired {
		to, payTo = model.ReservationRejected, model.PaymentFailed
	}
	if err := s.reservations.TransitionTx(ctx, tx, r.ID, model.ReservationPending, to); err != nil {
		return nil, fmt.Errorf("transition reservation: %w", err)
	}
	if err := s.payments.SettleTx(ctx, tx, r.ID, payTo, sig.ExternalRef); err != nil && !errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	r.Status = to

	s.log.Info("payment signal applied",
		zap.String("reservation_id", r.ID),
		zap.String("payment_status", string(sig.Status)),
		zap.String("reservation_status", string(to)))
	if s.occupancy != nil {
		bestEffort(ctx, s.log, "occupancy_cache", func(ctx context.Context) error {
			return s.occupancy.Invalidate(ctx, r.EventID)
		})
	}
	if to == model.ReservationRejected {
		bestEffort(ctx, s.log, "rabbitmq", func(ctx context.Context) error {
			return s.publisher.Publish(ctx, queue.NotificationQueue, queue.AttendeeNotification{
				Kind:          queue.NotifyPaymentFailed,
				UserID:        r.UserID,
				ReservationID: r.ID,
				EventID:       r.EventID,
				At:            now,
			})
		})
	}
	if expired && sig.Status == model.PaymentCompleted {
		return r, ErrHoldExpired
	}
	return r, nil
}
