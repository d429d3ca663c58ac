package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/scan"
)

// maxOrderNumberAttempts bounds order number regeneration after a
// duplicate key before ErrOrderNumberCollision is surfaced.
const maxOrderNumberAttempts = 3

// CreateReservationInput is the request of ReservationService.Create.
// The declared price fields are optional; when present they must match
// the ticket type's current price so that a purchaser is never charged a
// total they did not see.
type CreateReservationInput struct {
	EventID           uint64
	TicketTypeID      uint64
	UserID            uint64
	Quantity          uint32
	PaymentMethod     string
	DeclaredUnitPrice *decimal.Decimal
	DeclaredTotal     *decimal.Decimal
}

// ReservationResult is a committed reservation with everything created
// alongside it.  ScanPayload is the structured receipt document.
type ReservationResult struct {
	Reservation model.Reservation  `json:"reservation"`
	Credentials []model.Credential `json:"credentials"`
	Payment     model.Payment      `json:"payment"`
	ScanPayload string             `json:"scan_payload"`
}

// ReservationService is the transactional write path for purchases and
// the read path for reservation dashboards.
type ReservationService struct {
	db           *sql.DB
	events       *repository.EventRepo
	ticketTypes  *repository.TicketTypeRepo
	reservations *repository.ReservationRepo
	credentials  *repository.CredentialRepo
	payments     *repository.PaymentRepo
	users        *repository.UserRepo
	sweeper      *Sweeper
	issuer       *Issuer
	occupancy    *OccupancyService
	publisher    Publisher
	log          *zap.Logger

	Now            func() time.Time
	NewOrderNumber func(time.Time) (string, error)
}

// NewReservationService wires a ReservationService over db.  publisher may
// be nil.
func NewReservationService(db *sql.DB, sweeper *Sweeper, issuer *Issuer, occupancy *OccupancyService, publisher Publisher, log *zap.Logger) *ReservationService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ReservationService{
		db:             db,
		events:         repository.NewEventRepo(db),
		ticketTypes:    repository.NewTicketTypeRepo(db),
		reservations:   repository.NewReservationRepo(db),
		credentials:    repository.NewCredentialRepo(db),
		payments:       repository.NewPaymentRepo(db),
		users:          repository.NewUserRepo(db),
		sweeper:        sweeper,
		issuer:         issuer,
		occupancy:      occupancy,
		publisher:      publisher,
		log:            log,
		Now:            utcNow,
		NewOrderNumber: NewOrderNumber,
	}
}

// NewOrderNumber returns "EV" followed by the UTC timestamp to the second
// and 8 random hex characters, e.g. EV20260301100000-9F3A01BC.  The
// timestamp keeps numbers sortable for support staff; the suffix makes
// them unguessable.
func NewOrderNumber(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "EV" + now.UTC().Format("20060102150405") + "-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

// Create reserves in.Quantity units.  The event row is locked for the
// duration of the transaction, so the occupied-units read and the insert
// that depends on it cannot interleave with another reservation for the
// same event.  Either the reservation, all of its credentials and its
// payment commit together or nothing is written.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (res *ReservationResult, err error) {
	ctx, span := tracer().Start(ctx, "reservation.create")
	span.SetAttributes(
		attribute.Int64("event.id", int64(in.EventID)),
		attribute.Int64("ticket_type.id", int64(in.TicketTypeID)),
		attribute.Int("reservation.quantity", int(in.Quantity)),
	)
	start := time.Now()
	defer func() {
		endSpan(span, err)
		if err != nil {
			metrics.ReservationAttempt(in.EventID, Reason(err))
		}
	}()

	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	user, err := s.users.GetByID(ctx, in.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotEligible
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive || user.Role != model.RoleAttendee {
		return nil, ErrUserNotEligible
	}

	now := s.Now()
	swept, err := s.sweeper.SweepEvent(ctx, in.EventID, now)
	if err != nil {
		return nil, err
	}
	metrics.Swept(in.EventID, "lazy", swept)

	res, err = s.createTx(ctx, in, now)
	if err != nil {
		return nil, err
	}

	metrics.ReservationAttempt(in.EventID, "created")
	metrics.ReservationCreated(in.EventID, in.Quantity, time.Since(start))
	s.log.Info("reservation created",
		zap.String("reservation_id", res.Reservation.ID),
		zap.String("order_number", res.Reservation.OrderNumber),
		zap.Uint64("event_id", in.EventID),
		zap.Uint32("quantity", in.Quantity))
	s.afterCreate(ctx, &res.Reservation)
	return res, nil
}

func (s *ReservationService) createTx(ctx context.Context, in CreateReservationInput, now time.Time) (*ReservationResult, error) {
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

	event, err := s.events.LockForUpdateTx(ctx, tx, in.EventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if event.Status != model.EventScheduled {
		return nil, ErrEventNotBookable
	}

	tt, err := s.ticketTypes.GetByIDTx(ctx, tx, in.TicketTypeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTicketTypeMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket type: %w", err)
	}
	if tt.EventID != event.ID {
		return nil, ErrTicketTypeMismatch
	}
	if !tt.IsAvailable {
		return nil, ErrTicketTypeUnavailable
	}

	total := tt.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
	if in.DeclaredUnitPrice != nil && !in.DeclaredUnitPrice.Equal(tt.UnitPrice) {
		return nil, ErrPriceMismatch
	}
	if in.DeclaredTotal != nil && !in.DeclaredTotal.Equal(total) {
		return nil, ErrPriceMismatch
	}

	occupied, err := s.reservations.OccupiedUnitsTx(ctx, tx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("occupied units: %w", err)
	}
	typeOccupied, err := s.reservations.OccupiedByTypeTx(ctx, tx, tt.ID)
	if err != nil {
		return nil, fmt.Errorf("occupied units by type: %w", err)
	}
	available := min(remaining(uint64(event.Capacity), occupied), remaining(uint64(tt.UnitsOffered), typeOccupied))
	if uint64(in.Quantity) > available {
		return nil, &InsufficientCapacityError{Requested: in.Quantity, Available: available}
	}

	r := model.Reservation{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		TicketTypeID:  tt.ID,
		UserID:        in.UserID,
		Quantity:      in.Quantity,
		TotalPrice:    total,
		PaymentMethod: in.PaymentMethod,
		Status:        model.ReservationPending,
		CreatedAt:     now,
	}
	if err := s.insertWithOrderNumber(ctx, tx, &r); err != nil {
		return nil, err
	}

	creds := s.issuer.IssueAll(&r)
	if err := s.credentials.CreateBulkTx(ctx, tx, creds); err != nil {
		return nil, fmt.Errorf("insert credentials: %w", err)
	}

	p := model.Payment{
		ReservationID: r.ID,
		Amount:        total,
		Method:        in.PaymentMethod,
		Status:        model.PaymentPending,
		CreatedAt:     now,
	}
	if err := s.payments.CreateTx(ctx, tx, &p); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	doc, err := s.issuer.Document(&r, nil)
	if err != nil {
		return nil, err
	}
	return &ReservationResult{Reservation: r, Credentials: creds, Payment: p, ScanPayload: string(doc)}, nil
}

// insertWithOrderNumber inserts r, regenerating the order number after a
// duplicate key.  A failed INSERT only rolls back that statement in
// InnoDB, so the surrounding transaction and its event lock stay valid.
func (s *ReservationService) insertWithOrderNumber(ctx context.Context, tx *sql.Tx, r *model.Reservation) error {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		num, err := s.NewOrderNumber(r.CreatedAt)
		if err != nil {
			return fmt.Errorf("order number: %w", err)
		}
		r.OrderNumber = num
		err = s.reservations.CreateTx(ctx, tx, r)
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			metrics.OrderNumberRetry()
			s.log.Warn("order number collision", zap.String("order_number", num), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	}
	return ErrOrderNumberCollision
}

func remaining(limit, used uint64) uint64 {
	if used >= limit {
		return 0
	}
	return limit - used
}

func (s *ReservationService) afterCreate(ctx context.Context, r *model.Reservation) {
	bestEffort(ctx, s.log, "rabbitmq", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, queue.ReservationCreatedQueue, queue.ReservationCreatedEvent{
			ReservationID: r.ID,
			OrderNumber:   r.OrderNumber,
			EventID:       r.EventID,
			TicketTypeID:  r.TicketTypeID,
			UserID:        r.UserID,
			Quantity:      r.Quantity,
			TotalPrice:    r.TotalPrice.StringFixed(2),
			PaymentMethod: r.PaymentMethod,
			CreatedAt:     r.CreatedAt,
		})
	})
	if s.occupancy != nil {
		bestEffort(ctx, s.log, "occupancy_cache", func(ctx context.Context) error {
			return s.occupancy.Invalidate(ctx, r.EventID)
		})
	}
}

// Viewer identifies who is reading a reservation.
type Viewer struct {
	UserID uint64
	Role   string
}

// CanSee reports whether v may read reservations owned by ownerID.
// Attendees only see their own; staff and organizers see all.
func (v Viewer) CanSee(ownerID uint64) bool {
	return v.Role == model.RoleStaff || v.Role == model.RoleOrganizer || v.UserID == ownerID
}

// ListForUser returns the reservations of a user, newest first.
func (s *ReservationService) ListForUser(ctx context.Context, userID uint64) ([]repository.ReservationDetail, error) {
	return s.reservations.ListByUser(ctx, userID)
}

// Get returns one reservation with its credentials.  Reservations of
// other users are reported as not found to attendees.
func (s *ReservationService) Get(ctx context.Context, id string, v Viewer) (*repository.ReservationDetail, error) {
	d, err := s.reservations.GetDetail(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !v.CanSee(d.UserID) {
		return nil, ErrReservationNotFound
	}
	return d, nil
}

// ScanPayload returns what the purchaser's receipt encodes: the compact
// code of one unit when unit is non-nil, else the structured document of
// the whole reservation.  It only reads committed data and can be retried
// independently of the purchase.
func (s *ReservationService) ScanPayload(ctx context.Context, id string, v Viewer, unit *uint32) ([]byte, error) {
	r, err := s.reservations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !v.CanSee(r.UserID) {
		return nil, ErrReservationNotFound
	}
	if unit != nil {
		if *unit >= r.Quantity {
			return nil, ErrInvalidCode
		}
		return []byte(scan.CodeFor(r.ID, *unit)), nil
	}
	return s.issuer.Document(r, nil)
}
