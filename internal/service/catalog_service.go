package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// ErrInvalidInput wraps catalog validation failures.
var ErrInvalidInput = errors.New("invalid input")

// CatalogService is the minimal event and ticket type management the core
// needs to be usable on its own.  A full event-management surface would
// replace it.
type CatalogService struct {
	db          *sql.DB
	events      *repository.EventRepo
	ticketTypes *repository.TicketTypeRepo
	log         *zap.Logger
}

// NewCatalogService wires a CatalogService over db.
func NewCatalogService(db *sql.DB, log *zap.Logger) *CatalogService {
	return &CatalogService{
		db:          db,
		events:      repository.NewEventRepo(db),
		ticketTypes: repository.NewTicketTypeRepo(db),
		log:         log,
	}
}

// CreateEvent creates a scheduled event owned by organizerID.
func (s *CatalogService) CreateEvent(ctx context.Context, organizerID uint64, name string, capacity uint32, startsAt time.Time) (*model.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" || capacity == 0 || startsAt.IsZero() {
		return nil, fmt.Errorf("%w: name, capacity and starts_at are required", ErrInvalidInput)
	}
	e := &model.Event{OrganizerID: organizerID, Name: name, Capacity: capacity, StartsAt: startsAt}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}
	s.log.Info("event created", zap.Uint64("event_id", e.ID), zap.Uint32("capacity", capacity))
	return e, nil
}

// GetEvent returns an event with its ticket types.
func (s *CatalogService) GetEvent(ctx context.Context, id uint64) (*model.Event, []model.TicketType, error) {
	e, err := s.events.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrEventNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	types, err := s.ticketTypes.ListByEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return e, types, nil
}

// AddTicketType adds a priced ticket type to an event the organizer owns.
func (s *CatalogService) AddTicketType(ctx context.Context, organizerID, eventID uint64, name string, price decimal.Decimal, units uint32) (*model.TicketType, error) {
	name = strings.TrimSpace(name)
	if name == "" || units == 0 || price.IsNegative() {
		return nil, fmt.Errorf("%w: name, non-negative price and units are required", ErrInvalidInput)
	}
	e, err := s.owned(ctx, organizerID, eventID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EventScheduled {
		return nil, ErrEventNotBookable
	}
	t := &model.TicketType{EventID: eventID, Name: name, UnitPrice: price, UnitsOffered: units, IsAvailable: true}
	if err := s.ticketTypes.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateStatus moves an event along scheduled→in_progress→finished.
// Cancellation goes through CancellationService instead.
func (s *CatalogService) UpdateStatus(ctx context.Context, organizerID, eventID uint64, to model.EventStatus) (*model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	e, err := s.events.LockForUpdateTx(ctx, tx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.OrganizerID != organizerID {
		return nil, repository.ErrForbidden
	}
	if !e.Status.CanTransitionTo(to) {
		return nil, ErrInvalidTransition
	}
	if err := s.events.UpdateStatusTx(ctx, tx, e.ID, e.Status, to); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	e.Status = to
	return e, nil
}

func (s *CatalogService) owned(ctx context.Context, organizerID, eventID uint64) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.OrganizerID != organizerID {
		return nil, repository.ErrForbidden
	}
	return e, nil
}
