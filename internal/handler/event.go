package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// Catalog is the part of *service.CatalogService the handlers use.
type Catalog interface {
	CreateEvent(ctx context.Context, organizerID uint64, name string, capacity uint32, startsAt time.Time) (*model.Event, error)
	GetEvent(ctx context.Context, id uint64) (*model.Event, []model.TicketType, error)
	AddTicketType(ctx context.Context, organizerID, eventID uint64, name string, price decimal.Decimal, units uint32) (*model.TicketType, error)
	UpdateStatus(ctx context.Context, organizerID, eventID uint64, to model.EventStatus) (*model.Event, error)
}

// Canceller is the part of *service.CancellationService the handlers use.
type Canceller interface {
	CancelEvent(ctx context.Context, eventID, organizerID uint64) (*service.CancellationSummary, error)
}

// EventHandler serves event browsing and the organizer's event
// management.
type EventHandler struct {
	Catalog Catalog
	Cancel  Canceller
}

func NewEventHandler(cat Catalog, cancel Canceller) *EventHandler {
	if cat == nil || cancel == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Catalog: cat, Cancel: cancel}
}

// publicTicketType hides bookkeeping fields from guests.
type publicTicketType struct {
	ID           uint64          `json:"id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitsOffered uint32          `json:"units_offered"`
	IsAvailable  bool            `json:"is_available"`
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	e, types, err := h.Catalog.GetEvent(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]publicTicketType, 0, len(types))
	for _, t := range types {
		out = append(out, publicTicketType{ID: t.ID, Name: t.Name, UnitPrice: t.UnitPrice, UnitsOffered: t.UnitsOffered, IsAvailable: t.IsAvailable})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":           e.ID,
		"name":         e.Name,
		"capacity":     e.Capacity,
		"status":       e.Status,
		"starts_at":    e.StartsAt,
		"ticket_types": out,
	})
}

type createEventReq struct {
	Name     string    `json:"name"`
	Capacity uint32    `json:"capacity"`
	StartsAt time.Time `json:"starts_at"`
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(c echo.Context) error {
	orgID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body createEventReq
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	e, err := h.Catalog.CreateEvent(ctx, orgID, body.Name, body.Capacity, body.StartsAt)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

type addTicketTypeReq struct {
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitsOffered uint32          `json:"units_offered"`
}

// AddTicketType handles POST /v1/events/:id/ticket-types.
func (h *EventHandler) AddTicketType(c echo.Context) error {
	orgID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body addTicketTypeReq
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	t, err := h.Catalog.AddTicketType(ctx, orgID, eventID, body.Name, body.UnitPrice, body.UnitsOffered)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

type statusReq struct {
	Status model.EventStatus `json:"status"`
}

// UpdateStatus handles PATCH /v1/events/:id/status.
func (h *EventHandler) UpdateStatus(c echo.Context) error {
	orgID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body statusReq
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	e, err := h.Catalog.UpdateStatus(ctx, orgID, eventID, body.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// CancelEvent handles POST /v1/events/:id/cancel.
func (h *EventHandler) CancelEvent(c echo.Context) error {
	orgID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	sum, err := h.Cancel.CancelEvent(ctx, eventID, orgID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}
