package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/receipt"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// Reservations is the part of *service.ReservationService the handlers use.
type Reservations interface {
	Create(ctx context.Context, in service.CreateReservationInput) (*service.ReservationResult, error)
	ListForUser(ctx context.Context, userID uint64) ([]repository.ReservationDetail, error)
	Get(ctx context.Context, id string, v service.Viewer) (*repository.ReservationDetail, error)
	ScanPayload(ctx context.Context, id string, v service.Viewer, unit *uint32) ([]byte, error)
}

// ReservationHandler serves purchases and the attendee's reservation views.
type ReservationHandler struct {
	Reservations Reservations
}

func NewReservationHandler(r Reservations) *ReservationHandler {
	if r == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: r}
}

type createReservationReq struct {
	TicketTypeID  uint64           `json:"ticket_type_id"`
	Quantity      uint32           `json:"quantity"`
	PaymentMethod string           `json:"payment_method"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
}

// Create handles POST /v1/events/:id/reservations.  On success it returns
// 201 with the reservation, its credentials, the pending payment and the
// structured scan payload.  A capacity shortfall is 409 with the number of
// units still available.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body createReservationReq
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.TicketTypeID == 0 {
		return badRequest(c, "ticket_type_id is required")
	}
	method := strings.TrimSpace(body.PaymentMethod)
	if method == "" {
		return badRequest(c, "payment_method is required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.Reservations.Create(ctx, service.CreateReservationInput{
		EventID:           eventID,
		TicketTypeID:      body.TicketTypeID,
		UserID:            userID,
		Quantity:          body.Quantity,
		PaymentMethod:     method,
		DeclaredUnitPrice: body.UnitPrice,
		DeclaredTotal:     body.Total,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	list, err := h.Reservations.ListForUser(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	v, err := viewer(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	d, err := h.Reservations.Get(ctx, c.Param("id"), v)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// ScanPayload handles GET /v1/reservations/:id/scan-payload?unit=N.
// Without unit the structured document of the whole reservation is
// returned.
func (h *ReservationHandler) ScanPayload(c echo.Context) error {
	payload, err := h.payload(c)
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	return c.JSON(http.StatusOK, echo.Map{"payload": string(payload)})
}

// QR handles GET /v1/reservations/:id/qr?unit=N&size=px and returns the
// scan payload rendered as a PNG QR code.
func (h *ReservationHandler) QR(c echo.Context) error {
	size := receipt.DefaultSize
	if s := c.QueryParam("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 2048 {
			return badRequest(c, "size must be between 64 and 2048")
		}
		size = n
	}
	payload, err := h.payload(c)
	if err != nil || payload == nil {
		return err
	}
	png, err := receipt.PNG(payload, size)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

// payload resolves the scan payload or writes the error response, in
// which case it returns nil, nil.
func (h *ReservationHandler) payload(c echo.Context) ([]byte, error) {
	v, err := viewer(c)
	if err != nil {
		return nil, unauthorized(c)
	}
	var unit *uint32
	if s := c.QueryParam("unit"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, badRequest(c, "invalid unit")
		}
		u := uint32(n)
		unit = &u
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	payload, err := h.Reservations.ScanPayload(ctx, c.Param("id"), v, unit)
	if err != nil {
		return nil, writeError(c, err)
	}
	return payload, nil
}
