package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// CheckIns is the part of *service.CheckInService the handlers use.
type CheckIns interface {
	Validate(ctx context.Context, in service.ValidateInput) (*service.CheckInResult, error)
	AuditTrail(ctx context.Context, eventID uint64, credentialID *uint64) ([]model.ValidationAudit, error)
}

// Occupancies is the part of *service.OccupancyService the handlers use.
type Occupancies interface {
	Get(ctx context.Context, eventID uint64) (model.Occupancy, error)
}

// CheckInHandler serves check-in devices and the live occupancy view.
type CheckInHandler struct {
	CheckIns    CheckIns
	Occupancies Occupancies
}

func NewCheckInHandler(ci CheckIns, occ Occupancies) *CheckInHandler {
	if ci == nil || occ == nil {
		panic("nil service passed to NewCheckInHandler")
	}
	return &CheckInHandler{CheckIns: ci, Occupancies: occ}
}

type validateReq struct {
	Payload string `json:"payload"`
}

// Validate handles POST /v1/events/:id/checkin.  The body carries the raw
// scanner output, either a compact code or the structured document.  A
// second scan of the same credential is 409 with the first validation
// time.
func (h *CheckInHandler) Validate(c echo.Context) error {
	staffID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body validateReq
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := h.CheckIns.Validate(ctx, service.ValidateInput{Raw: body.Payload, EventID: eventID, StaffID: staffID})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Occupancy handles GET /v1/events/:id/occupancy.
func (h *CheckInHandler) Occupancy(c echo.Context) error {
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	occ, err := h.Occupancies.Get(ctx, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, occ)
}

// Audits handles GET /v1/events/:id/audits?credential_id=N.
func (h *CheckInHandler) Audits(c echo.Context) error {
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var credentialID *uint64
	if s := c.QueryParam("credential_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badRequest(c, "invalid credential_id")
		}
		credentialID = &n
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	list, err := h.CheckIns.AuditTrail(ctx, eventID, credentialID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"audits": list})
}
