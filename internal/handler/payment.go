package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// Payments is the part of *service.PaymentService the handlers use.
type Payments interface {
	Apply(ctx context.Context, sig service.PaymentSignal) (*model.Reservation, error)
}

// PaymentHandler receives signals from the payment collaborator.
type PaymentHandler struct {
	Payments Payments
}

func NewPaymentHandler(p Payments) *PaymentHandler {
	if p == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: p}
}

type paymentSignalReq struct {
	ReservationID string              `json:"reservation_id"`
	Status        model.PaymentStatus `json:"status"`
	ExternalRef   *string             `json:"external_ref,omitempty"`
}

// Signal handles POST /v1/payments/signal.  A completed payment for a hold
// that already expired is answered with 409 hold_expired so the sender can
// refund.
func (h *PaymentHandler) Signal(c echo.Context) error {
	var body paymentSignalReq
	if err := c.Bind(&body); err != nil || body.ReservationID == "" {
		return badRequest(c, "reservation_id and status are required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Payments.Apply(ctx, service.PaymentSignal{ReservationID: body.ReservationID, Status: body.Status, ExternalRef: body.ExternalRef})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation_id": r.ID, "status": r.Status})
}
