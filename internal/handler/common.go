// Package handler exposes the HTTP surface of the ticketing core.  Handlers
// parse and authorize requests, call the service layer and translate its
// typed errors into status codes; they own no business rules.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/service"
)

const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID returns the authenticated user or an error when JWTAuth did
// not run.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

func viewer(c echo.Context) (service.Viewer, error) {
	id, err := getUserID(c)
	if err != nil {
		return service.Viewer{}, err
	}
	return service.Viewer{UserID: id, Role: middleware.Role(c)}, nil
}

func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	return n, err == nil && n > 0
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}

var statusByReason = map[string]int{
	"insufficient_capacity":   http.StatusConflict,
	"already_validated":       http.StatusConflict,
	"event_not_bookable":      http.StatusConflict,
	"invalid_transition":      http.StatusConflict,
	"hold_expired":            http.StatusConflict,
	"invalid_code":            http.StatusNotFound,
	"event_not_found":         http.StatusNotFound,
	"reservation_not_found":   http.StatusNotFound,
	"not_eligible":            http.StatusForbidden,
	"user_not_eligible":       http.StatusForbidden,
	"forbidden":               http.StatusForbidden,
	"ticket_type_mismatch":    http.StatusBadRequest,
	"ticket_type_unavailable": http.StatusConflict,
	"invalid_quantity":        http.StatusBadRequest,
	"price_mismatch":          http.StatusBadRequest,
	"invalid_input":           http.StatusBadRequest,
	"order_number_collision":  http.StatusServiceUnavailable,
}

// writeError renders a service error as {"error": reason, ...}.  Capacity
// and duplicate-scan errors carry the fields clients act on.
func writeError(c echo.Context, err error) error {
	reason := service.Reason(err)
	status, ok := statusByReason[reason]
	if !ok {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	body := echo.Map{"error": reason}
	var capErr *service.InsufficientCapacityError
	var avErr *service.AlreadyValidatedError
	switch {
	case errors.As(err, &capErr):
		body["available"] = capErr.Available
		body["requested"] = capErr.Requested
	case errors.As(err, &avErr):
		body["credential_id"] = avErr.CredentialID
		body["validated_at"] = avErr.ValidatedAt
	case reason == "invalid_input":
		body["message"] = err.Error()
	}
	return c.JSON(status, body)
}
