package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterAttendee registers purchase endpoints.  Only attendees may buy;
// staff and organizers may also read reservations, which the service
// scopes by role.
func RegisterAttendee(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.POST("/events/:id/reservations", h.Create, middleware.RequireRole(model.RoleAttendee), limit)
	g.GET("/my-reservations", h.ListMine, middleware.RequireRole(model.RoleAttendee))

	read := middleware.RequireRole(model.RoleAttendee, model.RoleStaff, model.RoleOrganizer)
	g.GET("/reservations/:id", h.Get, read)
	g.GET("/reservations/:id/scan-payload", h.ScanPayload, read)
	g.GET("/reservations/:id/qr", h.QR, read)
}
