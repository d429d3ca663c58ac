package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterOrganizer registers event management.  Ownership of the event
// is checked by the services.
func RegisterOrganizer(e *echo.Echo, h *handler.EventHandler, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOrganizer),
	)
	g.POST("/events", h.Create)
	g.POST("/events/:id/ticket-types", h.AddTicketType)
	g.PATCH("/events/:id/status", h.UpdateStatus)
	g.POST("/events/:id/cancel", h.CancelEvent)
}
