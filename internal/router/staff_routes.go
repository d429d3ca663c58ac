package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterStaff registers the check-in endpoints used at the entrance and
// the dashboards that watch them.  Scans get their own rate limit bucket.
func RegisterStaff(e *echo.Echo, h *handler.CheckInHandler, jwtSecret string, scanLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/events/:id",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStaff, model.RoleOrganizer),
	)
	g.POST("/checkin", h.Validate, scanLimit)
	g.GET("/occupancy", h.Occupancy)
	g.GET("/audits", h.Audits)
}
