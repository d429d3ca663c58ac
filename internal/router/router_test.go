package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/event-ticketing/internal/handler"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func TestOperationalRoutes(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, okPinger{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := echo.New()
	pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	RegisterStaff(e, &handler.CheckInHandler{}, "secret", pass)
	RegisterOrganizer(e, &handler.EventHandler{}, "secret")
	RegisterAttendee(e, &handler.ReservationHandler{}, "secret", pass)

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/v1/events/7/checkin"},
		{http.MethodGet, "/v1/events/7/occupancy"},
		{http.MethodPost, "/v1/events"},
		{http.MethodPost, "/v1/events/7/cancel"},
		{http.MethodPost, "/v1/events/7/reservations"},
		{http.MethodGet, "/v1/reservations/abc/qr"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
	}
}

func TestPaymentRouteSkippedWithoutSecret(t *testing.T) {
	e := echo.New()
	RegisterPayments(e, &handler.PaymentHandler{}, "")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payments/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
