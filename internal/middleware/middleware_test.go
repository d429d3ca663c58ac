package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

const secret = "jwt-test-secret"

func whoami(c echo.Context) error {
	id, _ := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
}

func serve(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	e.GET("/staff", whoami, JWTAuth(secret), RequireRole("STAFF", "ORGANIZER"))

	staff, err := utils.NewAccessToken(secret, 5, "STAFF", 5)
	require.NoError(t, err)
	attendee, err := utils.NewAccessToken(secret, 42, "ATTENDEE", 5)
	require.NoError(t, err)
	forged, err := utils.NewAccessToken("other", 5, "STAFF", 5)
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/staff", staff.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":5,"role":"STAFF"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/staff", attendee.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/staff", forged.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/staff", "").Code)
}

func TestRequireSecret(t *testing.T) {
	e := echo.New()
	e.POST("/signal", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireSecret("X-Signal-Secret", "abc"))

	req := httptest.NewRequest(http.MethodPost, "/signal", nil)
	req.Header.Set("X-Signal-Secret", "abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/signal", nil)
	req.Header.Set("X-Signal-Secret", "abd")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	e2 := echo.New()
	e2.POST("/signal", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireSecret("X-Signal-Secret", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(e2, http.MethodPost, "/signal", "").Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/7/checkin", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/events/:id/checkin")
	c.Set(CtxUserID, uint64(5))

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}
	assert.Equal(t, "rl:ip:10.0.0.9:user:5:route:POST /v1/events/:id/checkin", buildRateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:5", buildRateKey(cfg, c))
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", whoami, NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, nil))
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "").Code)
}

func TestPayloadRoundTrip(t *testing.T) {
	h := http.Header{"Content-Type": {"application/json"}}
	b, err := encodePayload(http.StatusOK, h, []byte(`{"ok":true}`))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(b)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestRedisCacheHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	e := echo.New()
	handlerCalled := false
	e.GET("/v1/events/:id", func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusOK, "fresh")
	}, NewRedisCache(cfg, rdb))

	probe := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/events/7", nil), httptest.NewRecorder())
	probe.SetPath("/v1/events/:id")
	probe.SetParamNames("id")
	probe.SetParamValues("7")
	key := cacheKeyFrom(cfg, probe)

	payload, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {"text/plain"}}, []byte("cached"))
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(payload))

	rec := serve(e, http.MethodGet, "/v1/events/7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cached", rec.Body.String())
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.False(t, handlerCalled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
