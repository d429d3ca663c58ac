package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

var authNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}
	h := NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db))
	h.Now = func() time.Time { return authNow }
	return h, mock
}

func postJSON(path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

var (
	qInsertUser    = regexp.QuoteMeta("INSERT INTO users (email, full_name, password_hash, role)")
	qUserByEmail   = regexp.QuoteMeta("FROM users WHERE email = ?")
	qUserByID      = regexp.QuoteMeta("FROM users WHERE id = ?")
	qStoreRefresh  = regexp.QuoteMeta("INSERT INTO refresh_tokens (user_id, token_hash, expires_at)")
	qConsume       = regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ?")
	qRefreshOwner  = regexp.QuoteMeta("SELECT user_id FROM refresh_tokens WHERE token_hash = ?")
	authUserColumn = []string{"id", "email", "full_name", "password_hash", "role", "is_active", "created_at", "updated_at"}
)

func TestRegister_OpensSession(t *testing.T) {
	h, mock := newAuthHandler(t)
	mock.ExpectExec(qInsertUser).
		WithArgs("door@example.com", "Door Crew", sqlmock.AnyArg(), model.RoleStaff).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec(qStoreRefresh).WithArgs(int64(12), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := postJSON("/v1/auth/register", `{"email":" Door@Example.com ","password":"long-enough","full_name":"Door Crew","role":"staff"}`)
	require.NoError(t, h.Register(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	var body sessionResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(12), body.UserID)
	assert.Equal(t, model.RoleStaff, body.Role)
	claims, err := utils.ParseAccessToken("test-secret", body.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), claims.UserID)
	assert.NotEmpty(t, body.Refresh.Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	h, mock := newAuthHandler(t)
	c, rec := postJSON("/v1/auth/register", `{"email":"a@example.com","password":"short"}`)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		h, mock := newAuthHandler(t)
		mock.ExpectQuery(qUserByEmail).WithArgs("ana@example.com").
			WillReturnRows(sqlmock.NewRows(authUserColumn).AddRow(3, "ana@example.com", "Ana", hash, model.RoleAttendee, true, authNow, authNow))
		c, rec := postJSON("/v1/auth/login", `{"email":"ana@example.com","password":"battery-staple"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_credentials")
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		h, mock := newAuthHandler(t)
		mock.ExpectQuery(qUserByEmail).WillReturnError(sql.ErrNoRows)
		c, rec := postJSON("/v1/auth/login", `{"email":"nobody@example.com","password":"battery-staple"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_credentials")
	})

	t.Run("inactive account", func(t *testing.T) {
		h, mock := newAuthHandler(t)
		mock.ExpectQuery(qUserByEmail).
			WillReturnRows(sqlmock.NewRows(authUserColumn).AddRow(3, "ana@example.com", "Ana", hash, model.RoleAttendee, false, authNow, authNow))
		c, rec := postJSON("/v1/auth/login", `{"email":"ana@example.com","password":"correct-horse"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		h, mock := newAuthHandler(t)
		mock.ExpectQuery(qUserByEmail).
			WillReturnRows(sqlmock.NewRows(authUserColumn).AddRow(3, "ana@example.com", "Ana", hash, model.RoleAttendee, true, authNow, authNow))
		mock.ExpectExec(qStoreRefresh).WillReturnResult(sqlmock.NewResult(1, 1))
		c, rec := postJSON("/v1/auth/login", `{"email":"ana@example.com","password":"correct-horse"}`)
		require.NoError(t, h.Login(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRefresh_TokenWorksOnce(t *testing.T) {
	h, mock := newAuthHandler(t)
	raw := "deadbeef"
	hash := utils.HashRefreshRaw(raw)

	mock.ExpectExec(qConsume).WithArgs(authNow, hash, authNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(qRefreshOwner).WithArgs(hash).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(3))
	mock.ExpectQuery(qUserByID).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(authUserColumn).AddRow(3, "ana@example.com", "Ana", "x", model.RoleAttendee, true, authNow, authNow))
	mock.ExpectExec(qStoreRefresh).WillReturnResult(sqlmock.NewResult(2, 1))

	c, rec := postJSON("/v1/auth/refresh", `{"refresh_token":"deadbeef"}`)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectExec(qConsume).WithArgs(authNow, hash, authNow).WillReturnResult(sqlmock.NewResult(0, 0))
	c, rec = postJSON("/v1/auth/refresh", `{"refresh_token":"deadbeef"}`)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_refresh_token")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogout_BearerRevokesEverySession(t *testing.T) {
	h, mock := newAuthHandler(t)
	tok, err := utils.NewAccessToken("test-secret", 3, model.RoleAttendee, 15)
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL")).
		WithArgs(authNow, int64(3)).WillReturnResult(sqlmock.NewResult(0, 2))

	c, rec := postJSON("/v1/auth/logout", `{}`)
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	require.NoError(t, h.Logout(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogout_NeedsSomething(t *testing.T) {
	h, _ := newAuthHandler(t)
	c, rec := postJSON("/v1/auth/logout", `{}`)
	require.NoError(t, h.Logout(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
