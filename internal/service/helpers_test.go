package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/scan"
)

const (
	testEventID   = uint64(7)
	testTypeID    = uint64(2)
	testUserID    = uint64(42)
	testReservID  = "3f1c2b7a-9d4e-4b8a-a1f0-5c6d7e8f9a0b"
	testSecret    = "test-token-secret"
	testStaffA    = uint64(5)
	testStaffB    = uint64(6)
	testCredID    = uint64(11)
	testOrganizer = uint64(1)
)

type published struct {
	queue string
	msg   any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, queue string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{queue: queue, msg: v})
	return nil
}

type recordingPusher struct {
	got []model.Occupancy
}

func (p *recordingPusher) PublishOccupancy(_ context.Context, occ model.Occupancy) error {
	p.got = append(p.got, occ)
	return nil
}

type fixture struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	signer *scan.Signer
	issuer *Issuer
	sweep  *Sweeper
	pub    *recordingPublisher
	log    *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	signer := scan.NewSigner(testSecret)
	log := zap.NewNop()
	return &fixture{
		db:     db,
		mock:   mock,
		signer: signer,
		issuer: NewIssuer(signer),
		sweep:  NewSweeper(repository.NewReservationRepo(db), nil, DefaultHoldWindow, log),
		pub:    &recordingPublisher{},
		log:    log,
	}
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var (
	userCols        = []string{"id", "email", "full_name", "password_hash", "role", "is_active", "created_at", "updated_at"}
	eventCols       = []string{"id", "organizer_id", "name", "capacity", "status", "starts_at", "created_at", "updated_at"}
	ticketTypeCols  = []string{"id", "event_id", "name", "unit_price", "units_offered", "is_available", "created_at"}
	reservationCols = []string{"id", "event_id", "ticket_type_id", "user_id", "quantity", "total_price",
		"payment_method", "order_number", "status", "created_at", "updated_at"}
	scanTargetCols = []string{"id", "reservation_id", "ticket_type_id", "unit_index", "code", "token", "status",
		"validated_at", "validated_by", "created_at", "event_id", "user_id", "r_status", "quantity", "r_created_at",
		"full_name", "email"}
)

func userRow(role string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).AddRow(testUserID, "ana@example.com", "Ana Pérez", "hash", role, true, now, now)
}

func eventRow(capacity uint32, status model.EventStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(eventCols).AddRow(testEventID, testOrganizer, "Jazz Night", capacity, string(status), now.Add(72*time.Hour), now, now)
}

func ticketTypeRow(eventID uint64, price string, units uint32, available bool) *sqlmock.Rows {
	return sqlmock.NewRows(ticketTypeCols).AddRow(testTypeID, eventID, "General", price, units, available, time.Now())
}

func reservationRow(id string, status model.ReservationStatus, createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(reservationCols).
		AddRow(id, testEventID, testTypeID, testUserID, 2, "50.00", "card", "EV-1", string(status), createdAt, createdAt)
}
