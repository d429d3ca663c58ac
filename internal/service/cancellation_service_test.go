package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

var (
	qEventStatus   = regexp.QuoteMeta("UPDATE events SET status = ? WHERE id = ? AND status = ?")
	qHolding       = regexp.QuoteMeta("WHERE r.event_id = ? AND r.status IN ('pending', 'confirmed')")
	qPaymentByRes  = regexp.QuoteMeta("FROM payments WHERE reservation_id = ?")
	qInsertRefund  = regexp.QuoteMeta("INSERT INTO refunds")
	paymentCols    = []string{"id", "reservation_id", "amount", "method", "external_ref", "status", "created_at", "updated_at"}
	pendingResID   = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
	cancellationAt = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
)

func TestCancelEvent_RefundsConfirmedAndRejectsPending(t *testing.T) {
	f := newFixture(t)
	s := NewCancellationService(f.db, nil, f.pub, f.log)
	s.Now = fixedClock(cancellationAt)
	created := cancellationAt.Add(-time.Hour)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(qLockEvent).WithArgs(testEventID).WillReturnRows(eventRow(100, model.EventScheduled))
	f.mock.ExpectExec(qEventStatus).WithArgs("cancelled", testEventID, "scheduled").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(qHolding).WithArgs(testEventID).WillReturnRows(sqlmock.NewRows(reservationCols).
		AddRow(testReservID, testEventID, testTypeID, testUserID, 2, "50.00", "card", "EV-1", "confirmed", created, created).
		AddRow(pendingResID, testEventID, testTypeID, testUserID+1, 1, "25.00", "card", "EV-2", "pending", created, created))
	f.mock.ExpectExec(qTransition).WithArgs("cancelled", testReservID, "confirmed").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(qPaymentByRes).WithArgs(testReservID).WillReturnRows(sqlmock.NewRows(paymentCols).
		AddRow(31, testReservID, "50.00", "card", "ch_1", "completed", created, created))
	f.mock.ExpectExec(qInsertRefund).WithArgs(uint64(31), testReservID, sqlmock.AnyArg(), "event_cancelled", cancellationAt).
		WillReturnResult(sqlmock.NewResult(4, 1))
	f.mock.ExpectExec(qTransition).WithArgs("rejected", pendingResID, "pending").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(qSettle).WithArgs("failed", nil, pendingResID).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	sum, err := s.CancelEvent(context.Background(), testEventID, testOrganizer)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Cancelled)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 1, sum.Refunds)
	assert.Equal(t, "50.00", sum.RefundTotal.StringFixed(2))
	assert.NoError(t, f.mock.ExpectationsWereMet())

	require.Len(t, f.pub.msgs, 2)
	first := f.pub.msgs[0].msg.(queue.AttendeeNotification)
	assert.Equal(t, queue.NotifyEventCancelled, first.Kind)
	assert.Equal(t, "50.00", first.Refunded)
	assert.Equal(t, "Jazz Night", first.EventName)
	assert.Empty(t, f.pub.msgs[1].msg.(queue.AttendeeNotification).Refunded)
}

func TestCancelEvent_Guards(t *testing.T) {
	t.Run("not the owner", func(t *testing.T) {
		f := newFixture(t)
		s := NewCancellationService(f.db, nil, f.pub, f.log)
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(qLockEvent).WillReturnRows(eventRow(100, model.EventScheduled))
		f.mock.ExpectRollback()
		_, err := s.CancelEvent(context.Background(), testEventID, testOrganizer+1)
		assert.ErrorIs(t, err, repository.ErrForbidden)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t)
		s := NewCancellationService(f.db, nil, f.pub, f.log)
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(qLockEvent).WillReturnRows(eventRow(100, model.EventCancelled))
		f.mock.ExpectRollback()
		_, err := s.CancelEvent(context.Background(), testEventID, testOrganizer)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Empty(t, f.pub.msgs)
	})
}
