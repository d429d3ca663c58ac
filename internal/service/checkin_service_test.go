package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/scan"
)

var (
	qFindByCode   = regexp.QuoteMeta("WHERE c.code = ?")
	qFindByUnit   = regexp.QuoteMeta("WHERE c.reservation_id = ? AND c.unit_index = ?")
	qFindNext     = regexp.QuoteMeta("ORDER BY (c.status = 'pending') DESC")
	qMarkValid    = regexp.QuoteMeta("UPDATE credentials SET status = 'validated'")
	qValidatedAt  = regexp.QuoteMeta("SELECT validated_at FROM credentials WHERE id = ?")
	qInsertAudit  = regexp.QuoteMeta("INSERT INTO validation_audits")
	validationDay = time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)
)

type targetOpts struct {
	credID      uint64
	unit        uint32
	quantity    uint32
	reservedAt  time.Time
	status      model.CredentialStatus
	validatedAt *time.Time
	resStatus   model.ReservationStatus
	eventID     uint64
	userID      uint64
}

func defaultTarget() targetOpts {
	return targetOpts{
		credID:     testCredID,
		quantity:   2,
		reservedAt: validationDay.Add(-5 * time.Minute),
		status:     model.CredentialPending,
		resStatus:  model.ReservationConfirmed,
		eventID:    testEventID,
		userID:     testUserID,
	}
}

func targetRow(f *fixture, o targetOpts) *sqlmock.Rows {
	var at, by any
	if o.validatedAt != nil {
		at, by = *o.validatedAt, testStaffA
	}
	return sqlmock.NewRows(scanTargetCols).AddRow(
		o.credID, testReservID, testTypeID, o.unit, scan.CodeFor(testReservID, o.unit),
		f.signer.Token(testReservID, testUserID), string(o.status), at, by, o.reservedAt,
		o.eventID, o.userID, string(o.resStatus), o.quantity, o.reservedAt, "Ana Pérez", "ana@example.com")
}

func newCheckInService(f *fixture, acceptPending bool) *CheckInService {
	s := NewCheckInService(f.db, f.sweep, f.issuer, nil, nil, f.pub, acceptPending, f.log)
	s.Now = fixedClock(validationDay)
	return s
}

func expectFailureAudit(f *fixture, credentialID any, reason, kind string) {
	f.mock.ExpectExec(qInsertAudit).
		WithArgs(testEventID, credentialID, testStaffB, "failure", reason, kind, validationDay).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func compactInput(staff uint64) ValidateInput {
	return ValidateInput{Raw: scan.CodeFor(testReservID, 0), EventID: testEventID, StaffID: staff}
}

func TestValidate_AdmitsOnceAndAudits(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)

	f.mock.ExpectQuery(qFindByCode).WithArgs(testReservID + "-0").WillReturnRows(targetRow(f, defaultTarget()))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qMarkValid).WithArgs(validationDay, testStaffA, testCredID).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(qInsertAudit).
		WithArgs(testEventID, testCredID, testStaffA, "success", "", "compact", validationDay).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	res, err := s.Validate(context.Background(), compactInput(testStaffA))
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", res.AttendeeName)
	assert.Equal(t, testCredID, res.CredentialID)
	assert.Equal(t, validationDay, res.ValidatedAt)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	require.Len(t, f.pub.msgs, 1)
	assert.Equal(t, queue.CheckInValidatedQueue, f.pub.msgs[0].queue)
}

func TestValidate_SecondScanReportsFirstValidation(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)
	first := validationDay.Add(-10 * time.Minute)
	o := defaultTarget()
	o.status = model.CredentialValidated
	o.validatedAt = &first

	f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
	expectFailureAudit(f, testCredID, "already_validated", "compact")

	_, err := s.Validate(context.Background(), compactInput(testStaffB))
	var already *AlreadyValidatedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, first, already.ValidatedAt)
	assert.Equal(t, "already_validated", Reason(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.pub.msgs)
}

func TestValidate_LostRaceReadsWinnerTimestamp(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)
	winner := validationDay.Add(-time.Second)

	// Both devices read the credential as pending; the other one commits
	// its update first.
	f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, defaultTarget()))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qMarkValid).WithArgs(validationDay, testStaffB, testCredID).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()
	f.mock.ExpectQuery(qValidatedAt).WithArgs(testCredID).WillReturnRows(sqlmock.NewRows([]string{"validated_at"}).AddRow(winner))
	expectFailureAudit(f, testCredID, "already_validated", "compact")

	_, err := s.Validate(context.Background(), compactInput(testStaffB))
	var already *AlreadyValidatedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, winner, already.ValidatedAt)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestValidate_UnknownCode(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)

	f.mock.ExpectQuery(qFindByCode).WillReturnRows(sqlmock.NewRows(scanTargetCols))
	expectFailureAudit(f, nil, "invalid_code", "compact")

	_, err := s.Validate(context.Background(), compactInput(testStaffB))
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestValidate_MalformedInputNeverQueriesCredentials(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)

	expectFailureAudit(f, nil, "invalid_code", "compact")
	_, err := s.Validate(context.Background(), ValidateInput{Raw: "not-a-ticket", EventID: testEventID, StaffID: testStaffB})
	assert.ErrorIs(t, err, ErrInvalidCode)

	expectFailureAudit(f, nil, "invalid_code", "structured")
	_, err = s.Validate(context.Background(), ValidateInput{Raw: `{"reservation_id":`, EventID: testEventID, StaffID: testStaffB})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestValidate_StructuredPayload(t *testing.T) {
	doc := func(f *fixture, hash string, eventID uint64, unit *uint32) string {
		b, err := scan.Document(testReservID, hash, eventID, testUserID, unit)
		require.NoError(t, err)
		return string(b)
	}

	t.Run("tampered hash", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		expectFailureAudit(f, nil, "invalid_code", "structured")
		_, err := s.Validate(context.Background(), ValidateInput{Raw: doc(f, "00ff", testEventID, nil), EventID: testEventID, StaffID: testStaffB})
		assert.ErrorIs(t, err, ErrInvalidCode)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("other event", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		expectFailureAudit(f, nil, "not_eligible", "structured")
		raw := doc(f, f.signer.Token(testReservID, testUserID), testEventID+1, nil)
		_, err := s.Validate(context.Background(), ValidateInput{Raw: raw, EventID: testEventID, StaffID: testStaffB})
		assert.ErrorIs(t, err, ErrNotEligible)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("explicit unit", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		unit := uint32(1)
		o := defaultTarget()
		o.unit = 1
		f.mock.ExpectQuery(qFindByUnit).WithArgs(testReservID, unit).WillReturnRows(targetRow(f, o))
		f.mock.ExpectBegin()
		f.mock.ExpectExec(qMarkValid).WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec(qInsertAudit).WillReturnResult(sqlmock.NewResult(1, 1))
		f.mock.ExpectCommit()
		raw := doc(f, f.signer.Token(testReservID, testUserID), testEventID, &unit)
		res, err := s.Validate(context.Background(), ValidateInput{Raw: raw, EventID: testEventID, StaffID: testStaffA})
		require.NoError(t, err)
		assert.Equal(t, uint32(1), res.UnitIndex)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("whole reservation picks next pending unit", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		o := defaultTarget()
		o.unit = 2
		f.mock.ExpectQuery(qFindNext).WithArgs(testReservID).WillReturnRows(targetRow(f, o))
		f.mock.ExpectBegin()
		f.mock.ExpectExec(qMarkValid).WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec(qInsertAudit).WillReturnResult(sqlmock.NewResult(1, 1))
		f.mock.ExpectCommit()
		raw := doc(f, f.signer.Token(testReservID, testUserID), testEventID, nil)
		res, err := s.Validate(context.Background(), ValidateInput{Raw: raw, EventID: testEventID, StaffID: testStaffA})
		require.NoError(t, err)
		assert.Equal(t, uint32(2), res.UnitIndex)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestValidate_Eligibility(t *testing.T) {
	t.Run("unpaid reservation", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		o := defaultTarget()
		o.resStatus = model.ReservationPending
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		expectFailureAudit(f, testCredID, "not_eligible", "compact")
		_, err := s.Validate(context.Background(), compactInput(testStaffB))
		assert.ErrorIs(t, err, ErrNotEligible)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unpaid reservation admitted when configured", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, true)
		o := defaultTarget()
		o.resStatus = model.ReservationPending
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		f.mock.ExpectBegin()
		f.mock.ExpectExec(qMarkValid).WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec(qInsertAudit).WillReturnResult(sqlmock.NewResult(1, 1))
		f.mock.ExpectCommit()
		_, err := s.Validate(context.Background(), compactInput(testStaffA))
		require.NoError(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unpaid reservation past its hold window", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, true)
		o := defaultTarget()
		o.resStatus = model.ReservationPending
		o.reservedAt = validationDay.Add(-DefaultHoldWindow - time.Minute)
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		expectFailureAudit(f, testCredID, "not_eligible", "compact")
		_, err := s.Validate(context.Background(), compactInput(testStaffB))
		assert.ErrorIs(t, err, ErrNotEligible)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unpaid reservation exactly at the cutoff", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, true)
		o := defaultTarget()
		o.resStatus = model.ReservationPending
		o.reservedAt = validationDay.Add(-DefaultHoldWindow)
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		expectFailureAudit(f, testCredID, "not_eligible", "compact")
		_, err := s.Validate(context.Background(), compactInput(testStaffB))
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("rejected reservation never admitted", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, true)
		o := defaultTarget()
		o.resStatus = model.ReservationRejected
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		expectFailureAudit(f, testCredID, "not_eligible", "compact")
		_, err := s.Validate(context.Background(), compactInput(testStaffB))
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("credential of another event", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		o := defaultTarget()
		o.eventID = testEventID + 1
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		expectFailureAudit(f, testCredID, "not_eligible", "compact")
		_, err := s.Validate(context.Background(), compactInput(testStaffB))
		assert.ErrorIs(t, err, ErrNotEligible)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("token bound to another user", func(t *testing.T) {
		f := newFixture(t)
		s := newCheckInService(f, false)
		o := defaultTarget()
		o.userID = testUserID + 1
		f.mock.ExpectQuery(qFindByCode).WillReturnRows(targetRow(f, o))
		expectFailureAudit(f, testCredID, "invalid_code", "compact")
		_, err := s.Validate(context.Background(), compactInput(testStaffB))
		assert.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestValidate_AuditFailureDoesNotMaskRejection(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)

	f.mock.ExpectQuery(qFindByCode).WillReturnRows(sqlmock.NewRows(scanTargetCols))
	f.mock.ExpectExec(qInsertAudit).WillReturnError(errors.New("disk full"))

	_, err := s.Validate(context.Background(), compactInput(testStaffB))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestValidate_WholeReceiptMovesToNextUnitAfterLosingSwap(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)
	raw, err := scan.Document(testReservID, f.signer.Token(testReservID, testUserID), testEventID, testUserID, nil)
	require.NoError(t, err)

	// Two lanes scan the same receipt; both read unit 0 as pending and the
	// other lane commits first.
	first := defaultTarget()
	second := defaultTarget()
	second.credID, second.unit = testCredID+1, 1

	f.mock.ExpectQuery(qFindNext).WithArgs(testReservID).WillReturnRows(targetRow(f, first))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qMarkValid).WithArgs(validationDay, testStaffB, testCredID).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()
	f.mock.ExpectQuery(qFindNext).WithArgs(testReservID).WillReturnRows(targetRow(f, second))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qMarkValid).WithArgs(validationDay, testStaffB, testCredID+1).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(qInsertAudit).
		WithArgs(testEventID, testCredID+1, testStaffB, "success", "", "structured", validationDay).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	res, err := s.Validate(context.Background(), ValidateInput{Raw: string(raw), EventID: testEventID, StaffID: testStaffB})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.UnitIndex)
	assert.Equal(t, testCredID+1, res.CredentialID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestValidate_WholeReceiptReportsAlreadyValidatedOnceNoUnitIsLeft(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)
	raw, err := scan.Document(testReservID, f.signer.Token(testReservID, testUserID), testEventID, testUserID, nil)
	require.NoError(t, err)

	entered := validationDay.Add(-time.Second)
	first := defaultTarget()
	// Every unit is validated now, so the lowest one comes back.
	done := defaultTarget()
	done.status = model.CredentialValidated
	done.validatedAt = &entered

	f.mock.ExpectQuery(qFindNext).WillReturnRows(targetRow(f, first))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qMarkValid).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()
	f.mock.ExpectQuery(qFindNext).WillReturnRows(targetRow(f, done))
	expectFailureAudit(f, testCredID, "already_validated", "structured")

	_, err = s.Validate(context.Background(), ValidateInput{Raw: string(raw), EventID: testEventID, StaffID: testStaffB})
	var already *AlreadyValidatedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, entered, already.ValidatedAt)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestValidate_WholeReceiptRetriesAreBoundedByQuantity(t *testing.T) {
	f := newFixture(t)
	s := newCheckInService(f, false)
	raw, err := scan.Document(testReservID, f.signer.Token(testReservID, testUserID), testEventID, testUserID, nil)
	require.NoError(t, err)
	winner := validationDay.Add(-time.Second)

	single := defaultTarget()
	single.quantity = 1
	f.mock.ExpectQuery(qFindNext).WillReturnRows(targetRow(f, single))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(qMarkValid).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()
	f.mock.ExpectQuery(qValidatedAt).WithArgs(testCredID).WillReturnRows(sqlmock.NewRows([]string{"validated_at"}).AddRow(winner))
	expectFailureAudit(f, testCredID, "already_validated", "structured")

	_, err = s.Validate(context.Background(), ValidateInput{Raw: string(raw), EventID: testEventID, StaffID: testStaffB})
	var already *AlreadyValidatedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, winner, already.ValidatedAt)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
