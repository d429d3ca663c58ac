package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// ReservationRepo provides persistence for reservations and the inventory
// ledger derived from them.  Reservations hold capacity while pending or
// confirmed; the sweeper rejects pending ones once their hold window has
// elapsed.  All timestamp fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle so that services can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

const reservationColumns = `r.id, r.event_id, r.ticket_type_id, r.user_id, r.quantity, r.total_price,
	r.payment_method, r.order_number, r.status, r.created_at, r.updated_at`

func scanReservation(row interface{ Scan(...any) error }, extra ...any) (*model.Reservation, error) {
	var res model.Reservation
	var status string
	dest := []any{&res.ID, &res.EventID, &res.TicketTypeID, &res.UserID, &res.Quantity, &res.TotalPrice,
		&res.PaymentMethod, &res.OrderNumber, &status, &res.CreatedAt, &res.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}
	res.Status = model.ReservationStatus(status)
	return &res, nil
}

// CreateTx inserts a pending reservation within the caller's transaction.
// The ID, order number and CreatedAt must already be set.  When the order
// number collides with an existing one ErrDuplicateOrderNumber is returned
// and the transaction remains usable.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
		(id, event_id, ticket_type_id, user_id, quantity, total_price, payment_method, order_number, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, res.ID, res.EventID, res.TicketTypeID, res.UserID, res.Quantity,
		res.TotalPrice, res.PaymentMethod, res.OrderNumber, string(res.Status), res.CreatedAt, res.CreatedAt)
	if isDuplicateKey(err, "order_number") {
		return ErrDuplicateOrderNumber
	}
	if err != nil {
		return err
	}
	res.UpdatedAt = res.CreatedAt
	return nil
}

// RejectExpiredTx moves every pending reservation of the event created at
// or before cutoff to rejected and fails their pending payments.  It
// returns the number of reservations rejected.  Running it again with the
// same cutoff is a no-op.
func (r *ReservationRepo) RejectExpiredTx(ctx context.Context, tx *sql.Tx, eventID uint64, cutoff time.Time) (int64, error) {
	const failPayments = `UPDATE payments p JOIN reservations r ON r.id = p.reservation_id
		SET p.status = 'failed'
		WHERE r.event_id = ? AND r.status = 'pending' AND r.created_at <= ? AND p.status = 'pending'`
	if _, err := tx.ExecContext(ctx, failPayments, eventID, cutoff); err != nil {
		return 0, err
	}
	const reject = `UPDATE reservations SET status = 'rejected'
		WHERE event_id = ? AND status = 'pending' AND created_at <= ?`
	res, err := tx.ExecContext(ctx, reject, eventID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RejectExpired runs RejectExpiredTx in its own short transaction.
func (r *ReservationRepo) RejectExpired(ctx context.Context, eventID uint64, cutoff time.Time) (n int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if n, err = r.RejectExpiredTx(ctx, tx, eventID, cutoff); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// EventsWithExpired returns the ids of events that currently have pending
// reservations created at or before cutoff.
func (r *ReservationRepo) EventsWithExpired(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT event_id FROM reservations WHERE status = 'pending' AND created_at <= ? ORDER BY event_id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OccupiedUnitsTx sums the quantity of holding reservations for an event.
// Callers must lock the event row first; the aggregate then observes every
// reservation committed by earlier lock holders.
func (r *ReservationRepo) OccupiedUnitsTx(ctx context.Context, tx *sql.Tx, eventID uint64) (uint64, error) {
	return occupied(ctx, tx, `SELECT COALESCE(SUM(quantity), 0) FROM reservations
		WHERE event_id = ? AND status IN ('pending', 'confirmed')`, eventID)
}

// OccupiedByTypeTx is OccupiedUnitsTx restricted to one ticket type.
func (r *ReservationRepo) OccupiedByTypeTx(ctx context.Context, tx *sql.Tx, ticketTypeID uint64) (uint64, error) {
	return occupied(ctx, tx, `SELECT COALESCE(SUM(quantity), 0) FROM reservations
		WHERE ticket_type_id = ? AND status IN ('pending', 'confirmed')`, ticketTypeID)
}

// OccupiedUnits is an advisory read of the ledger outside any write
// transaction.  It must never gate a reservation.
func (r *ReservationRepo) OccupiedUnits(ctx context.Context, eventID uint64) (uint64, error) {
	return occupied(ctx, r.db, `SELECT COALESCE(SUM(quantity), 0) FROM reservations
		WHERE event_id = ? AND status IN ('pending', 'confirmed')`, eventID)
}

func occupied(ctx context.Context, q DBTX, query string, id uint64) (uint64, error) {
	var n uint64
	if err := q.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetByID returns one reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id))
}

// GetForUpdateTx reads one reservation and locks it for the rest of the
// transaction.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ? FOR UPDATE`, id))
}

// ReservationDetail is a reservation enriched with the event and ticket
// type names for dashboards.  Credentials are filled by GetDetail only.
type ReservationDetail struct {
	model.Reservation
	EventName      string             `json:"event_name"`
	TicketTypeName string             `json:"ticket_type_name"`
	Credentials    []model.Credential `json:"credentials,omitempty"`
}

const reservationDetailQuery = `SELECT ` + reservationColumns + `, e.name, t.name
	FROM reservations r
	JOIN events e ON e.id = r.event_id
	JOIN ticket_types t ON t.id = r.ticket_type_id`

// ListByUser returns the reservations of a user, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]ReservationDetail, error) {
	rows, err := r.db.QueryContext(ctx, reservationDetailQuery+` WHERE r.user_id = ? ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ReservationDetail, 0)
	for rows.Next() {
		var d ReservationDetail
		res, err := scanReservation(rows, &d.EventName, &d.TicketTypeName)
		if err != nil {
			return nil, err
		}
		d.Reservation = *res
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDetail returns a reservation with its names and credentials.
func (r *ReservationRepo) GetDetail(ctx context.Context, id string) (*ReservationDetail, error) {
	var d ReservationDetail
	res, err := scanReservation(r.db.QueryRowContext(ctx, reservationDetailQuery+` WHERE r.id = ?`, id), &d.EventName, &d.TicketTypeName)
	if err != nil {
		return nil, err
	}
	d.Reservation = *res
	creds, err := listCredentials(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	d.Credentials = creds
	return &d, nil
}

// TransitionTx moves a reservation from one status to another using a
// conditional update.  ErrConflict means the reservation was not in the
// expected status, which keeps transitions forward only.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id string, from, to model.ReservationStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListHoldingByEventTx returns the pending and confirmed reservations of
// an event.  It is used when the event is cancelled.
func (r *ReservationRepo) ListHoldingByEventTx(ctx context.Context, tx *sql.Tx, eventID uint64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations r
		WHERE r.event_id = ? AND r.status IN ('pending', 'confirmed') ORDER BY r.created_at FOR UPDATE`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
