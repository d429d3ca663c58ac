package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// PaymentRepo stores the single payment row of each reservation and the
// refunds created when an event is cancelled.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to db.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// CreateTx inserts a payment and populates its ID.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (reservation_id, amount, method, external_ref, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.ReservationID, p.Amount, p.Method, p.ExternalRef, string(p.Status), p.CreatedAt, p.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetByReservationTx returns the payment of a reservation or ErrNotFound.
func (r *PaymentRepo) GetByReservationTx(ctx context.Context, tx *sql.Tx, reservationID string) (*model.Payment, error) {
	var p model.Payment
	var status string
	var ref sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT id, reservation_id, amount, method, external_ref, status, created_at, updated_at FROM payments WHERE reservation_id = ?`,
		reservationID).Scan(&p.ID, &p.ReservationID, &p.Amount, &p.Method, &ref, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Status = model.PaymentStatus(status)
	if ref.Valid {
		s := ref.String
		p.ExternalRef = &s
	}
	return &p, nil
}

// SettleTx moves a pending payment to completed or failed and records the
// external reference when one is supplied.  ErrConflict when the payment
// was no longer pending.
func (r *PaymentRepo) SettleTx(ctx context.Context, tx *sql.Tx, reservationID string, to model.PaymentStatus, ref *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, external_ref = COALESCE(?, external_ref) WHERE reservation_id = ? AND status = 'pending'`,
		string(to), ref, reservationID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// CreateRefundTx records a refund for a completed payment.
func (r *PaymentRepo) CreateRefundTx(ctx context.Context, tx *sql.Tx, rf *model.Refund) error {
	if rf.CreatedAt.IsZero() {
		rf.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO refunds (payment_id, reservation_id, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		rf.PaymentID, rf.ReservationID, rf.Amount, rf.Reason, rf.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rf.ID = uint64(id)
	return nil
}
