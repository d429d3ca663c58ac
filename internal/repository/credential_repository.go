package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// CredentialRepo persists per-unit ticket credentials.  Credentials are
// written once in bulk when a reservation is created and afterwards only
// change through MarkValidatedTx.
type CredentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo returns a CredentialRepo bound to db.
func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{db: db} }

// DB exposes the underlying handle so that services can open transactions.
func (r *CredentialRepo) DB() *sql.DB { return r.db }

const credentialColumns = `c.id, c.reservation_id, c.ticket_type_id, c.unit_index, c.code, c.token,
	c.status, c.validated_at, c.validated_by, c.created_at`

func scanCredential(row interface{ Scan(...any) error }, extra ...any) (*model.Credential, error) {
	var c model.Credential
	var status string
	var validatedAt sql.NullTime
	var validatedBy sql.NullInt64
	dest := []any{&c.ID, &c.ReservationID, &c.TicketTypeID, &c.UnitIndex, &c.Code, &c.Token,
		&status, &validatedAt, &validatedBy, &c.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}
	c.Status = model.CredentialStatus(status)
	if validatedAt.Valid {
		t := validatedAt.Time
		c.ValidatedAt = &t
	}
	if validatedBy.Valid {
		by := uint64(validatedBy.Int64)
		c.ValidatedBy = &by
	}
	return &c, nil
}

// credentialBatch bounds the rows of one INSERT.  Seven placeholders per
// row keeps a batch far below MySQL's 65,535 placeholder limit for
// prepared statements.
const credentialBatch = 500

// CreateBulkTx inserts all credentials of a reservation in batches of
// credentialBatch rows, all inside tx.  Passing an empty slice has no
// effect and returns nil.
func (r *CredentialRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, creds []model.Credential) error {
	for start := 0; start < len(creds); start += credentialBatch {
		end := min(start+credentialBatch, len(creds))
		if err := insertCredentials(ctx, tx, creds[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertCredentials(ctx context.Context, tx *sql.Tx, creds []model.Credential) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO credentials (reservation_id, ticket_type_id, unit_index, code, token, status, created_at) VALUES `)
	args := make([]any, 0, len(creds)*7)
	for i, c := range creds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, c.ReservationID, c.TicketTypeID, c.UnitIndex, c.Code, c.Token, string(c.Status), c.CreatedAt)
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

// ScanTarget is a credential joined with what the check-in path needs to
// decide eligibility and greet the attendee.
type ScanTarget struct {
	Credential        model.Credential
	EventID           uint64
	UserID            uint64
	ReservationStatus model.ReservationStatus
	Quantity          uint32
	ReservedAt        time.Time // decides whether an unpaid hold is still live
	AttendeeName      string
}

const scanTargetQuery = `SELECT ` + credentialColumns + `, r.event_id, r.user_id, r.status, r.quantity, r.created_at, u.full_name, u.email
	FROM credentials c
	JOIN reservations r ON r.id = c.reservation_id
	JOIN users u ON u.id = r.user_id`

func scanTarget(row *sql.Row) (*ScanTarget, error) {
	var t ScanTarget
	var status, fullName, email string
	c, err := scanCredential(row, &t.EventID, &t.UserID, &status, &t.Quantity, &t.ReservedAt, &fullName, &email)
	if err != nil {
		return nil, err
	}
	t.Credential = *c
	t.ReservationStatus = model.ReservationStatus(status)
	t.AttendeeName = model.User{FullName: fullName, Email: email}.DisplayName()
	return &t, nil
}

// FindByCode resolves a compact scan code.  ErrNotFound when no credential
// carries the code.
func (r *CredentialRepo) FindByCode(ctx context.Context, code string) (*ScanTarget, error) {
	return scanTarget(r.db.QueryRowContext(ctx, scanTargetQuery+` WHERE c.code = ?`, code))
}

// FindByReservationUnit resolves a structured payload that names a unit.
func (r *CredentialRepo) FindByReservationUnit(ctx context.Context, reservationID string, unit uint32) (*ScanTarget, error) {
	return scanTarget(r.db.QueryRowContext(ctx, scanTargetQuery+` WHERE c.reservation_id = ? AND c.unit_index = ?`, reservationID, unit))
}

// FindNextForReservation resolves a structured payload without a unit to
// the lowest pending unit of the reservation.  When every unit has been
// validated the lowest unit is returned so that the caller can report when
// it was admitted.
func (r *CredentialRepo) FindNextForReservation(ctx context.Context, reservationID string) (*ScanTarget, error) {
	return scanTarget(r.db.QueryRowContext(ctx, scanTargetQuery+` WHERE c.reservation_id = ?
		ORDER BY (c.status = 'pending') DESC, c.unit_index ASC LIMIT 1`, reservationID))
}

// MarkValidatedTx is the compare-and-swap that admits a credential.  It
// reports false when the credential was no longer pending, meaning another
// scan won the race.
func (r *CredentialRepo) MarkValidatedTx(ctx context.Context, tx *sql.Tx, id, staffID uint64, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE credentials SET status = 'validated', validated_at = ?, validated_by = ? WHERE id = ? AND status = 'pending'`,
		at, staffID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ValidatedAt returns when a credential was validated.  The zero time is
// returned for credentials that are still pending.
func (r *CredentialRepo) ValidatedAt(ctx context.Context, id uint64) (time.Time, error) {
	var at sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT validated_at FROM credentials WHERE id = ?`, id).Scan(&at); err != nil {
		return time.Time{}, notFound(err)
	}
	return at.Time, nil
}

// ListByReservation returns the credentials of a reservation ordered by
// unit index.
func (r *CredentialRepo) ListByReservation(ctx context.Context, reservationID string) ([]model.Credential, error) {
	return listCredentials(ctx, r.db, reservationID)
}

func listCredentials(ctx context.Context, q DBTX, reservationID string) ([]model.Credential, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials c WHERE c.reservation_id = ? ORDER BY c.unit_index`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Credential, 0)
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountByStatus returns validated and pending credential counts over the
// holding reservations of an event.
func (r *CredentialRepo) CountByStatus(ctx context.Context, eventID uint64) (validated, pending uint64, err error) {
	const q = `SELECT
			COALESCE(SUM(CASE WHEN c.status = 'validated' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM credentials c
		JOIN reservations r ON r.id = c.reservation_id
		WHERE r.event_id = ? AND r.status IN ('pending', 'confirmed')`
	err = r.db.QueryRowContext(ctx, q, eventID).Scan(&validated, &pending)
	return validated, pending, err
}
