package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// AuditRepo appends and lists validation audit entries.  Rows are never
// updated or deleted.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns an AuditRepo bound to db.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// AppendTx writes an entry inside the caller's transaction so that a
// successful validation and its audit commit together.
func (r *AuditRepo) AppendTx(ctx context.Context, tx *sql.Tx, a *model.ValidationAudit) error {
	return appendAudit(ctx, tx, a)
}

// Append writes an entry on its own.
func (r *AuditRepo) Append(ctx context.Context, a *model.ValidationAudit) error {
	return appendAudit(ctx, r.db, a)
}

func appendAudit(ctx context.Context, q DBTX, a *model.ValidationAudit) error {
	const stmt = `INSERT INTO validation_audits (event_id, credential_id, staff_id, outcome, reason, payload_kind, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, stmt, a.EventID, a.CredentialID, a.StaffID, string(a.Outcome), a.Reason, a.PayloadKind, a.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// ListByEvent returns the audit trail of an event, oldest first.  A
// non-nil credentialID narrows the listing to one credential.
func (r *AuditRepo) ListByEvent(ctx context.Context, eventID uint64, credentialID *uint64) ([]model.ValidationAudit, error) {
	q := `SELECT id, event_id, credential_id, staff_id, outcome, reason, payload_kind, created_at
		FROM validation_audits WHERE event_id = ?`
	args := []any{eventID}
	if credentialID != nil {
		q += ` AND credential_id = ?`
		args = append(args, *credentialID)
	}
	q += ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ValidationAudit, 0)
	for rows.Next() {
		var a model.ValidationAudit
		var cred sql.NullInt64
		var outcome string
		if err := rows.Scan(&a.ID, &a.EventID, &cred, &a.StaffID, &outcome, &a.Reason, &a.PayloadKind, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Outcome = model.ScanOutcome(outcome)
		if cred.Valid {
			id := uint64(cred.Int64)
			a.CredentialID = &id
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
