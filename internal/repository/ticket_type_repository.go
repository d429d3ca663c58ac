package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketTypeRepo manages the ticket_types table.
type TicketTypeRepo struct {
	db *sql.DB
}

// NewTicketTypeRepo constructs a TicketTypeRepo given a DB handle.
func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

const ticketTypeColumns = `id, event_id, name, unit_price, units_offered, is_available, created_at`

func scanTicketType(row interface{ Scan(...any) error }) (*model.TicketType, error) {
	var t model.TicketType
	if err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.UnitPrice, &t.UnitsOffered, &t.IsAvailable, &t.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Create inserts a ticket type for an existing event.
func (r *TicketTypeRepo) Create(ctx context.Context, t *model.TicketType) error {
	now := time.Now().UTC()
	const q = `INSERT INTO ticket_types (event_id, name, unit_price, units_offered, is_available, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, t.EventID, t.Name, t.UnitPrice, t.UnitsOffered, t.IsAvailable, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.CreatedAt = now
	return nil
}

// GetByIDTx loads a ticket type inside the caller's transaction.
func (r *TicketTypeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.TicketType, error) {
	return scanTicketType(tx.QueryRowContext(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ?`, id))
}

// ListByEvent returns all ticket types of an event ordered by id.
func (r *TicketTypeRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.TicketType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TicketType, 0)
	for rows.Next() {
		t, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
