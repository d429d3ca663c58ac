package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo provides persistence for events.  Capacity decisions are made
// while holding the event row lock obtained through LockForUpdateTx, which
// serializes every write that depends on the event's remaining capacity.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying sql.DB so that callers can begin transactions
// spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `id, organizer_id, name, capacity, status, starts_at, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var status string
	if err := row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Capacity, &status, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	e.Status = model.EventStatus(status)
	return &e, nil
}

// Create inserts a new scheduled event and populates its ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC()
	const q = `INSERT INTO events (organizer_id, name, capacity, status, starts_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.OrganizerID, e.Name, e.Capacity, string(model.EventScheduled), e.StartsAt.UTC(), now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.Status = model.EventScheduled
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

// GetByID returns the event or ErrNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	return scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
}

// LockForUpdateTx reads the event with an exclusive row lock held until
// the transaction ends.  Concurrent reservation attempts and cancellations
// for the same event queue up behind this lock.
func (r *EventRepo) LockForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	return scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ? FOR UPDATE`, id))
}

// UpdateStatusTx moves the event from one status to another.  ErrConflict
// is returned when the event is no longer in the expected status.
func (r *EventRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.EventStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListIDsByStatus returns ids of events in the given status.  The
// background sweeper uses it to find events that can still be booked.
func (r *EventRepo) ListIDsByStatus(ctx context.Context, status model.EventStatus) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM events WHERE status = ? ORDER BY id`, string(status))
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
