package model

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventScheduled  EventStatus = "scheduled"
	EventInProgress EventStatus = "in_progress"
	EventFinished   EventStatus = "finished"
	EventCancelled  EventStatus = "cancelled"
)

// CanTransitionTo reports whether an organizer may move the event from s to
// next.  Cancellation is handled separately because it cascades to
// reservations and payments.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventScheduled:
		return next == EventInProgress
	case EventInProgress:
		return next == EventFinished
	}
	return false
}

// Event is a ticketed happening with an event-wide capacity ceiling.  The
// ceiling applies to the sum of all reservations regardless of how the
// units are split across ticket types.
//
// Fields:
//
//	ID          – primary key identifier.
//	OrganizerID – user who owns the event.
//	Name        – display name.
//	Capacity    – maximum number of units that may be held or sold.
//	Status      – lifecycle state.
//	StartsAt    – scheduled start time (UTC).
//	CreatedAt   – creation timestamp.
//	UpdatedAt   – last update timestamp.
type Event struct {
	ID          uint64      `json:"id"`
	OrganizerID uint64      `json:"organizer_id"`
	Name        string      `json:"name"`
	Capacity    uint32      `json:"capacity"`
	Status      EventStatus `json:"status"`
	StartsAt    time.Time   `json:"starts_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
