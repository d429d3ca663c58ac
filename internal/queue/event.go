// Package queue carries domain events and attendee notifications over
// RabbitMQ.  Publishing happens after a transaction commits and never
// affects the outcome of the request that triggered it.
package queue

import "time"

// Queue names.  Every queue is durable.
const (
	ReservationCreatedQueue = "reservation.created"
	CheckInValidatedQueue   = "checkin.validated"
	NotificationQueue       = "attendee.notification"
)

// ReservationCreatedEvent is published when a reservation commits.  It
// carries enough for downstream consumers to log, notify or trigger
// analytics without querying the primary database.
type ReservationCreatedEvent struct {
	ReservationID string    `json:"reservation_id"`
	OrderNumber   string    `json:"order_number"`
	EventID       uint64    `json:"event_id"`
	TicketTypeID  uint64    `json:"ticket_type_id"`
	UserID        uint64    `json:"user_id"`
	Quantity      uint32    `json:"quantity"`
	TotalPrice    string    `json:"total_price"`
	PaymentMethod string    `json:"payment_method"`
	CreatedAt     time.Time `json:"created_at"`
}

// CheckInValidatedEvent is published for every admitted credential.
type CheckInValidatedEvent struct {
	EventID       uint64    `json:"event_id"`
	ReservationID string    `json:"reservation_id"`
	CredentialID  uint64    `json:"credential_id"`
	UnitIndex     uint32    `json:"unit_index"`
	StaffID       uint64    `json:"staff_id"`
	ValidatedAt   time.Time `json:"validated_at"`
}

// Notification kinds.
const (
	NotifyEventCancelled = "event_cancelled"
	NotifyPaymentFailed  = "payment_failed"
)

// AttendeeNotification asks the notification collaborator to inform one
// attendee about a change to their reservation.
type AttendeeNotification struct {
	Kind          string    `json:"kind"`
	UserID        uint64    `json:"user_id"`
	ReservationID string    `json:"reservation_id"`
	EventID       uint64    `json:"event_id"`
	EventName     string    `json:"event_name"`
	Refunded      string    `json:"refunded,omitempty"`
	At            time.Time `json:"at"`
}
