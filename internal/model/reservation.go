package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the state of a reservation.  It only moves forward:
// pending→confirmed, pending→rejected and confirmed→cancelled.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationRejected  ReservationStatus = "rejected"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Holds reports whether a reservation in this state counts toward the
// event's occupied units.
func (s ReservationStatus) Holds() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Reservation groups every unit bought in a single checkout.  The ID is a
// UUID generated at creation and doubles as the seed of the scan payload
// shown on the purchaser's receipt.
//
// Fields:
//
//	ID            – reservations.id (UUID).
//	EventID       – event being attended.
//	TicketTypeID  – ticket type of every unit in the reservation.
//	UserID        – purchasing user.
//	Quantity      – number of units.
//	TotalPrice    – unit price × quantity.
//	PaymentMethod – label of the payment method chosen at checkout.
//	OrderNumber   – human readable unique order number.
//	Status        – pending, confirmed, rejected or cancelled.
//	CreatedAt     – creation timestamp; the hold window starts here.
//	UpdatedAt     – last update timestamp.
type Reservation struct {
	ID            string            `json:"id"`
	EventID       uint64            `json:"event_id"`
	TicketTypeID  uint64            `json:"ticket_type_id"`
	UserID        uint64            `json:"user_id"`
	Quantity      uint32            `json:"quantity"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	PaymentMethod string            `json:"payment_method"`
	OrderNumber   string            `json:"order_number"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
