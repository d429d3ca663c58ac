package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the transaction state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment records the money side of exactly one reservation.
type Payment struct {
	ID            uint64          `json:"id"`
	ReservationID string          `json:"reservation_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	ExternalRef   *string         `json:"external_ref,omitempty"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Refund is created for every completed payment whose reservation is
// cancelled together with its event.
type Refund struct {
	ID            uint64          `json:"id"`
	PaymentID     uint64          `json:"payment_id"`
	ReservationID string          `json:"reservation_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"created_at"`
}
