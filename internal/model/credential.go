package model

import "time"

// CredentialStatus is the validation state of a single ticket unit.
type CredentialStatus string

const (
	CredentialPending   CredentialStatus = "pending"
	CredentialValidated CredentialStatus = "validated"
)

// Credential is one admissible ticket unit.  A credential moves from
// pending to validated at most once and never regresses.
//
// Fields:
//
//	ID            – credentials.id.
//	ReservationID – owning reservation.
//	TicketTypeID  – copied from the reservation.
//	UnitIndex     – zero-based position inside the reservation.
//	Code          – compact scan payload, unique across all credentials.
//	Token         – validation hash derived from reservation and owner.
//	Status        – pending or validated.
//	ValidatedAt   – when the credential was admitted (nil until then).
//	ValidatedBy   – staff user that admitted it (nil until then).
type Credential struct {
	ID            uint64           `json:"id"`
	ReservationID string           `json:"reservation_id"`
	TicketTypeID  uint64           `json:"ticket_type_id"`
	UnitIndex     uint32           `json:"unit_index"`
	Code          string           `json:"code"`
	Token         string           `json:"-"`
	Status        CredentialStatus `json:"status"`
	ValidatedAt   *time.Time       `json:"validated_at,omitempty"`
	ValidatedBy   *uint64          `json:"validated_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
