package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Reservation errors.
var (
	ErrEventNotFound         = errors.New("event not found")
	ErrEventNotBookable      = errors.New("event is not open for reservations")
	ErrTicketTypeMismatch    = errors.New("ticket type does not belong to event")
	ErrTicketTypeUnavailable = errors.New("ticket type is not on sale")
	ErrUserNotEligible       = errors.New("user may not purchase tickets")
	ErrOrderNumberCollision  = errors.New("could not allocate a unique order number")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrPriceMismatch         = errors.New("declared price does not match")
	ErrReservationNotFound   = errors.New("reservation not found")
)

// Check-in errors.
var (
	ErrInvalidCode = errors.New("invalid code")
	ErrNotEligible = errors.New("credential not eligible for this event")
)

// Lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrHoldExpired       = errors.New("reservation hold expired")
)

// InsufficientCapacityError reports how many units are still available.
// Available is never negative and the request is never clamped to it.
type InsufficientCapacityError struct {
	Requested uint32
	Available uint64
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: requested %d, available %d", e.Requested, e.Available)
}

// AlreadyValidatedError is returned when a credential was admitted before.
// ValidatedAt is the time of the winning scan.
type AlreadyValidatedError struct {
	CredentialID uint64
	ValidatedAt  time.Time
}

func (e *AlreadyValidatedError) Error() string {
	return fmt.Sprintf("credential %d already validated at %s", e.CredentialID, e.ValidatedAt.UTC().Format(time.RFC3339))
}

// Reason maps an error to the machine readable reason used in audit
// entries, metrics and API responses.  Unknown errors map to
// "internal_error".
func Reason(err error) string {
	var capErr *InsufficientCapacityError
	var avErr *AlreadyValidatedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &capErr):
		return "insufficient_capacity"
	case errors.As(err, &avErr):
		return "already_validated"
	case errors.Is(err, ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, ErrEventNotBookable):
		return "event_not_bookable"
	case errors.Is(err, ErrTicketTypeMismatch):
		return "ticket_type_mismatch"
	case errors.Is(err, ErrTicketTypeUnavailable):
		return "ticket_type_unavailable"
	case errors.Is(err, ErrUserNotEligible):
		return "user_not_eligible"
	case errors.Is(err, ErrOrderNumberCollision):
		return "order_number_collision"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, ErrReservationNotFound):
		return "reservation_not_found"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrHoldExpired):
		return "hold_expired"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, repository.ErrForbidden):
		return "forbidden"
	}
	return "internal_error"
}
