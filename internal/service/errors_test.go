package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/event-ticketing/internal/repository"
)

func TestReason(t *testing.T) {
	cases := map[string]error{
		"":                       nil,
		"insufficient_capacity":  fmt.Errorf("create: %w", &InsufficientCapacityError{Requested: 6, Available: 4}),
		"already_validated":      &AlreadyValidatedError{CredentialID: 1, ValidatedAt: time.Now()},
		"event_not_found":        ErrEventNotFound,
		"event_not_bookable":     ErrEventNotBookable,
		"ticket_type_mismatch":   ErrTicketTypeMismatch,
		"user_not_eligible":      ErrUserNotEligible,
		"order_number_collision": ErrOrderNumberCollision,
		"invalid_code":           ErrInvalidCode,
		"not_eligible":           ErrNotEligible,
		"hold_expired":           ErrHoldExpired,
		"forbidden":              repository.ErrForbidden,
		"internal_error":         errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Reason(err), "error %v", err)
	}
}
