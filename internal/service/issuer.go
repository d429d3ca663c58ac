package service

import (
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/scan"
)

// Issuer mints credentials.  It is pure: it performs no I/O and the
// caller persists its output inside the reservation transaction.
type Issuer struct {
	signer *scan.Signer
}

// NewIssuer returns an Issuer signing tokens with signer.
func NewIssuer(signer *scan.Signer) *Issuer { return &Issuer{signer: signer} }

// Issue produces the credential of one unit.  The code encodes the
// reservation and unit index; the token binds the reservation to the
// purchasing user.
func (i *Issuer) Issue(reservationID string, ticketTypeID, userID uint64, unit uint32, at time.Time) model.Credential {
	return model.Credential{
		ReservationID: reservationID,
		TicketTypeID:  ticketTypeID,
		UnitIndex:     unit,
		Code:          scan.CodeFor(reservationID, unit),
		Token:         i.signer.Token(reservationID, userID),
		Status:        model.CredentialPending,
		CreatedAt:     at,
	}
}

// IssueAll produces exactly res.Quantity credentials with unit indexes
// 0..Quantity-1.
func (i *Issuer) IssueAll(res *model.Reservation) []model.Credential {
	out := make([]model.Credential, 0, res.Quantity)
	for u := uint32(0); u < res.Quantity; u++ {
		out = append(out, i.Issue(res.ID, res.TicketTypeID, res.UserID, u, res.CreatedAt))
	}
	return out
}

// Document returns the structured scan payload of a reservation, or of a
// single unit when unit is non-nil.
func (i *Issuer) Document(res *model.Reservation, unit *uint32) ([]byte, error) {
	return scan.Document(res.ID, i.signer.Token(res.ID, res.UserID), res.EventID, res.UserID, unit)
}

// Verify reports whether token is genuine for the reservation and user.
func (i *Issuer) Verify(reservationID string, userID uint64, token string) bool {
	return i.signer.Verify(reservationID, userID, token)
}
