package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/scan"
)

func TestIssueAll(t *testing.T) {
	iss := NewIssuer(scan.NewSigner(testSecret))
	res := &model.Reservation{
		ID: testReservID, EventID: testEventID, TicketTypeID: testTypeID, UserID: testUserID,
		Quantity: 3, TotalPrice: decimal.RequireFromString("75"), CreatedAt: time.Now().UTC(),
	}

	creds := iss.IssueAll(res)
	require.Len(t, creds, 3)
	for i, c := range creds {
		assert.Equal(t, uint32(i), c.UnitIndex)
		assert.Equal(t, testTypeID, c.TicketTypeID)
		assert.Equal(t, model.CredentialPending, c.Status)
		assert.True(t, iss.Verify(testReservID, testUserID, c.Token))
		assert.False(t, iss.Verify(testReservID, testUserID+1, c.Token))
	}
	assert.Empty(t, iss.IssueAll(&model.Reservation{ID: testReservID}))
}

func TestIssuerDocumentRoundTrip(t *testing.T) {
	iss := NewIssuer(scan.NewSigner(testSecret))
	res := &model.Reservation{ID: testReservID, EventID: testEventID, UserID: testUserID, Quantity: 2}
	unit := uint32(1)

	b, err := iss.Document(res, &unit)
	require.NoError(t, err)
	p, err := scan.Parse(string(b))
	require.NoError(t, err)
	assert.Equal(t, scan.KindStructured, p.Kind)
	assert.Equal(t, testEventID, p.EventID)
	assert.Equal(t, scan.CodeFor(testReservID, 1), p.Code)
	assert.True(t, iss.Verify(p.ReservationID, p.UserID, p.Hash))
}
