// Package scan turns raw scanner input into a typed payload.  Scanning
// devices send either the compact per-unit code printed under each QR
// (camera or manual entry) or the structured JSON document embedded in the
// reservation receipt.  Both forms are resolved here, up front, so that
// malformed input never reaches the database layer.
package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind tags which variant a Payload holds.
type Kind string

const (
	KindCompact    Kind = "compact"
	KindStructured Kind = "structured"
)

var (
	// ErrEmpty is returned for blank input.
	ErrEmpty = errors.New("scan: empty payload")
	// ErrMalformed is returned when input is neither a compact code nor
	// a structured document.
	ErrMalformed = errors.New("scan: malformed payload")
	// ErrMissingField is returned when a structured document lacks one of
	// reservation_id, hash, event_id or user_id.
	ErrMissingField = errors.New("scan: missing required field")
)

// Payload is the parsed form of a scan.  For KindCompact only Code,
// ReservationID and Unit are set.  For KindStructured Unit is nil when the
// document addresses the reservation as a whole.
type Payload struct {
	Kind          Kind
	Code          string
	ReservationID string
	Hash          string
	EventID       uint64
	UserID        uint64
	Unit          *uint32
}

// CodeFor returns the compact code of one unit of a reservation.
func CodeFor(reservationID string, unit uint32) string {
	return reservationID + "-" + strconv.FormatUint(uint64(unit), 10)
}

// KindOf reports which variant raw claims to be without validating it.
func KindOf(raw string) Kind {
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return KindStructured
	}
	return KindCompact
}

// Parse classifies raw and validates its structure.
func Parse(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrEmpty
	}
	if strings.HasPrefix(raw, "{") {
		return parseStructured([]byte(raw))
	}
	return parseCompact(raw)
}

func parseCompact(raw string) (Payload, error) {
	code := strings.ToLower(raw)
	i := strings.LastIndexByte(code, '-')
	if i <= 0 || i == len(code)-1 {
		return Payload{}, ErrMalformed
	}
	resID, unitStr := code[:i], code[i+1:]
	if _, err := uuid.Parse(resID); err != nil {
		return Payload{}, ErrMalformed
	}
	n, err := strconv.ParseUint(unitStr, 10, 32)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	unit := uint32(n)
	return Payload{Kind: KindCompact, Code: code, ReservationID: resID, Unit: &unit}, nil
}

// document is the receipt JSON.  Identifiers may be encoded as numbers or
// strings depending on the decoder that produced them.
type document struct {
	ReservationID string   `json:"reservation_id"`
	Hash          string   `json:"hash"`
	EventID       flexUint `json:"event_id"`
	UserID        flexUint `json:"user_id"`
	Unit          *uint32  `json:"unit,omitempty"`
}

func parseStructured(raw []byte) (Payload, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc.ReservationID = strings.ToLower(strings.TrimSpace(doc.ReservationID))
	doc.Hash = strings.ToLower(strings.TrimSpace(doc.Hash))
	if doc.ReservationID == "" || doc.Hash == "" || doc.EventID == 0 || doc.UserID == 0 {
		return Payload{}, ErrMissingField
	}
	if _, err := uuid.Parse(doc.ReservationID); err != nil {
		return Payload{}, ErrMalformed
	}
	p := Payload{
		Kind:          KindStructured,
		ReservationID: doc.ReservationID,
		Hash:          doc.Hash,
		EventID:       uint64(doc.EventID),
		UserID:        uint64(doc.UserID),
		Unit:          doc.Unit,
	}
	if p.Unit != nil {
		p.Code = CodeFor(p.ReservationID, *p.Unit)
	}
	return p, nil
}

// Document renders the structured payload for a reservation receipt.  A
// nil unit addresses the reservation as a whole.
func Document(reservationID, hash string, eventID, userID uint64, unit *uint32) ([]byte, error) {
	return json.Marshal(document{
		ReservationID: reservationID,
		Hash:          hash,
		EventID:       flexUint(eventID),
		UserID:        flexUint(userID),
		Unit:          unit,
	})
}

type flexUint uint64

func (f flexUint) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(f), 10)), nil
}

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(n)
	return nil
}
