package model

import "time"

// ScanOutcome is the result recorded for a scan attempt.
type ScanOutcome string

const (
	ScanSuccess ScanOutcome = "success"
	ScanFailure ScanOutcome = "failure"
)

// ValidationAudit is an append-only record of one scan attempt.  Every
// attempt is recorded, successful or not, so that scans can be reconciled
// after the event.
//
// Fields:
//
//	ID           – validation_audits.id.
//	EventID      – event at whose entrance the scan happened.
//	CredentialID – resolved credential, nil when the payload resolved to nothing.
//	StaffID      – staff user operating the scanning device.
//	Outcome      – success or failure.
//	Reason       – machine readable failure reason; empty on success.
//	PayloadKind  – compact or structured.
//	CreatedAt    – time of the scan.
type ValidationAudit struct {
	ID           uint64      `json:"id"`
	EventID      uint64      `json:"event_id"`
	CredentialID *uint64     `json:"credential_id,omitempty"`
	StaffID      uint64      `json:"staff_id"`
	Outcome      ScanOutcome `json:"outcome"`
	Reason       string      `json:"reason,omitempty"`
	PayloadKind  string      `json:"payload_kind"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Occupancy is the live, derived view of an event's attendance.
type Occupancy struct {
	EventID       uint64 `json:"event_id"`
	Validated     uint64 `json:"validated"`
	Pending       uint64 `json:"pending"`
	TotalReserved uint64 `json:"total_reserved"`
}
