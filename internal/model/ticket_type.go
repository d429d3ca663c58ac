package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketType is a priced category of units offered for one event.
//
// Fields:
//
//	ID           – primary key identifier.
//	EventID      – owning event.
//	Name         – display name (e.g. "General", "VIP").
//	UnitPrice    – price of a single unit.
//	UnitsOffered – number of units of this type on sale.
//	IsAvailable  – whether the type can currently be purchased.
type TicketType struct {
	ID           uint64          `json:"id"`
	EventID      uint64          `json:"event_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitsOffered uint32          `json:"units_offered"`
	IsAvailable  bool            `json:"is_available"`
	CreatedAt    time.Time       `json:"created_at"`
}
