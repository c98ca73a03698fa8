package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is a user's current quantity of one symbol.
// A holding never persists with a zero quantity.
type Holding struct {
	UserID    uuid.UUID
	Symbol    string
	Quantity  decimal.Decimal
	Reserved  decimal.Decimal // Quantity earmarked by in-flight sell orders
	UpdatedAt time.Time
}

// Available returns the quantity that a new sell order may claim
func (h *Holding) Available() decimal.Decimal {
	return h.Quantity.Sub(h.Reserved)
}
