package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the persisted state of an order in the journal
type OrderStatus string

const (
	// OrderStatusPending means the order passed validation and is (or was) at the venue.
	// An order that stays pending after its request returned needs reconciliation.
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// TimeInForce values accepted by the venue
type TimeInForce string

const TimeInForceDay TimeInForce = "day"

// MaxQuantityScale is the number of fractional digits the ledger stores for
// quantities and prices. Finer quantities would be rounded on write.
const MaxQuantityScale = 8

// ExceedsQuantityScale reports whether q has significant digits beyond MaxQuantityScale
func ExceedsQuantityScale(q decimal.Decimal) bool {
	return !q.Equal(q.Truncate(MaxQuantityScale))
}

// Order is one accepted trade intent
type Order struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Symbol       string
	Side         Side
	Quantity     decimal.Decimal
	Status       OrderStatus
	Reason       string
	VenueOrderID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewOrder creates a pending order with a fresh ID
func NewOrder(userID uuid.UUID, symbol string, side Side, quantity decimal.Decimal) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate ensures the order adheres to domain rules
func (o *Order) Validate() error {
	if o.ID == uuid.Nil {
		return errors.New("order ID is required")
	}
	if o.UserID == uuid.Nil {
		return InvalidRequestf("user is required")
	}
	if o.Symbol == "" {
		return InvalidRequestf("symbol is required")
	}
	if !o.Side.Valid() {
		return InvalidRequestf("side must be buy or sell")
	}
	if o.Quantity.LessThanOrEqual(decimal.Zero) {
		return InvalidRequestf("quantity must be positive")
	}
	if ExceedsQuantityScale(o.Quantity) {
		return InvalidRequestf("quantity supports at most %d decimal places", MaxQuantityScale)
	}
	return nil
}

// MarketOrder is the request sent to the execution venue
type MarketOrder struct {
	ClientOrderID uuid.UUID
	Symbol        string
	Quantity      decimal.Decimal
	Side          Side
	TimeInForce   TimeInForce
}

// VenueFill is the venue's acknowledgement of a market order.
// AvgFillPrice is zero when the venue has not reported a fill price yet.
type VenueFill struct {
	VenueOrderID string
	Status       string
	AvgFillPrice decimal.Decimal
}
