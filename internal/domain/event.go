package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies a trade lifecycle event
type EventType string

const (
	EventTradeExecuted             EventType = "trade.executed"
	EventOrderReconciliationFailed EventType = "order.reconciliation_failed"
	EventLedgerInvariantViolation  EventType = "ledger.invariant_violation"
)

// TradeEvent is published after an order reaches a terminal state worth reporting
type TradeEvent struct {
	Type       EventType       `json:"type"`
	OrderID    uuid.UUID       `json:"order_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewOrderEvent builds an event describing the given order
func NewOrderEvent(eventType EventType, order *Order) TradeEvent {
	return TradeEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		OccurredAt: time.Now().UTC(),
	}
}
