package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore defines the persistence operations for holdings, orders and trades.
// Each method runs in its own short transaction; none is held open across a venue call.
type LedgerStore interface {
	// Reserve journals a new PENDING order.
	// For sells it atomically checks that the available quantity covers the order
	// and earmarks it, returning ErrInsufficientHoldings otherwise.
	Reserve(ctx context.Context, order *Order) error

	// Release marks a pending order REJECTED and returns any earmarked quantity
	Release(ctx context.Context, orderID uuid.UUID, reason string) error

	// Commit applies a filled order: mutates the holding, appends the trade and
	// marks the order FILLED, all in one transaction.
	// Returns the resulting holding quantity. A decrement below zero aborts with
	// ErrLedgerInvariantViolation and leaves the ledger untouched.
	Commit(ctx context.Context, order *Order, trade *TradeRecord) (decimal.Decimal, error)

	// GetHolding retrieves one holding. Returns ErrHoldingNotFound if the user holds none.
	GetHolding(ctx context.Context, userID uuid.UUID, symbol string) (*Holding, error)

	// ListHoldings retrieves all non-zero holdings of a user ordered by symbol
	ListHoldings(ctx context.Context, userID uuid.UUID) ([]*Holding, error)

	// ListTrades retrieves the trade log of a user, most recent first
	ListTrades(ctx context.Context, userID uuid.UUID) ([]*TradeRecord, error)

	// GetOrder retrieves an order from the journal
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)

	// ListPendingOrders retrieves orders still PENDING that were created before olderThan
	ListPendingOrders(ctx context.Context, olderThan time.Time) ([]*Order, error)
}

// UserRepository defines the interface for user persistence operations
type UserRepository interface {
	// Create stores a new user. Returns ErrUserExists on a duplicate username or email.
	Create(ctx context.Context, user *User) error

	// GetByUsername retrieves a user. Returns ErrUserNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID retrieves a user. Returns ErrUserNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// QuoteSource provides market data
type QuoteSource interface {
	// LatestPrice returns the latest quoted price. Returns ErrUnknownSymbol for
	// symbols the venue does not recognize.
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Bars returns daily bars between start and end, oldest first
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// ExecutionVenue submits orders to a brokerage
type ExecutionVenue interface {
	// SubmitMarketOrder submits exactly one market order.
	// Failures are reported as *VenueError.
	SubmitMarketOrder(ctx context.Context, order MarketOrder) (*VenueFill, error)
}

// EventPublisher emits trade lifecycle events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event TradeEvent) error
	Close() error
}
