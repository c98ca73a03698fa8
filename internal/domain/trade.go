package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side represents the direction of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide converts user input into a Side
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return "", InvalidRequestf("side must be buy or sell, got %q", s)
	}
}

// Valid reports whether the side is buy or sell
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Sign returns +1 for buys and -1 for sells
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.]{1,15}$`)

// NormalizeSymbol trims and upper-cases a ticker and checks its shape.
// Whether the venue recognizes it is checked separately against the quote source.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", InvalidRequestf("symbol is required")
	}
	if !symbolPattern.MatchString(s) {
		return "", InvalidRequestf("malformed symbol %q", symbol)
	}
	return s, nil
}

// TradeRecord is the immutable fact of one executed order.
// Exactly one is appended per successfully reconciled order.
type TradeRecord struct {
	ID         int64
	OrderID    uuid.UUID
	UserID     uuid.UUID
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal // Always positive; the sign comes from Side
	Price      decimal.Decimal
	ExecutedAt time.Time
}

// Validate ensures the trade record can be appended to the log
func (t *TradeRecord) Validate() error {
	if t.UserID == uuid.Nil {
		return errors.New("trade must reference a user")
	}
	if t.Symbol == "" {
		return errors.New("trade symbol cannot be empty")
	}
	if !t.Side.Valid() {
		return errors.New("trade side must be buy or sell")
	}
	if t.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.New("trade quantity must be positive")
	}
	if t.Price.IsNegative() {
		return errors.New("trade price cannot be negative")
	}
	return nil
}

// SignedQuantity returns the quantity with the sign of the side
func (t *TradeRecord) SignedQuantity() decimal.Decimal {
	return t.Quantity.Mul(t.Side.Sign())
}

// NetQuantity sums the signed quantities of the trades for one symbol.
// This is the value the holding for that symbol must always equal.
func NetQuantity(trades []*TradeRecord, symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if t.Symbol == symbol {
			total = total.Add(t.SignedQuantity())
		}
	}
	return total
}
