package portfolio

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// PositionValue is one holding valued at the latest price
type PositionValue struct {
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Value    decimal.Decimal
}

// ValueResult is the total market value of a user's holdings
type ValueResult struct {
	Total     decimal.Decimal
	Positions []PositionValue
}

// PortfolioService derives read-only views over the ledger and current prices
type PortfolioService struct {
	Ledger domain.LedgerStore
	Quotes domain.QuoteSource
}

// NewPortfolioService creates a new PortfolioService instance
func NewPortfolioService(ledger domain.LedgerStore, quotes domain.QuoteSource) *PortfolioService {
	return &PortfolioService{
		Ledger: ledger,
		Quotes: quotes,
	}
}

// TotalValue calculates the market value of the user's holdings
// Logic: Total = Σ holding.quantity × latest price
func (s *PortfolioService) TotalValue(ctx context.Context, userID uuid.UUID) (*ValueResult, error) {
	holdings, err := s.Ledger.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}

	prices := newPriceBook(s.Quotes)
	result := &ValueResult{Total: decimal.Zero, Positions: make([]PositionValue, 0, len(holdings))}

	for _, h := range holdings {
		price, err := prices.get(ctx, h.Symbol)
		if err != nil {
			return nil, err
		}

		value := h.Quantity.Mul(price)
		result.Positions = append(result.Positions, PositionValue{
			Symbol:   h.Symbol,
			Quantity: h.Quantity,
			Price:    price,
			Value:    value,
		})
		result.Total = result.Total.Add(value)
	}

	return result, nil
}

// ProfitLoss calculates unrealized profit or loss per symbol over the trade log
// Logic:
//   - buy:  +(currentPrice - tradePrice) × quantity
//   - sell: -(currentPrice - tradePrice) × quantity
func (s *PortfolioService) ProfitLoss(ctx context.Context, userID uuid.UUID) (map[string]decimal.Decimal, error) {
	trades, err := s.Ledger.ListTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	prices := newPriceBook(s.Quotes)
	result := make(map[string]decimal.Decimal)

	for _, t := range trades {
		current, err := prices.get(ctx, t.Symbol)
		if err != nil {
			return nil, err
		}

		pl := current.Sub(t.Price).Mul(t.Quantity).Mul(t.Side.Sign())
		result[t.Symbol] = result[t.Symbol].Add(pl)
	}

	return result, nil
}

// Diversity returns each holding's share of the total value as a percentage.
// An empty map is returned when the portfolio has no value.
func (s *PortfolioService) Diversity(ctx context.Context, userID uuid.UUID) (map[string]decimal.Decimal, error) {
	value, err := s.TotalValue(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(value.Positions))
	if !value.Total.IsPositive() {
		return result, nil
	}

	for _, p := range value.Positions {
		result[p.Symbol] = p.Value.Div(value.Total).Mul(hundred).Round(4)
	}
	return result, nil
}

// priceBook fetches each symbol's price at most once per request
type priceBook struct {
	quotes domain.QuoteSource
	prices map[string]decimal.Decimal
}

func newPriceBook(quotes domain.QuoteSource) *priceBook {
	return &priceBook{quotes: quotes, prices: make(map[string]decimal.Decimal)}
}

func (b *priceBook) get(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, ok := b.prices[symbol]; ok {
		return price, nil
	}

	price, err := b.quotes.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to price %s: %w", symbol, err)
	}
	b.prices[symbol] = price
	return price, nil
}
