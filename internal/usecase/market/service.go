package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

const (
	DefaultHistoryDays  = 30
	MaxHistoryDays      = 365
	MovingAverageWindow = 5
)

// HistoricalAnalysis is the daily price history of a symbol with its moving average
type HistoricalAnalysis struct {
	Symbol        string
	Bars          []domain.Bar
	MovingAverage []decimal.Decimal
}

// MarketService answers price queries
type MarketService struct {
	Quotes domain.QuoteSource

	now func() time.Time
}

// NewMarketService creates a new MarketService instance
func NewMarketService(quotes domain.QuoteSource) *MarketService {
	return &MarketService{Quotes: quotes, now: time.Now}
}

// GetPrice returns the latest price of a symbol
func (s *MarketService) GetPrice(ctx context.Context, symbol string) (string, decimal.Decimal, error) {
	normalized, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return "", decimal.Zero, err
	}

	price, err := s.Quotes.LatestPrice(ctx, normalized)
	if err != nil {
		return "", decimal.Zero, err
	}
	return normalized, price, nil
}

// HistoricalAnalysis fetches daily bars for the last days and the moving average of their closes.
// days == 0 selects the default window.
func (s *MarketService) HistoricalAnalysis(ctx context.Context, symbol string, days int) (*HistoricalAnalysis, error) {
	normalized, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	if days == 0 {
		days = DefaultHistoryDays
	}
	if days < 1 || days > MaxHistoryDays {
		return nil, domain.InvalidRequestf("days must be between 1 and %d, got %d", MaxHistoryDays, days)
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)

	bars, err := s.Quotes.Bars(ctx, normalized, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoHistoricalData, normalized)
		}
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoHistoricalData, normalized)
	}

	closes := make([]decimal.Decimal, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}

	return &HistoricalAnalysis{
		Symbol:        normalized,
		Bars:          bars,
		MovingAverage: MovingAverage(closes, MovingAverageWindow),
	}, nil
}

// MovingAverage returns the simple moving average over each full window of prices.
// The result has len(prices)-window+1 entries, or none when there are fewer prices than window.
func MovingAverage(prices []decimal.Decimal, window int) []decimal.Decimal {
	if window <= 0 || len(prices) < window {
		return []decimal.Decimal{}
	}

	size := decimal.NewFromInt(int64(window))
	result := make([]decimal.Decimal, 0, len(prices)-window+1)

	sum := decimal.Zero
	for i, p := range prices {
		sum = sum.Add(p)
		if i >= window {
			sum = sum.Sub(prices[i-window])
		}
		if i >= window-1 {
			result = append(result, sum.Div(size))
		}
	}
	return result
}
