package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// QuoteCache decorates a QuoteSource with a short-lived cache of latest prices.
// Bars are passed through uncached.
type QuoteCache struct {
	next domain.QuoteSource
	c    *ristretto.Cache
	ttl  time.Duration
}

// NewQuoteCache creates a new QuoteCache. A non-positive ttl disables caching.
func NewQuoteCache(next domain.QuoteSource, ttl time.Duration) (*QuoteCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 14,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quote cache: %w", err)
	}
	return &QuoteCache{next: next, c: c, ttl: ttl}, nil
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// LatestPrice returns a cached price when fresh, otherwise asks the wrapped source
func (q *QuoteCache) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if q.ttl > 0 {
		if v, ok := q.c.Get(priceKey(symbol)); ok {
			return v.(decimal.Decimal), nil
		}
	}

	price, err := q.next.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if q.ttl > 0 {
		q.c.SetWithTTL(priceKey(symbol), price, 1, q.ttl)
	}
	return price, nil
}

// Bars is not cached
func (q *QuoteCache) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return q.next.Bars(ctx, symbol, start, end)
}

// Invalidate drops the cached price for symbol
func (q *QuoteCache) Invalidate(symbol string) {
	q.c.Del(priceKey(symbol))
}

// Close releases the cache's background goroutines
func (q *QuoteCache) Close() {
	q.c.Close()
}
