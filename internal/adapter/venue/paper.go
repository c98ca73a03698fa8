package venue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// PaperVenue simulates a brokerage by filling every market order immediately
// at the latest quote. Used for local development.
type PaperVenue struct {
	quotes domain.QuoteSource

	mu    sync.Mutex
	fills map[uuid.UUID]*domain.VenueFill
}

// NewPaperVenue creates a new paper venue priced from quotes
func NewPaperVenue(quotes domain.QuoteSource) *PaperVenue {
	return &PaperVenue{
		quotes: quotes,
		fills:  make(map[uuid.UUID]*domain.VenueFill),
	}
}

// SubmitMarketOrder fills the order at the latest quote
func (p *PaperVenue) SubmitMarketOrder(ctx context.Context, order domain.MarketOrder) (*domain.VenueFill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	price, err := p.quotes.LatestPrice(ctx, order.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return nil, &domain.VenueError{Reason: "asset " + order.Symbol + " not found", Rejected: true}
		}
		return nil, err
	}

	fill := &domain.VenueFill{
		VenueOrderID: "paper-" + uuid.NewString(),
		Status:       "filled",
		AvgFillPrice: price,
	}

	p.mu.Lock()
	p.fills[order.ClientOrderID] = fill
	p.mu.Unlock()

	return fill, nil
}

// Fill returns the fill recorded for a client order ID
func (p *PaperVenue) Fill(clientOrderID uuid.UUID) (*domain.VenueFill, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fill, ok := p.fills[clientOrderID]
	return fill, ok
}
