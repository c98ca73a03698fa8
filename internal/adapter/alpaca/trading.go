package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// TradingClient implements domain.ExecutionVenue over the Alpaca trading API
type TradingClient struct {
	client
}

// NewTradingClient creates a trading client. httpClient may be nil.
func NewTradingClient(baseURL string, creds Credentials, httpClient *http.Client) *TradingClient {
	return &TradingClient{client: newClient(baseURL, creds, httpClient)}
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Status         string              `json:"status"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
}

// SubmitMarketOrder posts a market order. The venue has no idempotency
// guarantee, so this is never retried here.
func (c *TradingClient) SubmitMarketOrder(ctx context.Context, order domain.MarketOrder) (*domain.VenueFill, error) {
	tif := order.TimeInForce
	if tif == "" {
		tif = domain.TimeInForceDay
	}

	req := orderRequest{
		Symbol:        order.Symbol,
		Qty:           order.Quantity.String(),
		Side:          string(order.Side),
		Type:          "market",
		TimeInForce:   string(tif),
		ClientOrderID: order.ClientOrderID.String(),
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", nil, req, &resp); err != nil {
		var unreadable *unreadableResponseError
		if errors.As(err, &unreadable) {
			return nil, fmt.Errorf("%w: %v", domain.ErrVenueOutcomeUnknown, unreadable)
		}
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			return nil, &domain.VenueError{
				Reason:   statusErr.Error(),
				Rejected: statusErr.StatusCode < http.StatusInternalServerError,
			}
		}
		return nil, err
	}

	fill := &domain.VenueFill{
		VenueOrderID: resp.ID,
		Status:       resp.Status,
	}
	if resp.FilledAvgPrice.Valid {
		fill.AvgFillPrice = resp.FilledAvgPrice.Decimal
	}
	return fill, nil
}
