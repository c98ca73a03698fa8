package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// MarketDataClient implements domain.QuoteSource over the Alpaca data API
type MarketDataClient struct {
	client
}

// NewMarketDataClient creates a market-data client. httpClient may be nil.
func NewMarketDataClient(baseURL string, creds Credentials, httpClient *http.Client) *MarketDataClient {
	return &MarketDataClient{client: newClient(baseURL, creds, httpClient)}
}

type latestQuoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  struct {
		AskPrice decimal.Decimal `json:"ap"`
		BidPrice decimal.Decimal `json:"bp"`
		Time     time.Time       `json:"t"`
	} `json:"quote"`
}

type barsResponse struct {
	Bars          []domain.Bar `json:"bars"`
	NextPageToken *string      `json:"next_page_token"`
}

// LatestPrice returns the latest ask price, falling back to the bid when no ask is quoted
func (c *MarketDataClient) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var resp latestQuoteResponse
	err := c.do(ctx, http.MethodGet, "/v2/stocks/"+url.PathEscape(symbol)+"/quotes/latest", nil, nil, &resp)
	if err != nil {
		return decimal.Zero, classifyDataError(symbol, err)
	}

	price := resp.Quote.AskPrice
	if !price.IsPositive() {
		price = resp.Quote.BidPrice
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s", domain.ErrUnknownSymbol, symbol)
	}
	return price, nil
}

// Bars returns daily bars in [start, end], following pagination
func (c *MarketDataClient) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", "1Day")
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("limit", "1000")

	bars := []domain.Bar{}
	for {
		var resp barsResponse
		err := c.do(ctx, http.MethodGet, "/v2/stocks/"+url.PathEscape(symbol)+"/bars", params, nil, &resp)
		if err != nil {
			return nil, classifyDataError(symbol, err)
		}
		bars = append(bars, resp.Bars...)

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		params.Set("page_token", *resp.NextPageToken)
	}
	return bars, nil
}

func classifyDataError(symbol string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return fmt.Errorf("failed to fetch market data for %s: %w", symbol, err)
}
