package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/simaogato/tradeflow-backend/internal/adapter/auth"
	"github.com/simaogato/tradeflow-backend/internal/adapter/repository/sqlstore"
	"github.com/simaogato/tradeflow-backend/internal/adapter/venue"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/usecase/account"
	"github.com/simaogato/tradeflow-backend/internal/usecase/market"
	"github.com/simaogato/tradeflow-backend/internal/usecase/portfolio"
	"github.com/simaogato/tradeflow-backend/internal/usecase/quotestream"
	"github.com/simaogato/tradeflow-backend/internal/usecase/trading"
)

// fixedQuotes prices known symbols and rejects the rest
type fixedQuotes map[string]decimal.Decimal

func (q fixedQuotes) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := q[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return price, nil
}

func (q fixedQuotes) Bars(_ context.Context, symbol string, _, end time.Time) ([]domain.Bar, error) {
	price, ok := q[symbol]
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}
	bars := make([]domain.Bar, 0, 6)
	for i := 6; i > 0; i-- {
		bars = append(bars, domain.Bar{Time: end.AddDate(0, 0, -i), Close: price})
	}
	return bars, nil
}

// switchVenue delegates to the paper venue unless told to fail
type switchVenue struct {
	next domain.ExecutionVenue
	fail atomic.Bool
}

func (v *switchVenue) SubmitMarketOrder(ctx context.Context, order domain.MarketOrder) (*domain.VenueFill, error) {
	if v.fail.Load() {
		return nil, &domain.VenueError{Reason: "venue timeout"}
	}
	return v.next.SubmitMarketOrder(ctx, order)
}

// faultyLedger fails Commit on demand
type faultyLedger struct {
	domain.LedgerStore
	failCommit atomic.Bool
}

func (l *faultyLedger) Commit(ctx context.Context, order *domain.Order, trade *domain.TradeRecord) (decimal.Decimal, error) {
	if l.failCommit.Load() {
		return decimal.Zero, errors.New("database is locked")
	}
	return l.LedgerStore.Commit(ctx, order, trade)
}

type testAPI struct {
	server *httptest.Server
	venue  *switchVenue
	ledger *faultyLedger
	logs   *observer.ObservedLogs
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.NewDB(sqlstore.DialectSQLite, filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = sqlstore.Migrate(ctx, db)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	quotes := fixedQuotes{"AAPL": decimal.NewFromInt(150), "MSFT": decimal.NewFromInt(50)}
	ledger := &faultyLedger{LedgerStore: sqlstore.NewLedgerRepository(db)}
	exec := &switchVenue{next: venue.NewPaperVenue(quotes)}
	tokens := auth.NewTokenAuthority("test-secret", time.Hour)

	broadcaster := quotestream.NewBroadcaster(quotes, 10*time.Millisecond, logger)
	t.Cleanup(broadcaster.Close)

	api := NewServer(Dependencies{
		Accounts:  account.NewAccountService(sqlstore.NewUserRepository(db), tokens),
		Trading:   trading.NewTradingService(ledger, exec, quotes, nil, logger),
		Portfolio: portfolio.NewPortfolioService(ledger, quotes),
		Market:    market.NewMarketService(quotes),
		Quotes:    broadcaster,
		Tokens:    tokens,
		Logger:    logger,
	})

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	return &testAPI{server: server, venue: exec, ledger: ledger, logs: logs}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (a *testAPI) login(t *testing.T) string {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/users/register", "", RegisterRequest{
		Username: "alice", Password: "correct horse", Email: "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = a.do(t, http.MethodPost, "/users/login", "", LoginRequest{Username: "alice", Password: "correct horse"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "bearer", body["token_type"])
	return body["access_token"].(string)
}

func TestWelcomeAndHealth(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Welcome to the Trading Platform", body["message"])

	status, body = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestUsers(t *testing.T) {
	api := newTestAPI(t)
	api.login(t)

	status, body := api.do(t, http.MethodPost, "/users/register", "", RegisterRequest{
		Username: "alice", Password: "correct horse", Email: "other@example.com",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "user_exists", body["code"])

	status, body = api.do(t, http.MethodPost, "/users/register", "", RegisterRequest{Username: "bob", Password: "short", Email: "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["code"])

	status, body = api.do(t, http.MethodPost, "/users/login", "", LoginRequest{Username: "alice", Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["code"])
}

func TestTrades_RequireToken(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodPost, "/trades/buy", "", TradeRequest{Symbol: "AAPL", Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["code"])

	status, _ = api.do(t, http.MethodGet, "/trades/portfolio", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTrades_BuySellAndPortfolio(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	status, body := api.do(t, http.MethodPost, "/trades/buy", token, map[string]interface{}{"symbol": "aapl", "quantity": 10})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Bought 10 shares of AAPL", body["message"])
	assert.Equal(t, "150", body["price"])
	assert.Equal(t, "10", body["resulting_quantity"])

	status, body = api.do(t, http.MethodPost, "/trades/buy", token, map[string]interface{}{"symbol": "MSFT", "quantity": "10"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = api.do(t, http.MethodPost, "/trades/sell", token, map[string]interface{}{"symbol": "AAPL", "quantity": "4"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Sold 4 shares of AAPL", body["message"])
	assert.Equal(t, "6", body["resulting_quantity"])

	status, body = api.do(t, http.MethodPost, "/trades/sell", token, map[string]interface{}{"symbol": "AAPL", "quantity": "7"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_holdings", body["code"])

	status, body = api.do(t, http.MethodPost, "/trades/buy", token, map[string]interface{}{"symbol": "AAPL", "quantity": "0"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["code"])

	status, body = api.do(t, http.MethodGet, "/trades/portfolio", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["portfolio"], 2)

	status, body = api.do(t, http.MethodGet, "/trades/trade-history", token, nil)
	require.Equal(t, http.StatusOK, status)
	history := body["trade_history"].([]interface{})
	require.Len(t, history, 3)
	assert.Equal(t, "sell", history[0].(map[string]interface{})["side"])

	status, body = api.do(t, http.MethodGet, "/trades/portfolio/value", token, nil)
	require.Equal(t, http.StatusOK, status)
	// 6 × 150 + 10 × 50
	assert.Equal(t, "1400", body["total_portfolio_value"])

	status, body = api.do(t, http.MethodGet, "/trades/portfolio/diversity", token, nil)
	require.Equal(t, http.StatusOK, status)
	diversity := body["portfolio_diversity"].(map[string]interface{})
	assert.Equal(t, "64.2857", diversity["AAPL"])
	assert.Equal(t, "35.7143", diversity["MSFT"])

	status, body = api.do(t, http.MethodGet, "/trades/portfolio/profit-loss", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0", body["profit_loss"].(map[string]interface{})["AAPL"])
}

func TestTrades_VenueFailureIsBadGateway(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	api.venue.fail.Store(true)
	status, body := api.do(t, http.MethodPost, "/trades/buy", token, map[string]interface{}{"symbol": "AAPL", "quantity": "1"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "execution_failed", body["code"])
	assert.Contains(t, body["message"], "venue timeout")

	status, body = api.do(t, http.MethodGet, "/trades/portfolio", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["portfolio"])
}

func TestTrades_ReconciliationFailureIsDistinct(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	api.ledger.failCommit.Store(true)
	status, body := api.do(t, http.MethodPost, "/trades/buy", token, map[string]interface{}{"symbol": "AAPL", "quantity": "1"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "reconciliation_failed", body["code"])
	assert.Equal(t, 1, api.logs.FilterMessage("request failed").Len())
}

func TestMarketEndpoints(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/price/aapl", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "150", body["price"])

	status, body = api.do(t, http.MethodGet, "/price/ZZZZ", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])

	status, body = api.do(t, http.MethodGet, "/trades/portfolio/historical-analysis/AAPL?days=10", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["historical_prices"], 6)
	assert.Equal(t, []interface{}{"150", "150"}, body["moving_average"])

	status, _ = api.do(t, http.MethodGet, "/trades/portfolio/historical-analysis/AAPL?days=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/trades/portfolio/historical-analysis/AAPL?days=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodGet, "/trades/portfolio/historical-analysis/ZZZZ", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])
}

func TestPriceUpdatesWebSocket(t *testing.T) {
	api := newTestAPI(t)
	url := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/ws/price-updates/aapl"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 2; i++ {
		var quote map[string]interface{}
		require.NoError(t, conn.ReadJSON(&quote))
		assert.Equal(t, "AAPL", quote["symbol"])
		assert.Equal(t, "150", quote["price"])
	}
}

func TestPriceUpdatesWebSocket_InvalidSymbol(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/ws/price-updates/not%20valid", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["code"])
}

func TestRecoverer(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := &Server{logger: zap.New(core)}

	handler := s.recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":"internal","message":"internal server error"}`, rec.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic serving request").Len())
}
