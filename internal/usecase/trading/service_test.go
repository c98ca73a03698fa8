package trading

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockLedgerStore is a mock implementation of LedgerStore for testing
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) Reserve(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockLedgerStore) Release(ctx context.Context, orderID uuid.UUID, reason string) error {
	args := m.Called(ctx, orderID, reason)
	return args.Error(0)
}

func (m *MockLedgerStore) Commit(ctx context.Context, order *domain.Order, trade *domain.TradeRecord) (decimal.Decimal, error) {
	args := m.Called(ctx, order, trade)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedgerStore) GetHolding(ctx context.Context, userID uuid.UUID, symbol string) (*domain.Holding, error) {
	args := m.Called(ctx, userID, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Holding), args.Error(1)
}

func (m *MockLedgerStore) ListHoldings(ctx context.Context, userID uuid.UUID) ([]*domain.Holding, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Holding), args.Error(1)
}

func (m *MockLedgerStore) ListTrades(ctx context.Context, userID uuid.UUID) ([]*domain.TradeRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TradeRecord), args.Error(1)
}

func (m *MockLedgerStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockLedgerStore) ListPendingOrders(ctx context.Context, olderThan time.Time) ([]*domain.Order, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

// MockVenue is a mock implementation of ExecutionVenue for testing
type MockVenue struct {
	mock.Mock
}

func (m *MockVenue) SubmitMarketOrder(ctx context.Context, order domain.MarketOrder) (*domain.VenueFill, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VenueFill), args.Error(1)
}

// MockQuoteSource is a mock implementation of QuoteSource for testing
type MockQuoteSource struct {
	mock.Mock
}

func (m *MockQuoteSource) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockQuoteSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Bar), args.Error(1)
}

// MockPublisher is a mock implementation of EventPublisher for testing
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.TradeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

type fixture struct {
	ledger  *MockLedgerStore
	venue   *MockVenue
	quotes  *MockQuoteSource
	events  *MockPublisher
	logs    *observer.ObservedLogs
	service *TradingService
}

func newFixture() *fixture {
	f := &fixture{
		ledger: new(MockLedgerStore),
		venue:  new(MockVenue),
		quotes: new(MockQuoteSource),
		events: new(MockPublisher),
	}
	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	f.service = NewTradingService(f.ledger, f.venue, f.quotes, f.events, zap.New(core))
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.ledger.AssertExpectations(t)
	f.venue.AssertExpectations(t)
	f.quotes.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func eventOfType(eventType domain.EventType) interface{} {
	return mock.MatchedBy(func(e domain.TradeEvent) bool { return e.Type == eventType })
}

func TestSubmitTrade_RejectsInvalidInput(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name  string
		input SubmitTradeInput
	}{
		{name: "Zero quantity", input: SubmitTradeInput{UserID: userID, Symbol: "AAPL", Quantity: decimal.Zero, Side: domain.SideBuy}},
		{name: "Negative quantity", input: SubmitTradeInput{UserID: userID, Symbol: "AAPL", Quantity: dec("-1"), Side: domain.SideSell}},
		{name: "Empty symbol", input: SubmitTradeInput{UserID: userID, Symbol: " ", Quantity: dec("1"), Side: domain.SideBuy}},
		{name: "Malformed symbol", input: SubmitTradeInput{UserID: userID, Symbol: "AA PL", Quantity: dec("1"), Side: domain.SideBuy}},
		{name: "Unknown side", input: SubmitTradeInput{UserID: userID, Symbol: "AAPL", Quantity: dec("1"), Side: "short"}},
		{name: "Missing user", input: SubmitTradeInput{Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy}},
		{name: "Quantity finer than ledger scale", input: SubmitTradeInput{UserID: userID, Symbol: "AAPL", Quantity: dec("0.999999996"), Side: domain.SideSell}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			_, err := f.service.SubmitTrade(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)

			// No collaborator may be touched
			f.assertExpectations(t)
			f.venue.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
			f.ledger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitTrade_UnknownSymbolIsInvalidRequest(t *testing.T) {
	f := newFixture()
	f.quotes.On("LatestPrice", mock.Anything, "NOPE").Return(decimal.Zero, domain.ErrUnknownSymbol)

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "nope", Quantity: dec("1"), Side: domain.SideBuy})

	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	f.assertExpectations(t)
	f.ledger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
}

func TestSubmitTrade_QuoteOutageIsExecutionFailed(t *testing.T) {
	f := newFixture()
	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(decimal.Zero, errors.New("503 from data api"))

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

	var execErr *domain.ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Reason, "503 from data api")
	f.venue.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestSubmitTrade_InsufficientHoldingsNeverReachesVenue(t *testing.T) {
	f := newFixture()
	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(domain.ErrInsufficientHoldings)

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("11"), Side: domain.SideSell})

	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)
	f.assertExpectations(t)
	f.venue.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitTrade_StoreDownBeforeVenueIsLedgerUnavailable(t *testing.T) {
	f := newFixture()
	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.False(t, domain.IsReconciliationFailed(err))
	f.venue.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestSubmitTrade_CancelledBeforeSubmission(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.SubmitTrade(ctx, SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

	assert.ErrorIs(t, err, context.Canceled)
	f.assertExpectations(t)
	f.quotes.AssertNotCalled(t, "LatestPrice", mock.Anything, mock.Anything)
}

func TestSubmitTrade_VenueFailureReleasesReservation(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	var reserved *domain.Order
	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		reserved = args.Get(1).(*domain.Order)
	}).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(nil, &domain.VenueError{Reason: "venue timeout"})
	f.ledger.On("Release", mock.Anything, mock.Anything, "venue timeout").Return(nil)

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: userID, Symbol: "AAPL", Quantity: dec("3"), Side: domain.SideSell})

	var execErr *domain.ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "venue timeout", execErr.Reason)

	require.NotNil(t, reserved)
	f.ledger.AssertCalled(t, "Release", mock.Anything, reserved.ID, "venue timeout")
	f.ledger.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	f.venue.AssertNumberOfCalls(t, "SubmitMarketOrder", 1)
	f.assertExpectations(t)
}

func TestSubmitTrade_UnreadableVenueAnswerLeavesOrderPending(t *testing.T) {
	f := newFixture()
	venueErr := fmt.Errorf("%w: failed to decode response: invalid character '<'", domain.ErrVenueOutcomeUnknown)

	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(nil, venueErr)
	f.events.On("Publish", mock.Anything, eventOfType(domain.EventOrderReconciliationFailed)).Return(nil)

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("2"), Side: domain.SideSell})

	var reconErr *domain.ReconciliationFailedError
	require.ErrorAs(t, err, &reconErr)
	assert.ErrorIs(t, err, domain.ErrVenueOutcomeUnknown)
	assert.False(t, domain.IsExecutionFailed(err))

	// Neither released nor committed: the order stays PENDING
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterLevelExact(zap.ErrorLevel).Len())
	f.assertExpectations(t)
}

func TestSubmitTrade_ReleaseFailureStillReportsExecutionFailed(t *testing.T) {
	f := newFixture()
	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	f.ledger.On("Release", mock.Anything, mock.Anything, "connection reset").Return(errors.New("database is locked"))

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideSell})

	assert.True(t, domain.IsExecutionFailed(err))
	assert.Equal(t, 1, f.logs.FilterMessage("failed to release order reservation").Len())
}

func TestSubmitTrade_VenueCallIsDetachedFromCaller(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		// The caller gives up while the order is in flight
		cancel()
		venueCtx := args.Get(0).(context.Context)
		assert.NoError(t, venueCtx.Err())
	}).Return(&domain.VenueFill{VenueOrderID: "v-1", AvgFillPrice: dec("151")}, nil)
	f.ledger.On("Commit", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		assert.NoError(t, args.Get(0).(context.Context).Err())
	}).Return(dec("1"), nil)
	f.events.On("Publish", mock.Anything, eventOfType(domain.EventTradeExecuted)).Return(nil)

	confirmation, err := f.service.SubmitTrade(ctx, SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

	require.NoError(t, err)
	assert.True(t, confirmation.Price.Equal(dec("151")))
	f.assertExpectations(t)
}

func TestSubmitTrade_BuyCommitsWithFillPrice(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	now := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil).Once()
	f.ledger.On("Reserve", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.UserID == userID && o.Symbol == "AAPL" && o.Side == domain.SideBuy && o.Quantity.Equal(dec("10"))
	})).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.MatchedBy(func(o domain.MarketOrder) bool {
		return o.Symbol == "AAPL" && o.TimeInForce == domain.TimeInForceDay && o.ClientOrderID != uuid.Nil
	})).Return(&domain.VenueFill{VenueOrderID: "v-1", Status: "filled", AvgFillPrice: dec("150.10")}, nil)
	f.ledger.On("Commit", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.VenueOrderID == "v-1"
	}), mock.MatchedBy(func(tr *domain.TradeRecord) bool {
		return tr.Side == domain.SideBuy && tr.Quantity.Equal(dec("10")) && tr.Price.Equal(dec("150.10")) && tr.ExecutedAt.Equal(now)
	})).Return(dec("10"), nil)
	f.events.On("Publish", mock.Anything, eventOfType(domain.EventTradeExecuted)).Return(nil)

	confirmation, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: userID, Symbol: "aapl", Quantity: dec("10"), Side: domain.SideBuy})

	require.NoError(t, err)
	assert.Equal(t, "AAPL", confirmation.Symbol)
	assert.Equal(t, domain.SideBuy, confirmation.Side)
	assert.True(t, confirmation.Quantity.Equal(dec("10")))
	assert.True(t, confirmation.ResultingQuantity.Equal(dec("10")))
	assert.True(t, confirmation.Price.Equal(dec("150.10")))
	f.assertExpectations(t)
}

func TestSubmitTrade_PriceFallsBackToQuotes(t *testing.T) {
	tests := []struct {
		name      string
		freshErr  error
		fresh     string
		wantPrice string
	}{
		{name: "Fresh quote when venue reports no fill price", fresh: "152", wantPrice: "152"},
		{name: "Validation quote when fresh quote fails", freshErr: errors.New("timeout"), fresh: "0", wantPrice: "150"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil).Once()
			f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec(tt.fresh), tt.freshErr).Once()
			f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
			f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(&domain.VenueFill{VenueOrderID: "v-1", Status: "accepted"}, nil)
			f.ledger.On("Commit", mock.Anything, mock.Anything, mock.MatchedBy(func(tr *domain.TradeRecord) bool {
				return tr.Price.Equal(dec(tt.wantPrice))
			})).Return(dec("1"), nil)
			f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

			confirmation, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

			require.NoError(t, err)
			assert.True(t, confirmation.Price.Equal(dec(tt.wantPrice)))
			f.assertExpectations(t)
		})
	}
}

func TestSubmitTrade_CommitFailureIsReconciliationFailed(t *testing.T) {
	f := newFixture()
	cause := errors.New("database is closed")

	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(&domain.VenueFill{VenueOrderID: "v-9", AvgFillPrice: dec("150")}, nil)
	f.ledger.On("Commit", mock.Anything, mock.Anything, mock.Anything).Return(decimal.Zero, cause)
	f.events.On("Publish", mock.Anything, eventOfType(domain.EventOrderReconciliationFailed)).Return(nil)

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

	var reconErr *domain.ReconciliationFailedError
	require.ErrorAs(t, err, &reconErr)
	assert.NotEqual(t, uuid.Nil, reconErr.OrderID)
	assert.ErrorIs(t, err, cause)
	assert.False(t, domain.IsExecutionFailed(err))

	entries := f.logs.FilterLevelExact(zap.ErrorLevel).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, reconErr.OrderID.String(), fields["order_id"])
	assert.Equal(t, "v-9", fields["venue_order_id"])

	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestSubmitTrade_NegativeResultIsInvariantViolation(t *testing.T) {
	f := newFixture()

	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(&domain.VenueFill{VenueOrderID: "v-1", AvgFillPrice: dec("150")}, nil)
	f.ledger.On("Commit", mock.Anything, mock.Anything, mock.Anything).Return(decimal.Zero, domain.ErrLedgerInvariantViolation)
	f.events.On("Publish", mock.Anything, eventOfType(domain.EventLedgerInvariantViolation)).Return(nil)

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("5"), Side: domain.SideSell})

	assert.ErrorIs(t, err, domain.ErrLedgerInvariantViolation)
	assert.False(t, domain.IsReconciliationFailed(err))
	f.assertExpectations(t)
}

func TestSubmitTrade_PublishFailureDoesNotFailTrade(t *testing.T) {
	f := newFixture()

	f.quotes.On("LatestPrice", mock.Anything, "AAPL").Return(dec("150"), nil)
	f.ledger.On("Reserve", mock.Anything, mock.Anything).Return(nil)
	f.venue.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(&domain.VenueFill{VenueOrderID: "v-1", AvgFillPrice: dec("150")}, nil)
	f.ledger.On("Commit", mock.Anything, mock.Anything, mock.Anything).Return(dec("1"), nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	_, err := f.service.SubmitTrade(context.Background(), SubmitTradeInput{UserID: uuid.New(), Symbol: "AAPL", Quantity: dec("1"), Side: domain.SideBuy})

	require.NoError(t, err)
	assert.Equal(t, 1, f.logs.FilterMessage("failed to publish trade event").Len())
}

func TestListPendingOrders(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	stuck := []*domain.Order{{ID: uuid.New(), Status: domain.OrderStatusPending}}
	f.ledger.On("ListPendingOrders", mock.Anything, now.Add(-5*time.Minute)).Return(stuck, nil)

	orders, err := f.service.ListPendingOrders(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, stuck, orders)
	f.assertExpectations(t)
}
