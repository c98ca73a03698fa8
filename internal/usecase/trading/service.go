package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/logging"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// TradingService drives trade intents through the venue and reconciles the ledger
type TradingService struct {
	Ledger domain.LedgerStore
	Venue  domain.ExecutionVenue
	Quotes domain.QuoteSource
	Events domain.EventPublisher
	Logger *zap.Logger

	now func() time.Time
}

// NewTradingService creates a new TradingService instance
func NewTradingService(ledger domain.LedgerStore, venue domain.ExecutionVenue, quotes domain.QuoteSource, events domain.EventPublisher, logger *zap.Logger) *TradingService {
	return &TradingService{
		Ledger: ledger,
		Venue:  venue,
		Quotes: quotes,
		Events: events,
		Logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// SubmitTradeInput is a trade intent from an authenticated user
type SubmitTradeInput struct {
	UserID   uuid.UUID
	Symbol   string
	Quantity decimal.Decimal
	Side     domain.Side
}

// TradeConfirmation describes a committed trade
type TradeConfirmation struct {
	OrderID           uuid.UUID
	Symbol            string
	Side              domain.Side
	Quantity          decimal.Decimal
	Price             decimal.Decimal
	ResultingQuantity decimal.Decimal
	ExecutedAt        time.Time
}

// SubmitTrade executes one market order and reconciles the ledger.
// Logic:
// 1. Validate the intent and take a quote (caller cancellation honoured)
// 2. Reserve: journal a PENDING order; sells earmark available quantity
// 3. Submit to the venue exactly once, detached from caller cancellation
// 4. If the venue acknowledged but its answer is unreadable, keep the order
//    PENDING and report ReconciliationFailed
// 5. On any other venue failure release the reservation and report ExecutionFailed
// 6. On venue success commit holding + trade atomically; failure here is a
//    ReconciliationFailedError and is never downgraded
func (s *TradingService) SubmitTrade(ctx context.Context, in SubmitTradeInput) (*TradeConfirmation, error) {
	symbol, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quote, err := s.Quotes.LatestPrice(ctx, symbol)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return nil, domain.InvalidRequestf("unknown symbol %s", symbol)
		}
		return nil, &domain.ExecutionFailedError{Reason: "quote unavailable: " + err.Error()}
	}

	order := domain.NewOrder(in.UserID, symbol, in.Side, in.Quantity)
	log := s.Logger.With(orderFields(order)...)

	if err := s.Ledger.Reserve(ctx, order); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientHoldings), errors.Is(err, domain.ErrInvalidRequest):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			log.Error("ledger reservation failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
		}
	}

	// From here on the order exists; work continues even if the caller goes away
	bg := context.WithoutCancel(ctx)

	if err := ctx.Err(); err != nil {
		s.release(bg, log, order, "cancelled before submission")
		return nil, err
	}

	fill, err := s.Venue.SubmitMarketOrder(bg, domain.MarketOrder{
		ClientOrderID: order.ID,
		Symbol:        order.Symbol,
		Quantity:      order.Quantity,
		Side:          order.Side,
		TimeInForce:   domain.TimeInForceDay,
	})
	if errors.Is(err, domain.ErrVenueOutcomeUnknown) {
		// The reservation stays in place until the venue state is checked by hand
		log.Error("venue outcome unknown; order left pending for manual reconciliation", zap.Error(err))
		s.alert(bg, domain.EventOrderReconciliationFailed, order, err)
		return nil, &domain.ReconciliationFailedError{OrderID: order.ID, Err: err}
	}
	if err != nil {
		reason := venueReason(err)
		log.Warn("order not executed", zap.String("reason", reason))
		s.release(bg, log, order, reason)
		return nil, &domain.ExecutionFailedError{Reason: reason}
	}

	order.VenueOrderID = fill.VenueOrderID
	trade := &domain.TradeRecord{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      s.executionPrice(bg, fill, symbol, quote).Round(domain.MaxQuantityScale),
		ExecutedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	resulting, err := s.Ledger.Commit(bg, order, trade)
	if err != nil {
		log = log.With(zap.String("venue_order_id", fill.VenueOrderID), zap.String("price", trade.Price.String()))

		if errors.Is(err, domain.ErrLedgerInvariantViolation) {
			log.Error("ledger invariant violated after venue fill", zap.Error(err))
			s.alert(bg, domain.EventLedgerInvariantViolation, order, err)
			return nil, fmt.Errorf("order %s: %w", order.ID, err)
		}

		log.Error("ledger reconciliation failed after venue fill; manual reconciliation required", zap.Error(err))
		s.alert(bg, domain.EventOrderReconciliationFailed, order, err)
		return nil, &domain.ReconciliationFailedError{OrderID: order.ID, Err: err}
	}

	log.Info("trade executed",
		zap.String("price", trade.Price.String()),
		zap.String("resulting_quantity", resulting.String()),
	)

	event := domain.NewOrderEvent(domain.EventTradeExecuted, order)
	event.Price = trade.Price
	s.publish(bg, event)

	return &TradeConfirmation{
		OrderID:           order.ID,
		Symbol:            order.Symbol,
		Side:              order.Side,
		Quantity:          order.Quantity,
		Price:             trade.Price,
		ResultingQuantity: resulting,
		ExecutedAt:        trade.ExecutedAt,
	}, nil
}

// GetHoldings returns the user's non-zero holdings ordered by symbol
func (s *TradingService) GetHoldings(ctx context.Context, userID uuid.UUID) ([]*domain.Holding, error) {
	return s.Ledger.ListHoldings(ctx, userID)
}

// GetTradeHistory returns the user's trades, newest first
func (s *TradingService) GetTradeHistory(ctx context.Context, userID uuid.UUID) ([]*domain.TradeRecord, error) {
	return s.Ledger.ListTrades(ctx, userID)
}

// ListPendingOrders returns orders that have been PENDING for longer than age.
// These are orders whose outcome at the venue is not reflected in the ledger.
func (s *TradingService) ListPendingOrders(ctx context.Context, age time.Duration) ([]*domain.Order, error) {
	return s.Ledger.ListPendingOrders(ctx, s.now().Add(-age))
}

func (s *TradingService) validate(in SubmitTradeInput) (string, error) {
	if in.UserID == uuid.Nil {
		return "", domain.InvalidRequestf("user is required")
	}
	if !in.Side.Valid() {
		return "", domain.InvalidRequestf("side must be buy or sell, got %q", in.Side)
	}
	if !in.Quantity.IsPositive() {
		return "", domain.InvalidRequestf("quantity must be positive, got %s", in.Quantity)
	}
	if domain.ExceedsQuantityScale(in.Quantity) {
		return "", domain.InvalidRequestf("quantity supports at most %d decimal places, got %s", domain.MaxQuantityScale, in.Quantity)
	}
	return domain.NormalizeSymbol(in.Symbol)
}

// executionPrice prefers the venue's fill price, then a fresh quote, then the validation quote
func (s *TradingService) executionPrice(ctx context.Context, fill *domain.VenueFill, symbol string, quote decimal.Decimal) decimal.Decimal {
	if fill.AvgFillPrice.IsPositive() {
		return fill.AvgFillPrice
	}
	if fresh, err := s.Quotes.LatestPrice(ctx, symbol); err == nil && fresh.IsPositive() {
		return fresh
	}
	return quote
}

func (s *TradingService) release(ctx context.Context, log *zap.Logger, order *domain.Order, reason string) {
	if err := s.Ledger.Release(ctx, order.ID, reason); err != nil {
		log.Error("failed to release order reservation", zap.String("reason", reason), zap.Error(err))
	}
}

func (s *TradingService) alert(ctx context.Context, eventType domain.EventType, order *domain.Order, cause error) {
	event := domain.NewOrderEvent(eventType, order)
	event.Reason = cause.Error()
	s.publish(ctx, event)
}

func (s *TradingService) publish(ctx context.Context, event domain.TradeEvent) {
	if s.Events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.Events.Publish(ctx, event); err != nil {
		s.Logger.Warn("failed to publish trade event",
			zap.String("type", string(event.Type)),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err),
		)
	}
}

func venueReason(err error) string {
	var venueErr *domain.VenueError
	if errors.As(err, &venueErr) {
		return venueErr.Reason
	}
	return err.Error()
}

func orderFields(order *domain.Order) []zap.Field {
	return []zap.Field{
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID.String()),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.Quantity.String()),
	}
}
