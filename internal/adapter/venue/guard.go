// Package venue holds execution-venue implementations and the failure-handling
// wrapper placed in front of the real brokerage.
package venue

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/logging"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Normalized failure reasons
const (
	ReasonTimeout       = "venue timeout"
	ReasonUnreachable   = "venue unreachable"
	ReasonCircuitOpen   = "venue circuit open"
	ReasonEmptyResponse = "empty venue response"
)

// GuardSettings configures a GuardedVenue
type GuardSettings struct {
	Timeout          time.Duration // Per-submission deadline
	FailureThreshold uint32        // Consecutive failures before the breaker opens
	Cooldown         time.Duration // Time the breaker stays open before probing
}

// GuardedVenue wraps an ExecutionVenue with a per-call timeout, a circuit
// breaker and error normalization. It never retries: a market order that
// may have reached the venue must not be resubmitted.
type GuardedVenue struct {
	next    domain.ExecutionVenue
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewGuardedVenue creates a new GuardedVenue instance
func NewGuardedVenue(next domain.ExecutionVenue, settings GuardSettings, logger *zap.Logger) *GuardedVenue {
	logger = logging.OrNop(logger)

	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "execution-venue",
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("venue circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A venue that answers, even with a rejection or an unreadable body, is healthy
		IsSuccessful: func(err error) bool {
			var venueErr *domain.VenueError
			return err == nil || errors.Is(err, domain.ErrVenueOutcomeUnknown) ||
				(errors.As(err, &venueErr) && venueErr.Rejected)
		},
	})

	return &GuardedVenue{
		next:    next,
		breaker: breaker,
		timeout: settings.Timeout,
		logger:  logger,
	}
}

// SubmitMarketOrder submits the order through the breaker. Every failure is
// returned as a *domain.VenueError, except domain.ErrVenueOutcomeUnknown which
// is passed through so the order is not treated as unexecuted.
func (g *GuardedVenue) SubmitMarketOrder(ctx context.Context, order domain.MarketOrder) (*domain.VenueFill, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	fields := []zap.Field{
		zap.String("client_order_id", order.ClientOrderID.String()),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.Quantity.String()),
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.SubmitMarketOrder(ctx, order)
	})
	fields = append(fields, zap.Duration("latency", time.Since(start)))

	if errors.Is(err, domain.ErrVenueOutcomeUnknown) {
		g.logger.Error("venue answer unreadable, order may have executed", append(fields, zap.Error(err))...)
		return nil, err
	}
	if err != nil {
		venueErr := normalize(ctx, err)
		g.logger.Warn("venue submission failed",
			append(fields, zap.String("reason", venueErr.Reason), zap.Bool("rejected", venueErr.Rejected), zap.Error(err))...)
		return nil, venueErr
	}

	fill, _ := result.(*domain.VenueFill)
	if fill == nil {
		g.logger.Warn("venue submission failed", append(fields, zap.String("reason", ReasonEmptyResponse))...)
		return nil, &domain.VenueError{Reason: ReasonEmptyResponse}
	}
	g.logger.Info("venue accepted order",
		append(fields, zap.String("venue_order_id", fill.VenueOrderID), zap.String("status", fill.Status))...)
	return fill, nil
}

// State reports the breaker state for health endpoints
func (g *GuardedVenue) State() string {
	return g.breaker.State().String()
}

func normalize(ctx context.Context, err error) *domain.VenueError {
	var venueErr *domain.VenueError
	if errors.As(err, &venueErr) {
		return venueErr
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.VenueError{Reason: ReasonCircuitOpen}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.VenueError{Reason: ReasonTimeout}
	}

	return &domain.VenueError{Reason: ReasonUnreachable + ": " + err.Error()}
}
