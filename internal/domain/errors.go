package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Business-rule and lookup failures. Callers classify with errors.Is.
var (
	// ErrInvalidRequest marks malformed input that never reaches the venue
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInsufficientHoldings is returned when a sell exceeds the available quantity
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrLedgerInvariantViolation means a decrement would leave a negative holding.
	// It indicates a concurrency-control bug and is never clamped.
	ErrLedgerInvariantViolation = errors.New("ledger invariant violation")

	// ErrLedgerUnavailable wraps store failures that happen before the venue is called
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrVenueOutcomeUnknown means the venue acknowledged a submission but its
	// answer could not be read. The order may have executed.
	ErrVenueOutcomeUnknown = errors.New("venue outcome unknown")

	ErrHoldingNotFound    = errors.New("holding not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrNoHistoricalData   = errors.New("no historical data available")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// ExecutionFailedError reports that a trade was not executed.
// The ledger is untouched when this error is returned.
type ExecutionFailedError struct {
	Reason string
}

func (e *ExecutionFailedError) Error() string {
	return "execution failed: " + e.Reason
}

// ReconciliationFailedError reports that the venue accepted an order but the
// local ledger could not be updated. Venue state and ledger state now diverge
// and the order needs manual reconciliation.
type ReconciliationFailedError struct {
	OrderID uuid.UUID
	Err     error
}

func (e *ReconciliationFailedError) Error() string {
	return fmt.Sprintf("ledger reconciliation failed for order %s: %v", e.OrderID, e.Err)
}

func (e *ReconciliationFailedError) Unwrap() error {
	return e.Err
}

// VenueError is a failure reported by (or on the way to) the execution venue.
// Rejected is true when the venue answered and declined the order, as opposed
// to a transport failure or timeout.
type VenueError struct {
	Reason   string
	Rejected bool
}

func (e *VenueError) Error() string {
	return e.Reason
}

// InvalidRequestf builds an ErrInvalidRequest with a formatted detail message
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// IsExecutionFailed reports whether err is (or wraps) an ExecutionFailedError
func IsExecutionFailed(err error) bool {
	var target *ExecutionFailedError
	return errors.As(err, &target)
}

// IsReconciliationFailed reports whether err is (or wraps) a ReconciliationFailedError
func IsReconciliationFailed(err error) bool {
	var target *ReconciliationFailedError
	return errors.As(err, &target)
}
