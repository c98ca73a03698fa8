package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// ledgerRepository implements domain.LedgerStore
type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) domain.LedgerStore {
	return &ledgerRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Reserve journals a pending order and, for sells, earmarks the quantity
func (r *ledgerRepository) Reserve(ctx context.Context, order *domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if order.Side == domain.SideSell {
		holding, err := r.lockHolding(ctx, dbTx, order.UserID, order.Symbol)
		if err != nil {
			if errors.Is(err, domain.ErrHoldingNotFound) {
				return fmt.Errorf("%w: no %s position", domain.ErrInsufficientHoldings, order.Symbol)
			}
			return err
		}

		if holding.Available().LessThan(order.Quantity) {
			return fmt.Errorf("%w: %s available %s, requested %s",
				domain.ErrInsufficientHoldings, order.Symbol, holding.Available(), order.Quantity)
		}

		holding.Reserved = holding.Reserved.Add(order.Quantity)
		if err := r.updateHolding(ctx, dbTx, holding); err != nil {
			return err
		}
	}

	insertOrderQuery := r.db.rebind(`
		INSERT INTO orders (id, user_id, symbol, side, quantity, status, reason, venue_order_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = dbTx.ExecContext(ctx, insertOrderQuery,
		order.ID,
		order.UserID,
		order.Symbol,
		string(order.Side),
		order.Quantity.String(),
		string(domain.OrderStatusPending),
		"",
		"",
		order.CreatedAt.UTC(),
		order.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Status = domain.OrderStatusPending
	return nil
}

// Release rejects a pending order and returns its reservation
func (r *ledgerRepository) Release(ctx context.Context, orderID uuid.UUID, reason string) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	order, err := r.lockOrder(ctx, dbTx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("order %s is %s, not PENDING", orderID, order.Status)
	}

	if order.Side == domain.SideSell {
		holding, err := r.lockHolding(ctx, dbTx, order.UserID, order.Symbol)
		if err != nil {
			if errors.Is(err, domain.ErrHoldingNotFound) {
				return fmt.Errorf("%w: reserved %s position disappeared", domain.ErrLedgerInvariantViolation, order.Symbol)
			}
			return err
		}

		holding.Reserved = holding.Reserved.Sub(order.Quantity)
		if holding.Reserved.IsNegative() {
			return fmt.Errorf("%w: %s reservation would become %s",
				domain.ErrLedgerInvariantViolation, order.Symbol, holding.Reserved)
		}
		if err := r.updateHolding(ctx, dbTx, holding); err != nil {
			return err
		}
	}

	if err := r.finishOrder(ctx, dbTx, orderID, domain.OrderStatusRejected, reason, ""); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Commit applies a filled order to the holding, appends the trade and marks the order FILLED
func (r *ledgerRepository) Commit(ctx context.Context, order *domain.Order, trade *domain.TradeRecord) (decimal.Decimal, error) {
	if err := trade.Validate(); err != nil {
		return decimal.Zero, fmt.Errorf("invalid trade: %w", err)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if trade.Side == domain.SideBuy {
		// Materialize a lockable row for a first buy
		ensureQuery := r.db.rebind(`
			INSERT INTO holdings (user_id, symbol, quantity, reserved, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, symbol) DO NOTHING
		`)
		_, err = dbTx.ExecContext(ctx, ensureQuery,
			trade.UserID,
			trade.Symbol,
			decimal.Zero.String(),
			decimal.Zero.String(),
			trade.ExecutedAt.UTC(),
		)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to create holding: %w", err)
		}
	}

	holding, err := r.lockHolding(ctx, dbTx, trade.UserID, trade.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrHoldingNotFound) {
			return decimal.Zero, fmt.Errorf("%w: sell of %s %s without a position",
				domain.ErrLedgerInvariantViolation, trade.Quantity, trade.Symbol)
		}
		return decimal.Zero, err
	}

	holding.Quantity = holding.Quantity.Add(trade.SignedQuantity())
	if trade.Side == domain.SideSell {
		holding.Reserved = holding.Reserved.Sub(trade.Quantity)
	}
	if holding.Quantity.IsNegative() || holding.Reserved.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s would become quantity %s reserved %s",
			domain.ErrLedgerInvariantViolation, trade.Symbol, holding.Quantity, holding.Reserved)
	}
	holding.UpdatedAt = trade.ExecutedAt.UTC()

	if holding.Quantity.IsZero() {
		if err := r.deleteHolding(ctx, dbTx, trade.UserID, trade.Symbol); err != nil {
			return decimal.Zero, err
		}
	} else if err := r.updateHolding(ctx, dbTx, holding); err != nil {
		return decimal.Zero, err
	}

	if err := r.appendTrade(ctx, dbTx, trade); err != nil {
		return decimal.Zero, err
	}

	if err := r.finishOrder(ctx, dbTx, order.ID, domain.OrderStatusFilled, "", order.VenueOrderID); err != nil {
		return decimal.Zero, err
	}

	if err := dbTx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Status = domain.OrderStatusFilled
	return holding.Quantity, nil
}

// GetHolding retrieves a single holding
func (r *ledgerRepository) GetHolding(ctx context.Context, userID uuid.UUID, symbol string) (*domain.Holding, error) {
	query := r.db.rebind(`
		SELECT user_id, symbol, quantity, reserved, updated_at
		FROM holdings
		WHERE user_id = ? AND symbol = ?
	`)

	holding, err := scanHolding(r.db.QueryRowContext(ctx, query, userID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return holding, nil
}

// ListHoldings retrieves all holdings of a user
func (r *ledgerRepository) ListHoldings(ctx context.Context, userID uuid.UUID) ([]*domain.Holding, error) {
	query := r.db.rebind(`
		SELECT user_id, symbol, quantity, reserved, updated_at
		FROM holdings
		WHERE user_id = ?
		ORDER BY symbol
	`)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := []*domain.Holding{}
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

// ListTrades retrieves the trade log of a user, newest first
func (r *ledgerRepository) ListTrades(ctx context.Context, userID uuid.UUID) ([]*domain.TradeRecord, error) {
	query := r.db.rebind(`
		SELECT id, order_id, user_id, symbol, side, quantity, price, executed_at
		FROM trades
		WHERE user_id = ?
		ORDER BY executed_at DESC, id DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []*domain.TradeRecord{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// GetOrder retrieves an order from the journal
func (r *ledgerRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := r.db.rebind(`
		SELECT id, user_id, symbol, side, quantity, status, reason, venue_order_id, created_at, updated_at
		FROM orders
		WHERE id = ?
	`)

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListPendingOrders retrieves orders stuck in PENDING since before olderThan
func (r *ledgerRepository) ListPendingOrders(ctx context.Context, olderThan time.Time) ([]*domain.Order, error) {
	query := r.db.rebind(`
		SELECT id, user_id, symbol, side, quantity, status, reason, venue_order_id, created_at, updated_at
		FROM orders
		WHERE status = ? AND created_at < ?
		ORDER BY created_at
	`)

	rows, err := r.db.QueryContext(ctx, query, string(domain.OrderStatusPending), olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// lockHolding reads a holding inside dbTx, row-locking it where the dialect supports it
func (r *ledgerRepository) lockHolding(ctx context.Context, dbTx *sql.Tx, userID uuid.UUID, symbol string) (*domain.Holding, error) {
	query := r.db.rebind(`
		SELECT user_id, symbol, quantity, reserved, updated_at
		FROM holdings
		WHERE user_id = ? AND symbol = ?` + r.db.forUpdate())

	holding, err := scanHolding(dbTx.QueryRowContext(ctx, query, userID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, fmt.Errorf("failed to lock holding: %w", err)
	}
	return holding, nil
}

func (r *ledgerRepository) updateHolding(ctx context.Context, dbTx *sql.Tx, h *domain.Holding) error {
	query := r.db.rebind(`
		UPDATE holdings
		SET quantity = ?, reserved = ?, updated_at = ?
		WHERE user_id = ? AND symbol = ?
	`)

	updatedAt := h.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := dbTx.ExecContext(ctx, query,
		h.Quantity.String(),
		h.Reserved.String(),
		updatedAt.UTC(),
		h.UserID,
		h.Symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	return nil
}

func (r *ledgerRepository) deleteHolding(ctx context.Context, dbTx *sql.Tx, userID uuid.UUID, symbol string) error {
	query := r.db.rebind(`DELETE FROM holdings WHERE user_id = ? AND symbol = ?`)

	if _, err := dbTx.ExecContext(ctx, query, userID, symbol); err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

func (r *ledgerRepository) appendTrade(ctx context.Context, dbTx *sql.Tx, t *domain.TradeRecord) error {
	query := r.db.rebind(`
		INSERT INTO trades (order_id, user_id, symbol, side, quantity, price, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := dbTx.ExecContext(ctx, query,
		t.OrderID,
		t.UserID,
		t.Symbol,
		string(t.Side),
		t.Quantity.String(),
		t.Price.String(),
		t.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

func (r *ledgerRepository) lockOrder(ctx context.Context, dbTx *sql.Tx, orderID uuid.UUID) (*domain.Order, error) {
	query := r.db.rebind(`
		SELECT id, user_id, symbol, side, quantity, status, reason, venue_order_id, created_at, updated_at
		FROM orders
		WHERE id = ?` + r.db.forUpdate())

	order, err := scanOrder(dbTx.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

// finishOrder moves a PENDING order to a terminal status
func (r *ledgerRepository) finishOrder(ctx context.Context, dbTx *sql.Tx, orderID uuid.UUID, status domain.OrderStatus, reason, venueOrderID string) error {
	query := r.db.rebind(`
		UPDATE orders
		SET status = ?, reason = ?, venue_order_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)

	res, err := dbTx.ExecContext(ctx, query,
		string(status),
		reason,
		venueOrderID,
		time.Now().UTC(),
		orderID,
		string(domain.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order %s is not pending: %w", orderID, domain.ErrOrderNotFound)
	}
	return nil
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var h domain.Holding
	var quantityStr, reservedStr string

	if err := row.Scan(&h.UserID, &h.Symbol, &quantityStr, &reservedStr, &h.UpdatedAt); err != nil {
		return nil, err
	}

	quantity, err := decimal.NewFromString(quantityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	reserved, err := decimal.NewFromString(reservedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reserved: %w", err)
	}

	h.Quantity = quantity
	h.Reserved = reserved
	h.UpdatedAt = h.UpdatedAt.UTC()
	return &h, nil
}

func scanTrade(row rowScanner) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var side, quantityStr, priceStr string

	err := row.Scan(&t.ID, &t.OrderID, &t.UserID, &t.Symbol, &side, &quantityStr, &priceStr, &t.ExecutedAt)
	if err != nil {
		return nil, err
	}

	quantity, err := decimal.NewFromString(quantityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	t.Side = domain.Side(side)
	t.Quantity = quantity
	t.Price = price
	t.ExecutedAt = t.ExecutedAt.UTC()
	return &t, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var side, status, quantityStr string

	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &quantityStr, &status, &o.Reason, &o.VenueOrderID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	quantity, err := decimal.NewFromString(quantityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}

	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	o.Quantity = quantity
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
