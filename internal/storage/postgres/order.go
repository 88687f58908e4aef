package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvelder/shopcore/internal/order"
)

const (
	orderColumns = `id, user_id, items, shipping_fee, discount, total, status, actual_expenses, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	upsertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			items = EXCLUDED.items, shipping_fee = EXCLUDED.shipping_fee,
			discount = EXCLUDED.discount, total = EXCLUDED.total,
			status = EXCLUDED.status, actual_expenses = EXCLUDED.actual_expenses`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Order
// items live in a JSONB column as immutable snapshots.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// ListByUser returns one shopper's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns every order, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Save upserts an order.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrapf(err, "marshal items for %q", o.ID)
	}
	_, err = r.pool.Exec(ctx, upsertOrderSQL,
		o.ID, o.UserID, items, o.ShippingFee, o.Discount, o.Total,
		o.Status, o.ActualExpenses, o.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "save order %q", o.ID)
	}
	return nil
}

// Delete removes an order record entirely.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteOrderSQL, id); err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		items []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &o.ShippingFee, &o.Discount,
		&o.Total, &o.Status, &o.ActualExpenses, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrapf(err, "decode items for %q", o.ID)
	}
	return o, nil
}
