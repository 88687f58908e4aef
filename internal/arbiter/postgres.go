// Package arbiter implements the stock arbiter on PostgreSQL. One transaction
// locks every affected product row, evaluates sufficiency for all lines, and
// applies an all-or-nothing decrement, so concurrent checkouts for the last
// unit are serialized by the database.
package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvelder/shopcore/internal/checkout"
	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/product"
)

var _ checkout.Arbiter = (*Postgres)(nil)

const (
	lockProductSQL = `SELECT id, name, price, carrying_fee, shipping_fee, stock, status, variations
		FROM products WHERE id = $1 FOR UPDATE`

	updateStockSQL = `UPDATE products SET stock = $2, status = $3, variations = $4 WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (id, user_id, items, shipping_fee, discount, total, status, actual_expenses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// Postgres is the database-backed checkout arbiter.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns an arbiter using the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Commit evaluates the proposal's deductions against current stock and either
// applies all of them plus the order insert in one transaction, or applies
// nothing. Both outcomes carry authoritative snapshots of every affected
// product: post-transaction state on success, current state on rejection.
func (a *Postgres) Commit(ctx context.Context, o *order.Order) (*checkout.Result, error) {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin checkout tx")
	}
	defer tx.Rollback(ctx)

	// Lock affected products in sorted id order so concurrent checkouts
	// touching overlapping products cannot deadlock.
	ids := distinctProductIDs(o.Items)
	sort.Strings(ids)

	locked, missing, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if missing != "" {
		return reject(fmt.Sprintf("product %s no longer exists", missing), locked), nil
	}

	// Evaluate sufficiency for all lines before touching anything.
	if reason := checkSufficiency(o.Items, locked); reason != "" {
		return reject(reason, locked), nil
	}

	// All-or-nothing decrement.
	for _, it := range o.Items {
		locked[it.ProductID].Debit(it.Qty, it.Variation)
	}
	for _, id := range ids {
		p := locked[id]
		variations, err := json.Marshal(p.Variations)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal variations for %s", id)
		}
		if _, err := tx.Exec(ctx, updateStockSQL, p.ID, p.Stock, string(p.Status), variations); err != nil {
			return nil, errors.Wrapf(err, "decrement product %s", id)
		}
	}

	// The authoritative order id is drawn inside the same transaction.
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_id_seq')`).Scan(&seq); err != nil {
		return nil, errors.Wrap(err, "next order id")
	}
	orderID := fmt.Sprintf("SO-%06d", seq)

	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order items")
	}
	_, err = tx.Exec(ctx, insertOrderSQL,
		orderID, o.UserID, items, o.ShippingFee, o.Discount, o.Total,
		o.Status, o.ActualExpenses, o.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "insert order %s", orderID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit checkout tx")
	}

	return &checkout.Result{
		Confirmed: true,
		OrderID:   orderID,
		Snapshots: snapshots(ids, locked),
	}, nil
}

func distinctProductIDs(items []order.Item) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; !ok {
			seen[it.ProductID] = struct{}{}
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

// rowQuerier is the slice of pgx.Tx the lock path needs.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// lockProducts locks every listed product row. A missing row does not stop
// the walk: the rest are still locked and read so a rejection carries a
// complete repair view, and the first missing id is reported.
func lockProducts(ctx context.Context, q rowQuerier, ids []string) (map[string]*product.Product, string, error) {
	locked := make(map[string]*product.Product, len(ids))
	missing := ""
	for _, id := range ids {
		p, err := lockProduct(ctx, q, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				if missing == "" {
					missing = id
				}
				continue
			}
			return nil, "", errors.Wrapf(err, "lock product %s", id)
		}
		locked[id] = p
	}
	return locked, missing, nil
}

func lockProduct(ctx context.Context, q rowQuerier, id string) (*product.Product, error) {
	var (
		p          product.Product
		variations []byte
	)
	err := q.QueryRow(ctx, lockProductSQL, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.CarryingFee, &p.ShippingFee,
		&p.Stock, &p.Status, &variations,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variations, &p.Variations); err != nil {
		return nil, errors.Wrapf(err, "decode variations for %s", id)
	}
	return &p, nil
}

// checkSufficiency verifies every line fits within the locked stock figures,
// aggregating quantities per product and per variation. It returns an empty
// string when all lines fit, or the first violation.
func checkSufficiency(items []order.Item, locked map[string]*product.Product) string {
	needed := make(map[string]int, len(items))
	neededVar := make(map[string]int, len(items))
	for _, it := range items {
		needed[it.ProductID] += it.Qty
		if it.Variation != "" {
			neededVar[it.ProductID+"/"+it.Variation] += it.Qty
		}
	}

	for _, it := range items {
		p := locked[it.ProductID]
		if p == nil {
			return fmt.Sprintf("product %s no longer exists", it.ProductID)
		}
		if want := needed[it.ProductID]; want > p.Stock {
			return fmt.Sprintf("insufficient stock for %s: have %d, need %d", p.ID, p.Stock, want)
		}
		if it.Variation != "" {
			v := p.Variation(it.Variation)
			if v == nil {
				return fmt.Sprintf("product %s has no variation %q", p.ID, it.Variation)
			}
			if want := neededVar[it.ProductID+"/"+it.Variation]; want > v.Stock {
				return fmt.Sprintf("insufficient stock for %s variation %q: have %d, need %d",
					p.ID, it.Variation, v.Stock, want)
			}
		}
	}
	return ""
}

// reject builds the failure result from whatever rows were locked. The
// deferred rollback discards the locks without applying anything.
func reject(reason string, locked map[string]*product.Product) *checkout.Result {
	ids := make([]string, 0, len(locked))
	for id := range locked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &checkout.Result{
		Confirmed: false,
		Reason:    reason,
		Snapshots: snapshots(ids, locked),
	}
}

func snapshots(ids []string, locked map[string]*product.Product) []product.Product {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := locked[id]; ok {
			out = append(out, *p.Clone())
		}
	}
	return out
}
