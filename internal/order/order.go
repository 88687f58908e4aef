// Package order owns the order entity, its configurable status set, and the
// lifecycle rules that keep stock debits and restitutions balanced.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Item is an immutable snapshot of one order line, captured at checkout or
// staff-edit time. It is independent of later product changes.
type Item struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	CarryingFee decimal.Decimal `json:"carrying_fee"`
	Qty         int             `json:"qty"`
	Variation   string          `json:"variation,omitempty"`
}

// Order is a customer order. Status is one of the configured status ids, not
// a fixed enum.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Items          []Item          `json:"items"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	ActualExpenses decimal.Decimal `json:"actual_expenses"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Total computes an order total from its parts:
//
//	Σ(price·qty) + Σ(carryingFee·qty) + shippingFee − discount
func Total(items []Item, shippingFee, discount decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		qty := decimal.NewFromInt(int64(it.Qty))
		total = total.Add(it.Price.Mul(qty)).Add(it.CarryingFee.Mul(qty))
	}
	return total.Add(shippingFee).Sub(discount).Round(2)
}

// Recalc refreshes o.Total from the current items, shipping fee, and discount.
func (o *Order) Recalc() {
	o.Total = Total(o.Items, o.ShippingFee, o.Discount)
}

// Repository defines persistence operations for orders.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	Save(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
}

// Notifier receives order lifecycle events. Implementations must tolerate
// being nil-valued consumers; services skip a nil Notifier entirely.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order)
	OrderCanceled(ctx context.Context, o *Order)
	OrderDeleted(ctx context.Context, o *Order)
	OrderStatusChanged(ctx context.Context, o *Order, from, to string)
}
