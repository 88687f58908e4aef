package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/flight"
	"github.com/kvelder/shopcore/internal/product"
)

// ErrStatusRequiresCancel rejects a staff edit that sets the canceled status
// directly. Cancellation restitutes stock; a plain status overwrite would
// skip that and leak the order's debit.
var ErrStatusRequiresCancel = errors.New("transition to canceled requires the cancel operation")

// NotCancelableError reports a cancel attempt from a status other than
// waiting_payment or paid.
type NotCancelableError struct {
	OrderID string
	Status  string
}

func (e *NotCancelableError) Error() string {
	return fmt.Sprintf("order %s cannot be canceled from status %q", e.OrderID, e.Status)
}

// PartialReplicationError reports a restitution that persisted some affected
// products but not all. The inconsistency is surfaced, never retried and
// never silently repaired.
type PartialReplicationError struct {
	OrderID   string
	Persisted []string
	FailedID  string
	Err       error
}

func (e *PartialReplicationError) Error() string {
	return fmt.Sprintf("order %s: restitution persisted %d product(s) but failed on %s: %v",
		e.OrderID, len(e.Persisted), e.FailedID, e.Err)
}

func (e *PartialReplicationError) Unwrap() error {
	return e.Err
}

// Lifecycle owns order status transitions and the stock debit/credit
// invariants for cancel, delete, and staff edits. Stock moves only through
// checkout (debit) and cancel/delete (restitution); item edits are
// cost-neutral bookkeeping.
type Lifecycle struct {
	orders   Repository
	products product.Repository
	statuses *StatusSet
	notifier Notifier
	guard    *flight.Guard
	lg       *zap.Logger
}

// NewLifecycle constructs the lifecycle manager. notifier may be nil.
func NewLifecycle(
	orders Repository,
	products product.Repository,
	statuses *StatusSet,
	notifier Notifier,
	lg *zap.Logger,
) *Lifecycle {
	return &Lifecycle{
		orders:   orders,
		products: products,
		statuses: statuses,
		notifier: notifier,
		guard:    flight.NewGuard(),
		lg:       lg,
	}
}

// Statuses exposes the configured status set.
func (l *Lifecycle) Statuses() *StatusSet {
	return l.statuses
}

// Cancel moves an order to canceled and restitutes its stock. Permitted only
// from waiting_payment or paid. Every affected product is persisted before
// the operation completes; a partial failure is returned as
// *PartialReplicationError with the order left un-canceled.
func (l *Lifecycle) Cancel(ctx context.Context, orderID string) (*Order, error) {
	release, err := l.guard.Acquire("order:" + orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusWaitingPayment && o.Status != StatusPaid {
		return nil, &NotCancelableError{OrderID: orderID, Status: o.Status}
	}

	if err := l.restitute(ctx, o); err != nil {
		return nil, err
	}

	from := o.Status
	o.Status = StatusCanceled
	if err := l.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "save canceled order %s", orderID)
	}
	l.lg.Info("order canceled",
		zap.String("order_id", orderID),
		zap.String("from", from))
	if l.notifier != nil {
		l.notifier.OrderCanceled(ctx, o)
	}
	return o, nil
}

// restitutionTerminal holds the statuses whose restitution has either already
// happened (canceled, refunded) or whose debit never committed (failed).
var restitutionTerminal = map[string]struct{}{
	StatusCanceled: {},
	StatusFailed:   {},
	StatusRefunded: {},
}

// Delete removes an order record. Unless the order already sits in a
// restitution-bearing terminal status, its stock is restituted first, so a
// cancel followed by a delete credits stock exactly once in total.
func (l *Lifecycle) Delete(ctx context.Context, orderID string) error {
	release, err := l.guard.Acquire("order:" + orderID)
	if err != nil {
		return err
	}
	defer release()

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if _, terminal := restitutionTerminal[o.Status]; !terminal {
		if err := l.restitute(ctx, o); err != nil {
			return err
		}
	}
	if err := l.orders.Delete(ctx, orderID); err != nil {
		return errors.Wrapf(err, "delete order %s", orderID)
	}
	l.lg.Info("order deleted",
		zap.String("order_id", orderID),
		zap.String("status", o.Status))
	if l.notifier != nil {
		l.notifier.OrderDeleted(ctx, o)
	}
	return nil
}

// SetStatus applies a staff status change through the central transition
// table. Moving to canceled is refused; that path belongs to Cancel, which
// restitutes stock.
func (l *Lifecycle) SetStatus(ctx context.Context, orderID, to string) (*Order, error) {
	release, err := l.guard.Acquire("order:" + orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if to == StatusCanceled && o.Status != StatusCanceled {
		return nil, ErrStatusRequiresCancel
	}
	if err := l.statuses.Validate(o.Status, to); err != nil {
		return nil, err
	}
	from := o.Status
	if from == to {
		return o, nil
	}
	o.Status = to
	if err := l.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "save order %s", orderID)
	}
	if l.notifier != nil {
		l.notifier.OrderStatusChanged(ctx, o, from, to)
	}
	return o, nil
}

// Patch holds staff draft-editor changes. Nil fields are left untouched.
type Patch struct {
	Items          []Item
	ShippingFee    *decimal.Decimal
	Discount       *decimal.Decimal
	ActualExpenses *decimal.Decimal
	Status         string // empty means unchanged
}

// Update applies a staff edit to an order and recomputes its total. Item
// edits do not touch product stock; only checkout, cancel, and delete do.
// A status change rides through the same transition validation as SetStatus.
func (l *Lifecycle) Update(ctx context.Context, orderID string, patch Patch) (*Order, error) {
	release, err := l.guard.Acquire("order:" + orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if patch.Status != "" {
		if patch.Status == StatusCanceled && o.Status != StatusCanceled {
			return nil, ErrStatusRequiresCancel
		}
		if err := l.statuses.Validate(o.Status, patch.Status); err != nil {
			return nil, err
		}
		o.Status = patch.Status
	}
	if patch.Items != nil {
		o.Items = patch.Items
	}
	if patch.ShippingFee != nil {
		o.ShippingFee = *patch.ShippingFee
	}
	if patch.Discount != nil {
		o.Discount = *patch.Discount
	}
	if patch.ActualExpenses != nil {
		o.ActualExpenses = *patch.ActualExpenses
	}
	o.Recalc()

	if err := l.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "save order %s", orderID)
	}
	if l.notifier != nil && patch.Status != "" && patch.Status != from {
		l.notifier.OrderStatusChanged(ctx, o, from, o.Status)
	}
	return o, nil
}

// restitute credits every order line's quantity back to its product (and
// variation, when recorded) and persists each affected product. Products are
// persisted one by one; the first failure aborts with a
// *PartialReplicationError naming what did and did not make it.
func (l *Lifecycle) restitute(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return nil
	}

	// Distinct product ids in first-seen order.
	var ids []string
	seen := make(map[string]struct{}, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.ProductID]; !ok {
			seen[it.ProductID] = struct{}{}
			ids = append(ids, it.ProductID)
		}
	}

	fetched, err := l.products.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrapf(err, "load products for order %s", o.ID)
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	for _, it := range o.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			// Product deleted since checkout: nothing left to credit.
			l.lg.Warn("restitution target missing",
				zap.String("order_id", o.ID),
				zap.String("product_id", it.ProductID))
			continue
		}
		p.Restock(it.Qty, it.Variation)
	}

	var persisted []string
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		if err := l.products.Save(ctx, p); err != nil {
			return &PartialReplicationError{
				OrderID:   o.ID,
				Persisted: persisted,
				FailedID:  id,
				Err:       err,
			}
		}
		persisted = append(persisted, id)
	}
	return nil
}
