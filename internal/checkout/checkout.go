// Package checkout turns a cart into an order proposal and reconciles it
// against the stock arbiter. The coordinator never applies a speculative
// local stock decrement: the arbiter's returned snapshots are ground truth on
// both outcomes, and the local product cache is always overwritten from them.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/cart"
	"github.com/kvelder/shopcore/internal/flight"
	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/product"
)

// ErrEmptyCart rejects a checkout attempt with no line items.
var ErrEmptyCart = errors.New("cart is empty")

// State is the per-attempt checkout state.
type State uint8

const (
	StateDraft State = iota
	StateSubmitting
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the arbiter's discriminated response. On Confirmed, OrderID is
// the authoritative order id and Snapshots hold the post-transaction state of
// every affected product. Otherwise Reason explains the rejection and
// Snapshots hold the authoritative current state, so the caller can repair
// its stale view.
type Result struct {
	Confirmed bool
	OrderID   string
	Reason    string
	Snapshots []product.Product
}

// Arbiter performs the atomic all-or-nothing check-and-decrement for a full
// order proposal. Correctness of the last-unit race rests on the arbiter
// serializing the check-and-decrement per affected product.
type Arbiter interface {
	Commit(ctx context.Context, o *order.Order) (*Result, error)
}

// SnapshotSink receives authoritative product snapshots to overwrite a cached
// view by id.
type SnapshotSink interface {
	PutAll(snapshots []product.Product)
}

// RejectedError is returned when the arbiter declines the proposal because
// authoritative stock was lower than the client believed. Snapshots carry the
// real depletion; the cart is left untouched so quantities can be adjusted.
type RejectedError struct {
	Reason    string
	Snapshots []product.Product
}

func (e *RejectedError) Error() string {
	return "checkout rejected: " + e.Reason
}

// Form holds the delivery details and staff-entered discount for a checkout.
type Form struct {
	Name     string
	Phone    string
	Address  string
	Discount decimal.Decimal
}

// Confirmation is the outcome of a confirmed checkout.
type Confirmation struct {
	Order    *order.Order
	Products []product.Product
}

// Coordinator drives the Draft -> Submitting -> {Confirmed, Rejected} attempt
// state machine. A per-session flight token rejects duplicate submission of
// the same shopper's checkout without serializing unrelated shoppers.
type Coordinator struct {
	arbiter  Arbiter
	cache    SnapshotSink
	flusher  *cart.Flusher
	notifier order.Notifier
	guard    *flight.Guard
	lg       *zap.Logger
}

// NewCoordinator constructs a Coordinator. notifier may be nil.
func NewCoordinator(
	arbiter Arbiter,
	cache SnapshotSink,
	flusher *cart.Flusher,
	notifier order.Notifier,
	lg *zap.Logger,
) *Coordinator {
	return &Coordinator{
		arbiter:  arbiter,
		cache:    cache,
		flusher:  flusher,
		notifier: notifier,
		guard:    flight.NewGuard(),
		lg:       lg,
	}
}

// propose builds the provisional order for the current cart. The items are
// snapshots of each line's cached product data; the provisional id is
// replaced with the arbiter's authoritative one on confirmation.
func propose(c *cart.Cart, form Form) *order.Order {
	lines := c.Lines()
	items := make([]order.Item, len(lines))
	shippingFee := decimal.Zero
	for i, l := range lines {
		items[i] = order.Item{
			ProductID:   l.ProductID,
			Name:        l.Product.Name,
			Price:       l.Product.Price,
			CarryingFee: l.Product.CarryingFee,
			Qty:         l.Qty,
			Variation:   l.Variation,
		}
		if l.Product.ShippingFee.GreaterThan(shippingFee) {
			shippingFee = l.Product.ShippingFee
		}
	}

	o := &order.Order{
		ID:          "draft-" + uuid.New().String(),
		UserID:      c.UserID,
		Items:       items,
		ShippingFee: shippingFee,
		Discount:    form.Discount,
		Status:      order.StatusWaitingPayment,
		CreatedAt:   time.Now().UTC(),
	}
	o.Recalc()
	return o
}

// Submit runs one checkout attempt for the given cart. On confirmation the
// authoritative id replaces the provisional one, the product cache is
// overwritten from the returned snapshots, and the cart is cleared and
// flushed. On rejection the snapshots are still merged but the provisional
// order is discarded and the cart is left untouched; the typed *RejectedError
// carries the reason. Transport failures leave both cart and cache as they
// were.
func (co *Coordinator) Submit(ctx context.Context, c *cart.Cart, form Form) (*Confirmation, error) {
	if c.Len() == 0 {
		return nil, ErrEmptyCart
	}

	release, err := co.guard.Acquire("checkout:" + c.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	provisional := propose(c, form)

	// Draft -> Submitting. The cart and cache stay untouched until the
	// arbiter answers.
	res, err := co.arbiter.Commit(ctx, provisional)
	if err != nil {
		return nil, errors.Wrap(err, "submit checkout")
	}

	if !res.Confirmed {
		// Submitting -> Rejected. Merge authoritative snapshots so the stale
		// view that caused the race becomes visible; keep the cart.
		co.cache.PutAll(res.Snapshots)
		co.lg.Info("checkout rejected",
			zap.Stringer("state", StateRejected),
			zap.String("user_id", c.UserID),
			zap.String("reason", res.Reason))
		return nil, &RejectedError{Reason: res.Reason, Snapshots: res.Snapshots}
	}

	// Submitting -> Confirmed.
	confirmed := provisional
	confirmed.ID = res.OrderID
	co.cache.PutAll(res.Snapshots)

	c.Clear()
	co.flusher.Mark(c.UserID, c.Snapshot())
	co.flusher.Flush(ctx, c.UserID)

	co.lg.Info("checkout confirmed",
		zap.Stringer("state", StateConfirmed),
		zap.String("user_id", c.UserID),
		zap.String("order_id", confirmed.ID))
	if co.notifier != nil {
		co.notifier.OrderConfirmed(ctx, confirmed)
	}
	return &Confirmation{Order: confirmed, Products: res.Snapshots}, nil
}
