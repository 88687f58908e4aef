package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/flight"
	"github.com/kvelder/shopcore/internal/product"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders map[string]*Order
}

var _ Repository = (*mockOrderRepo)(nil)

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{orders: make(map[string]*Order)}
	for _, o := range orders {
		cp := *o
		m.orders[o.ID] = &cp
	}
	return m
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) Save(_ context.Context, o *Order) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

type mockProductRepo struct {
	products   map[string]*product.Product
	failSaveID string
	saveCount  int
}

var _ product.Repository = (*mockProductRepo)(nil)

func newMockProductRepo(products ...*product.Product) *mockProductRepo {
	m := &mockProductRepo{products: make(map[string]*product.Product)}
	for _, p := range products {
		m.products[p.ID] = p.Clone()
	}
	return m
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.products {
		out = append(out, *p.Clone())
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p.Clone())
		}
	}
	return out, nil
}

func (m *mockProductRepo) Save(_ context.Context, p *product.Product) error {
	if p.ID == m.failSaveID {
		return errors.New("connection reset")
	}
	m.saveCount++
	m.products[p.ID] = p.Clone()
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id string) error {
	delete(m.products, id)
	return nil
}

type recordingNotifier struct {
	canceled []string
	deleted  []string
	changed  []string
}

var _ Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) OrderConfirmed(_ context.Context, o *Order) {}

func (n *recordingNotifier) OrderCanceled(_ context.Context, o *Order) {
	n.canceled = append(n.canceled, o.ID)
}

func (n *recordingNotifier) OrderDeleted(_ context.Context, o *Order) {
	n.deleted = append(n.deleted, o.ID)
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, o *Order, from, to string) {
	n.changed = append(n.changed, from+">"+to)
}

// --- Helpers ---

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testProduct(id string, stock int, variations ...product.Variation) *product.Product {
	status := product.StatusAvailable
	if stock <= 0 {
		status = product.StatusSoldOut
	}
	return &product.Product{
		ID:          id,
		Name:        "Product " + id,
		Price:       money("10.00"),
		CarryingFee: money("1.50"),
		ShippingFee: money("4.00"),
		Stock:       stock,
		Status:      status,
		Variations:  variations,
	}
}

func testOrder(id, status string, items ...Item) *Order {
	o := &Order{
		ID:          id,
		UserID:      "u1",
		Items:       items,
		ShippingFee: money("4.00"),
		Status:      status,
	}
	o.Recalc()
	return o
}

func newTestLifecycle(orders *mockOrderRepo, products *mockProductRepo, n Notifier) *Lifecycle {
	return NewLifecycle(orders, products, DefaultStatusSet(), n, zap.NewNop())
}

// --- Tests ---

func TestTotal(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Price: money("10.00"), CarryingFee: money("1.50"), Qty: 2},
		{ProductID: "p2", Price: money("3.25"), CarryingFee: money("0.00"), Qty: 1},
	}
	got := Total(items, money("4.00"), money("2.00"))
	assert.True(t, got.Equal(money("28.25")), "got %s", got)
}

func TestCancel_RestitutesStockAndFlipsSoldOut(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 0))
	orders := newMockOrderRepo(testOrder("SO-000001", StatusPaid,
		Item{ProductID: "p1", Name: "Product p1", Price: money("10.00"), Qty: 2}))
	notifier := &recordingNotifier{}
	lc := newTestLifecycle(orders, products, notifier)

	o, err := lc.Cancel(context.Background(), "SO-000001")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, o.Status)

	p, err := products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
	assert.Equal(t, product.StatusAvailable, p.Status)

	saved, err := orders.GetByID(context.Background(), "SO-000001")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, saved.Status)
	assert.Equal(t, []string{"SO-000001"}, notifier.canceled)
}

func TestCancel_CreditsVariationStock(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 3,
		product.Variation{Name: "S", Stock: 0}))
	orders := newMockOrderRepo(testOrder("SO-000002", StatusWaitingPayment,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 2, Variation: "S"}))
	lc := newTestLifecycle(orders, products, nil)

	_, err := lc.Cancel(context.Background(), "SO-000002")
	require.NoError(t, err)

	p, err := products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	require.NotNil(t, p.Variation("S"))
	assert.Equal(t, 2, p.Variation("S").Stock)
}

func TestCancel_RejectedOutsideEligibleStatuses(t *testing.T) {
	for _, status := range []string{"sourcing", "delivered", StatusCanceled, StatusRefunded} {
		t.Run(status, func(t *testing.T) {
			products := newMockProductRepo(testProduct("p1", 0))
			orders := newMockOrderRepo(testOrder("SO-000003", status,
				Item{ProductID: "p1", Price: money("10.00"), Qty: 1}))
			lc := newTestLifecycle(orders, products, nil)

			_, err := lc.Cancel(context.Background(), "SO-000003")
			var notCancelable *NotCancelableError
			require.ErrorAs(t, err, &notCancelable)
			assert.Equal(t, status, notCancelable.Status)

			p, _ := products.GetByID(context.Background(), "p1")
			assert.Equal(t, 0, p.Stock)
		})
	}
}

func TestCancel_UnknownOrder(t *testing.T) {
	lc := newTestLifecycle(newMockOrderRepo(), newMockProductRepo(), nil)
	_, err := lc.Cancel(context.Background(), "SO-999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelThenDelete_RestitutesExactlyOnce(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 0))
	orders := newMockOrderRepo(testOrder("SO-000004", StatusPaid,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 3}))
	lc := newTestLifecycle(orders, products, nil)

	_, err := lc.Cancel(context.Background(), "SO-000004")
	require.NoError(t, err)
	require.NoError(t, lc.Delete(context.Background(), "SO-000004"))

	p, err := products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	_, err = orders.GetByID(context.Background(), "SO-000004")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_ActiveOrderRestitutes(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 1))
	orders := newMockOrderRepo(testOrder("SO-000005", StatusWaitingPayment,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 2}))
	notifier := &recordingNotifier{}
	lc := newTestLifecycle(orders, products, notifier)

	require.NoError(t, lc.Delete(context.Background(), "SO-000005"))

	p, _ := products.GetByID(context.Background(), "p1")
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, []string{"SO-000005"}, notifier.deleted)
}

func TestDelete_TerminalStatusesLeaveStockAlone(t *testing.T) {
	for _, status := range []string{StatusCanceled, StatusFailed, StatusRefunded} {
		t.Run(status, func(t *testing.T) {
			products := newMockProductRepo(testProduct("p1", 7))
			orders := newMockOrderRepo(testOrder("SO-000006", status,
				Item{ProductID: "p1", Price: money("10.00"), Qty: 2}))
			lc := newTestLifecycle(orders, products, nil)

			require.NoError(t, lc.Delete(context.Background(), "SO-000006"))

			p, _ := products.GetByID(context.Background(), "p1")
			assert.Equal(t, 7, p.Stock)
		})
	}
}

func TestDelete_MidFlightOrderStillRestitutes(t *testing.T) {
	// "sourcing" is past the cancelable window but its debit is still live,
	// so deletion must give the stock back.
	products := newMockProductRepo(testProduct("p1", 0))
	orders := newMockOrderRepo(testOrder("SO-000007", "sourcing",
		Item{ProductID: "p1", Price: money("10.00"), Qty: 1}))
	lc := newTestLifecycle(orders, products, nil)

	require.NoError(t, lc.Delete(context.Background(), "SO-000007"))

	p, _ := products.GetByID(context.Background(), "p1")
	assert.Equal(t, 1, p.Stock)
}

func TestCancel_PartialPersistFailureSurfaced(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 0), testProduct("p2", 0))
	products.failSaveID = "p2"
	orders := newMockOrderRepo(testOrder("SO-000008", StatusPaid,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 1},
		Item{ProductID: "p2", Price: money("10.00"), Qty: 1}))
	lc := newTestLifecycle(orders, products, nil)

	_, err := lc.Cancel(context.Background(), "SO-000008")
	var partial *PartialReplicationError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "SO-000008", partial.OrderID)
	assert.Equal(t, []string{"p1"}, partial.Persisted)
	assert.Equal(t, "p2", partial.FailedID)

	// The order stays in its pre-cancel status.
	o, _ := orders.GetByID(context.Background(), "SO-000008")
	assert.Equal(t, StatusPaid, o.Status)
}

func TestCancel_MissingProductSkipped(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 0))
	orders := newMockOrderRepo(testOrder("SO-000009", StatusPaid,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 1},
		Item{ProductID: "gone", Price: money("5.00"), Qty: 4}))
	lc := newTestLifecycle(orders, products, nil)

	o, err := lc.Cancel(context.Background(), "SO-000009")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, o.Status)

	p, _ := products.GetByID(context.Background(), "p1")
	assert.Equal(t, 1, p.Stock)
}

// gateOrderRepo blocks GetByID until released, to keep one lifecycle
// operation in flight for as long as a test needs.
type gateOrderRepo struct {
	*mockOrderRepo
	enter   chan struct{}
	release chan struct{}
}

func (r *gateOrderRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	r.enter <- struct{}{}
	<-r.release
	return r.mockOrderRepo.GetByID(ctx, id)
}

func TestSetStatus_SharesOrderFlightToken(t *testing.T) {
	base := newMockOrderRepo(testOrder("SO-000014", StatusPaid,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 1}))
	repo := &gateOrderRepo{
		mockOrderRepo: base,
		enter:         make(chan struct{}),
		release:       make(chan struct{}),
	}
	products := newMockProductRepo(testProduct("p1", 0))
	lc := NewLifecycle(repo, products, DefaultStatusSet(), nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := lc.Cancel(context.Background(), "SO-000014")
		done <- err
	}()
	<-repo.enter

	// The status change targets the same order as the in-flight cancel.
	_, err := lc.SetStatus(context.Background(), "SO-000014", "sourcing")
	var inFlight *flight.InFlightError
	require.ErrorAs(t, err, &inFlight)
	assert.Equal(t, "order:SO-000014", inFlight.Key)

	close(repo.release)
	require.NoError(t, <-done)
}

func TestDirectCancelStatusRejected(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 0))
	orders := newMockOrderRepo(testOrder("SO-000015", StatusWaitingPayment,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 2}))
	lc := newTestLifecycle(orders, products, nil)

	// Writing canceled through the edit paths would skip restitution.
	_, err := lc.Update(context.Background(), "SO-000015", Patch{Status: StatusCanceled})
	require.ErrorIs(t, err, ErrStatusRequiresCancel)
	_, err = lc.SetStatus(context.Background(), "SO-000015", StatusCanceled)
	require.ErrorIs(t, err, ErrStatusRequiresCancel)

	o, err := orders.GetByID(context.Background(), "SO-000015")
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingPayment, o.Status)
	p, _ := products.GetByID(context.Background(), "p1")
	assert.Equal(t, 0, p.Stock)

	// The cancel operation remains the one path and still restitutes.
	o, err = lc.Cancel(context.Background(), "SO-000015")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, o.Status)
	p, _ = products.GetByID(context.Background(), "p1")
	assert.Equal(t, 2, p.Stock)
}

func TestSetStatus_ValidatedCentrally(t *testing.T) {
	orders := newMockOrderRepo(testOrder("SO-000010", StatusWaitingPayment))
	notifier := &recordingNotifier{}
	lc := newTestLifecycle(orders, newMockProductRepo(), notifier)

	o, err := lc.SetStatus(context.Background(), "SO-000010", StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, []string{"waiting_payment>paid"}, notifier.changed)

	_, err = lc.SetStatus(context.Background(), "SO-000010", "delivered")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestUpdate_RecomputesTotalWithoutTouchingStock(t *testing.T) {
	products := newMockProductRepo(testProduct("p1", 5))
	orders := newMockOrderRepo(testOrder("SO-000011", StatusWaitingPayment,
		Item{ProductID: "p1", Price: money("10.00"), CarryingFee: money("1.50"), Qty: 2}))
	lc := newTestLifecycle(orders, products, nil)

	discount := money("3.00")
	o, err := lc.Update(context.Background(), "SO-000011", Patch{
		Items: []Item{
			{ProductID: "p1", Price: money("10.00"), CarryingFee: money("1.50"), Qty: 5},
		},
		Discount: &discount,
	})
	require.NoError(t, err)

	// 5·10.00 + 5·1.50 + 4.00 − 3.00
	assert.True(t, o.Total.Equal(money("58.50")), "got %s", o.Total)

	p, _ := products.GetByID(context.Background(), "p1")
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 0, products.saveCount)
}

func TestUpdate_StatusChangeRidesTransitionTable(t *testing.T) {
	orders := newMockOrderRepo(testOrder("SO-000012", StatusWaitingPayment))
	lc := newTestLifecycle(orders, newMockProductRepo(), nil)

	_, err := lc.Update(context.Background(), "SO-000012", Patch{Status: "delivered"})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	o, err := lc.Update(context.Background(), "SO-000012", Patch{Status: StatusPaid})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
}

func TestUpdate_NilFieldsLeftUntouched(t *testing.T) {
	base := testOrder("SO-000013", StatusWaitingPayment,
		Item{ProductID: "p1", Price: money("10.00"), Qty: 1})
	base.Discount = money("1.00")
	base.Recalc()
	orders := newMockOrderRepo(base)
	lc := newTestLifecycle(orders, newMockProductRepo(), nil)

	fee := money("9.00")
	o, err := lc.Update(context.Background(), "SO-000013", Patch{ShippingFee: &fee})
	require.NoError(t, err)
	assert.True(t, o.ShippingFee.Equal(money("9.00")))
	assert.True(t, o.Discount.Equal(money("1.00")))
	assert.Len(t, o.Items, 1)
}
