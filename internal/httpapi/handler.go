// Package httpapi exposes the cart, checkout, and order lifecycle over HTTP.
// Authentication is an external collaborator: callers are identified by the
// X-User-ID header placed by the fronting proxy.
package httpapi

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/cart"
	"github.com/kvelder/shopcore/internal/checkout"
	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/product"
)

const userHeader = "X-User-ID"

// session is one shopper's in-memory cart plus its own lock. Cart mutations
// and checkout hold the session lock only, so a slow remote checkout for one
// shopper never stalls another shopper's requests.
type session struct {
	mu   sync.Mutex
	cart *cart.Cart
}

// Handler serves the API. It owns the in-memory cart sessions; everything
// else is delegated to the injected services and repositories.
type Handler struct {
	products    product.Repository
	orders      order.Repository
	carts       cart.Repository
	flusher     *cart.Flusher
	coordinator *checkout.Coordinator
	lifecycle   *order.Lifecycle
	lg          *zap.Logger

	mu       sync.Mutex // guards the sessions map, never held across I/O
	sessions map[string]*session
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	products product.Repository,
	orders order.Repository,
	carts cart.Repository,
	flusher *cart.Flusher,
	coordinator *checkout.Coordinator,
	lifecycle *order.Lifecycle,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		products:    products,
		orders:      orders,
		carts:       carts,
		flusher:     flusher,
		coordinator: coordinator,
		lifecycle:   lifecycle,
		lg:          lg,
		sessions:    make(map[string]*session),
	}
}

// userID extracts the caller identity, or empty when unauthenticated.
func userID(r *http.Request) string {
	return r.Header.Get(userHeader)
}

// sessionFor returns the caller's cart session, restoring the cart from the
// cart store on first use.
func (h *Handler) sessionFor(ctx context.Context, uid string) (*session, error) {
	h.mu.Lock()
	s, ok := h.sessions[uid]
	h.mu.Unlock()
	if ok {
		return s, nil
	}

	snap, err := h.carts.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	restored, err := cart.Restore(ctx, uid, snap, h.products)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// A concurrent request may have restored the same session already.
	if s, ok := h.sessions[uid]; ok {
		return s, nil
	}
	s = &session{cart: restored}
	h.sessions[uid] = s
	return s, nil
}
