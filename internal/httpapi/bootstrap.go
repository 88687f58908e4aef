package httpapi

import (
	"net/http"

	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/product"
)

type bootstrapResponse struct {
	Products []product.Product `json:"products"`
	Orders   []order.Order     `json:"orders"`
	Cart     cartResponse      `json:"cart"`
	Statuses []string          `json:"statuses"`
}

// handleBootstrap returns one full startup snapshot: the catalog, the
// caller's orders and cart, and the configured status ids. There is no
// incremental refresh protocol; clients reconcile later state from operation
// responses.
func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	products, err := h.products.List(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), uid)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	s, err := h.sessionFor(r.Context(), uid)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	s.mu.Lock()
	cartResp := cartToResponse(s.cart)
	s.mu.Unlock()

	respond(w, http.StatusOK, bootstrapResponse{
		Products: products,
		Orders:   orders,
		Cart:     cartResp,
		Statuses: h.lifecycle.Statuses().IDs(),
	})
}
