package httpapi

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kvelder/shopcore/internal/checkout"
	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/product"
)

type checkoutRequest struct {
	Name     string          `json:"name"`
	Phone    string          `json:"phone"`
	Address  string          `json:"address"`
	Discount decimal.Decimal `json:"discount"`
}

type checkoutConfirmed struct {
	Order    *order.Order      `json:"order"`
	Products []product.Product `json:"products"`
}

type checkoutRejected struct {
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	Products []product.Product `json:"products"`
}

// handleCheckout submits the caller's cart as one atomic order proposal. A
// stock rejection is a 409 carrying the authoritative snapshots so the
// client can repair its view; the cart is left as it was.
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	s, err := h.sessionFor(r.Context(), uid)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	// Only this shopper's session is locked across the arbiter round trip;
	// other shoppers' carts and checkouts proceed concurrently.
	s.mu.Lock()
	confirmation, err := h.coordinator.Submit(r.Context(), s.cart, checkout.Form{
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Discount: req.Discount,
	})
	s.mu.Unlock()

	if err != nil {
		var rejected *checkout.RejectedError
		if errors.As(err, &rejected) {
			respond(w, http.StatusConflict, checkoutRejected{
				Code:     http.StatusConflict,
				Message:  rejected.Reason,
				Products: rejected.Snapshots,
			})
			return
		}
		h.respondDomainError(w, err)
		return
	}

	respond(w, http.StatusCreated, checkoutConfirmed{
		Order:    confirmation.Order,
		Products: confirmation.Products,
	})
}
