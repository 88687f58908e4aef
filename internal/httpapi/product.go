package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/product"
)

func (h *Handler) handleProductList(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, products)
}

func (h *Handler) handleProductGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

// handleProductSave upserts a product from a staff edit. A variation whose
// stock exceeds the product total is logged, not rejected: the containment
// relationship is informal and staff edits may legitimately drift it.
func (h *Handler) handleProductSave(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decode(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	p.ID = chi.URLParam(r, "productID")
	if p.Status == "" {
		p.Status = product.StatusAvailable
	}

	if err := p.CheckContainment(); err != nil {
		h.lg.Warn("variation stock exceeds product total", zap.Error(err))
	}

	if err := h.products.Save(r.Context(), &p); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, &p)
}

func (h *Handler) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
