package httpapi

import (
	"encoding/csv"
	"net/http"

	"github.com/go-chi/chi/v5"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/order"
)

// handleOrderList returns the caller's orders, newest first. Staff pass
// ?all=1 to list every order.
func (h *Handler) handleOrderList(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var (
		orders []order.Order
		err    error
	)
	if r.URL.Query().Get("all") == "1" {
		orders, err = h.orders.List(r.Context())
	} else {
		orders, err = h.orders.ListByUser(r.Context(), uid)
	}
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, orders)
}

func (h *Handler) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

type orderPatchRequest struct {
	Items          []order.Item     `json:"items,omitempty"`
	ShippingFee    *decimal.Decimal `json:"shipping_fee,omitempty"`
	Discount       *decimal.Decimal `json:"discount,omitempty"`
	ActualExpenses *decimal.Decimal `json:"actual_expenses,omitempty"`
	Status         string           `json:"status,omitempty"`
}

// handleOrderUpdate applies a staff draft edit. Totals are recomputed; stock
// is never touched here.
func (h *Handler) handleOrderUpdate(w http.ResponseWriter, r *http.Request) {
	var req orderPatchRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// A status-only patch is a plain transition, not a draft edit.
	if req.Status != "" && req.Items == nil && req.ShippingFee == nil &&
		req.Discount == nil && req.ActualExpenses == nil {
		o, err := h.lifecycle.SetStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
		if err != nil {
			h.respondDomainError(w, err)
			return
		}
		respond(w, http.StatusOK, o)
		return
	}

	o, err := h.lifecycle.Update(r.Context(), chi.URLParam(r, "orderID"), order.Patch{
		Items:          req.Items,
		ShippingFee:    req.ShippingFee,
		Discount:       req.Discount,
		ActualExpenses: req.ActualExpenses,
		Status:         req.Status,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.lifecycle.Cancel(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) handleOrderDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Delete(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOrderExport streams the full order history as a gzip-compressed CSV.
func (h *Handler) handleOrderExport(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv.gz"`)

	gz := pgzip.NewWriter(w)
	cw := csv.NewWriter(gz)
	if err := order.WriteCSV(cw, orders); err != nil {
		h.lg.Error("order export failed", zap.Error(err))
		return
	}
	cw.Flush()
	if err := gz.Close(); err != nil {
		h.lg.Error("order export close failed", zap.Error(err))
	}
}
