package httpapi

import (
	"net/http"

	"github.com/kvelder/shopcore/internal/cart"
)

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Variation string `json:"variation,omitempty"`
}

type updateQtyRequest struct {
	LineKey string `json:"line_key"`
	Delta   int    `json:"delta"`
}

type removeItemRequest struct {
	LineKey string `json:"line_key"`
}

type cartResponse struct {
	Lines []cartLine `json:"lines"`
}

type cartLine struct {
	Key       string `json:"key"`
	ProductID string `json:"product_id"`
	Variation string `json:"variation,omitempty"`
	Qty       int    `json:"qty"`
}

func cartToResponse(c *cart.Cart) cartResponse {
	lines := c.Lines()
	out := cartResponse{Lines: make([]cartLine, len(lines))}
	for i := range lines {
		out.Lines[i] = cartLine{
			Key:       lines[i].Key(),
			ProductID: lines[i].ProductID,
			Variation: lines[i].Variation,
			Qty:       lines[i].Qty,
		}
	}
	return out
}

// handleCartGet returns the caller's current cart.
func (h *Handler) handleCartGet(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	s, err := h.sessionFor(r.Context(), uid)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	s.mu.Lock()
	resp := cartToResponse(s.cart)
	s.mu.Unlock()
	respond(w, http.StatusOK, resp)
}

// handleCartAdd adds one unit of a product/variation to the cart. A quota
// rejection leaves the cart unchanged and does not schedule a flush.
func (h *Handler) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
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
	err = s.cart.AddItem(p, req.Variation)
	var resp cartResponse
	if err == nil {
		h.flusher.Mark(uid, s.cart.Snapshot())
		resp = cartToResponse(s.cart)
	}
	s.mu.Unlock()

	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, resp)
}

// handleCartUpdate adjusts a line's quantity by a delta.
func (h *Handler) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req updateQtyRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	s, err := h.sessionFor(r.Context(), uid)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	s.mu.Lock()
	err = s.cart.UpdateQty(req.LineKey, req.Delta)
	var resp cartResponse
	if err == nil {
		h.flusher.Mark(uid, s.cart.Snapshot())
		resp = cartToResponse(s.cart)
	}
	s.mu.Unlock()

	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, resp)
}

// handleCartRemove deletes a line.
func (h *Handler) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req removeItemRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	s, err := h.sessionFor(r.Context(), uid)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	s.mu.Lock()
	err = s.cart.RemoveItem(req.LineKey)
	var resp cartResponse
	if err == nil {
		h.flusher.Mark(uid, s.cart.Snapshot())
		resp = cartToResponse(s.cart)
	}
	s.mu.Unlock()

	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, resp)
}

// handleCartFlush persists the caller's pending snapshot immediately, e.g.
// before session end.
func (h *Handler) handleCartFlush(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	h.flusher.Flush(r.Context(), uid)
	w.WriteHeader(http.StatusNoContent)
}
