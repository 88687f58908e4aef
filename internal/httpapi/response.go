package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/cart"
	"github.com/kvelder/shopcore/internal/checkout"
	"github.com/kvelder/shopcore/internal/flight"
	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/product"
)

// errorResponse is the failure envelope for every endpoint.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, errorResponse{Code: status, Message: msg})
}

// respondDomainError maps the error taxonomy to HTTP statuses: local
// validation rejections to 422, missing records to 404, in-flight and
// lifecycle conflicts to 409. Anything unrecognized is a remote/storage
// failure: logged and surfaced as 500 without internals.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var (
		quotaErr      *cart.QuotaError
		varQuotaErr   *cart.VariationQuotaError
		underflowErr  *cart.UnderflowError
		inFlightErr   *flight.InFlightError
		notCancelable *order.NotCancelableError
		badTransition *order.InvalidTransitionError
		badStatus     *order.UnknownStatusError
		partialErr    *order.PartialReplicationError
	)
	switch {
	case errors.As(err, &quotaErr),
		errors.As(err, &varQuotaErr),
		errors.As(err, &underflowErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &inFlightErr),
		errors.As(err, &notCancelable),
		errors.Is(err, order.ErrStatusRequiresCancel):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &badTransition),
		errors.As(err, &badStatus):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &partialErr):
		h.lg.Error("partial restitution", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.lg.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
