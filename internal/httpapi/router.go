package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Router builds the chi router for the API.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(h.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/bootstrap", h.handleBootstrap)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.handleProductList)
			r.Get("/{productID}", h.handleProductGet)
			r.Put("/{productID}", h.handleProductSave)
			r.Delete("/{productID}", h.handleProductDelete)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.handleCartGet)
			r.Post("/items", h.handleCartAdd)
			r.Patch("/items", h.handleCartUpdate)
			r.Delete("/items", h.handleCartRemove)
			r.Post("/flush", h.handleCartFlush)
		})

		r.Post("/checkout", h.handleCheckout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.handleOrderList)
			r.Get("/export", h.handleOrderExport)
			r.Get("/{orderID}", h.handleOrderGet)
			r.Put("/{orderID}", h.handleOrderUpdate)
			r.Post("/{orderID}/cancel", h.handleOrderCancel)
			r.Delete("/{orderID}", h.handleOrderDelete)
		})
	})

	return r
}

// logRequests writes one structured line per request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.lg.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
