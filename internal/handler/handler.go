// Package handler exposes the pricing service over HTTP. It maps JSON
// requests to domain calls and domain errors to structured error responses;
// no business rules live here.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/delivergo/pricing/internal/domain/catalog"
	"github.com/delivergo/pricing/internal/domain/order"
	"github.com/delivergo/pricing/internal/domain/promotion"
)

// userIDHeader carries the caller identity, validated by the upstream
// gateway before the request reaches this service.
const userIDHeader = "X-User-ID"

// Handler serves the pricing API.
type Handler struct {
	catalog    catalog.Repository
	orders     *order.Service
	promotions *promotion.Evaluator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	catalog catalog.Repository,
	orders *order.Service,
	promotions *promotion.Evaluator,
) *Handler {
	return &Handler{
		catalog:    catalog,
		orders:     orders,
		promotions: promotions,
	}
}

// Routes registers all API routes on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.PlaceOrder)
	r.Post("/promotions/validate", h.ValidatePromotion)
	r.Get("/menu", h.ListMenu)
}

// userID extracts the pre-validated caller identity from the request.
func userID(r *http.Request) string {
	return r.Header.Get(userIDHeader)
}

// money renders a decimal amount as a JSON number.
func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
