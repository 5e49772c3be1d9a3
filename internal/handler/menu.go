package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/delivergo/pricing/internal/domain/catalog"
)

type menuItemJSON struct {
	ID           string  `json:"id"`
	RestaurantID string  `json:"restaurantId"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
	Available    bool    `json:"available"`
}

// ListMenu handles GET /api/menu. An optional ?restaurant= query narrows the
// listing to one restaurant.
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	var (
		items []catalog.Item
		err   error
	)
	if restaurantID := r.URL.Query().Get("restaurant"); restaurantID != "" {
		items, err = h.catalog.ListByRestaurant(r.Context(), restaurantID)
	} else {
		items, err = h.catalog.List(r.Context())
	}
	if err != nil {
		zctx.From(r.Context()).Error("list menu", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]menuItemJSON, len(items))
	for i, it := range items {
		out[i] = menuItemJSON{
			ID:           it.ID,
			RestaurantID: it.RestaurantID,
			Name:         it.Name,
			Price:        money(it.Price),
			Category:     it.Category,
			Available:    it.Available,
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}
