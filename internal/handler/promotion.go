package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/delivergo/pricing/internal/domain/promotion"
)

type validatePromotionRequest struct {
	Code         string          `json:"code"`
	OrderAmount  decimal.Decimal `json:"orderAmount"`
	RestaurantID string          `json:"restaurantId"`
}

type validatePromotionResponse struct {
	Valid     bool              `json:"valid"`
	Promotion *appliedPromoJSON `json:"promotion,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// ValidatePromotion handles POST /api/promotions/validate. It is a read-only
// preview: no usage is consumed and no redemption is recorded. The same
// evaluator backs order placement, so a code that validates here prices
// identically at checkout.
func (h *Handler) ValidatePromotion(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req validatePromotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code required")
		return
	}

	result, err := h.promotions.Evaluate(r.Context(), req.Code, promotion.Input{
		Subtotal:     req.OrderAmount,
		DeliveryFee:  h.orders.DeliveryFee(),
		RestaurantID: req.RestaurantID,
		UserID:       uid,
	})
	if err != nil {
		if isPromotionRuleError(err) ||
			errors.Is(err, promotion.ErrExhausted) ||
			errors.Is(err, promotion.ErrAlreadyUsed) {
			writeJSON(w, r, http.StatusBadRequest, validatePromotionResponse{
				Valid:   false,
				Message: err.Error(),
			})
			return
		}
		zctx.From(r.Context()).Error("validate promotion", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, validatePromotionResponse{
		Valid: true,
		Promotion: &appliedPromoJSON{
			ID:          result.PromotionID,
			Code:        result.Code,
			Kind:        string(result.Kind),
			Discount:    money(result.Discount),
			Description: result.Description,
		},
	})
}
