package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/delivergo/pricing/internal/domain/order"
	"github.com/delivergo/pricing/internal/domain/promotion"
)

type placeOrderRequest struct {
	RestaurantID  string                  `json:"restaurantId"`
	Items         []order.LineItemRequest `json:"items"`
	PromotionCode string                  `json:"promotionCode,omitempty"`
}

type placeOrderResponse struct {
	ID          string            `json:"id"`
	Number      string            `json:"orderNumber"`
	Items       []lineItemJSON    `json:"items"`
	Subtotal    float64           `json:"subtotal"`
	DeliveryFee float64           `json:"deliveryFee"`
	Discount    float64           `json:"discount"`
	Total       float64           `json:"total"`
	Promotion   *appliedPromoJSON `json:"promotion,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type lineItemJSON struct {
	ItemID    string  `json:"itemId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"lineTotal"`
}

type appliedPromoJSON struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Kind        string  `json:"kind"`
	Discount    float64 `json:"discount"`
	Description string  `json:"description,omitempty"`
}

type quoteJSON struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"deliveryFee"`
	Total       float64 `json:"total"`
}

// promotionLostResponse tells the client the promotion was lost at commit
// time and what the order would cost without it. The order is NOT placed;
// the client must re-confirm.
type promotionLostResponse struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Quote   quoteJSON `json:"quoteWithoutPromotion"`
}

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RestaurantID == "" {
		writeError(w, r, http.StatusBadRequest, "restaurantId required")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:        uid,
		RestaurantID:  req.RestaurantID,
		Items:         req.Items,
		PromotionCode: req.PromotionCode,
	})
	if err != nil {
		h.placeOrderError(w, r, req, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toPlaceOrderResponse(result))
}

// placeOrderError maps pipeline failures to responses. Promotion races lost
// at commit time get a repriced no-promotion quote so the client can
// re-confirm instead of being silently charged more.
func (h *Handler) placeOrderError(w http.ResponseWriter, r *http.Request, req placeOrderRequest, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyOrder):
		writeError(w, r, http.StatusBadRequest, err.Error())

	case isInputError(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, promotion.ErrExhausted), errors.Is(err, promotion.ErrAlreadyUsed):
		// Either the rule check failed up front or the commit race was
		// lost. Both get the fallback quote.
		q, qerr := h.orders.Quote(r.Context(), req.Items)
		if qerr != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, r, http.StatusConflict, promotionLostResponse{
			Code:    http.StatusConflict,
			Message: err.Error(),
			Quote: quoteJSON{
				Subtotal:    money(q.Subtotal),
				DeliveryFee: money(q.DeliveryFee),
				Total:       money(q.Total),
			},
		})

	case isPromotionRuleError(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, order.ErrNegativeTotal):
		// Invariant violation: a defect, not a client error.
		zctx.From(r.Context()).Error("order pricing invariant violated", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")

	default:
		zctx.From(r.Context()).Error("place order", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func isInputError(err error) bool {
	var (
		iqErr *order.InvalidQuantityError
		nfErr *order.ItemNotFoundError
	)
	return errors.As(err, &iqErr) || errors.As(err, &nfErr)
}

func isPromotionRuleError(err error) bool {
	var minErr *promotion.MinimumOrderError
	return errors.Is(err, promotion.ErrNotFound) ||
		errors.Is(err, promotion.ErrInactive) ||
		errors.Is(err, promotion.ErrExpired) ||
		errors.Is(err, promotion.ErrNotApplicable) ||
		errors.As(err, &minErr)
}

func toPlaceOrderResponse(result *order.PlaceOrderResult) placeOrderResponse {
	o := result.Order

	items := make([]lineItemJSON, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemJSON{
			ItemID:    it.ItemID,
			Name:      it.Name,
			UnitPrice: money(it.UnitPrice),
			Quantity:  it.Quantity,
			LineTotal: money(it.LineTotal),
		}
	}

	resp := placeOrderResponse{
		ID:          o.ID,
		Number:      o.Number,
		Items:       items,
		Subtotal:    money(o.Subtotal),
		DeliveryFee: money(o.DeliveryFee),
		Discount:    money(o.Discount),
		Total:       money(o.Total),
		CreatedAt:   o.CreatedAt,
	}
	if p := result.Promotion; p != nil {
		resp.Promotion = &appliedPromoJSON{
			ID:          p.PromotionID,
			Code:        p.Code,
			Kind:        string(p.Kind),
			Discount:    money(p.Discount),
			Description: p.Description,
		}
	}
	return resp
}
