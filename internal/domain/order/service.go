package order

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/delivergo/pricing/internal/domain/catalog"
	"github.com/delivergo/pricing/internal/domain/promotion"
)

// Sentinel errors for order validation.
var (
	ErrEmptyOrder    = errors.New("order has no items")
	ErrNegativeTotal = errors.New("computed total is negative")
)

// maxLineQuantity is the sanity ceiling for a single line item.
const maxLineQuantity = 100

// ItemNotFoundError indicates a requested menu item does not exist.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.ItemID)
}

// InvalidQuantityError indicates a line item has a non-positive or
// implausibly large quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for item %s", maxLineQuantity, e.ItemID)
}

// PlaceOrderRequest holds the input for placing an order. UserID and
// RestaurantID are assumed to be validated upstream.
type PlaceOrderRequest struct {
	UserID        string
	RestaurantID  string
	Items         []LineItemRequest
	PromotionCode string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order     *Order
	Promotion *promotion.Result
}

// Quote is a priced order that has not been persisted and carries no
// promotion commitment.
type Quote struct {
	Items       []PricedLineItem
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// Service encapsulates order pricing and placement.
type Service struct {
	catalog     catalog.Repository
	promotions  *promotion.Evaluator
	orders      Repository
	deliveryFee decimal.Decimal
	now         func() time.Time
}

// NewService creates an order Service. deliveryFee is the flat fee charged
// on every order.
func NewService(
	catalog catalog.Repository,
	promotions *promotion.Evaluator,
	orders Repository,
	deliveryFee decimal.Decimal,
) *Service {
	return &Service{
		catalog:     catalog,
		promotions:  promotions,
		orders:      orders,
		deliveryFee: deliveryFee,
		now:         time.Now,
	}
}

// DeliveryFee returns the flat delivery fee applied to every order.
func (s *Service) DeliveryFee() decimal.Decimal {
	return s.deliveryFee
}

// ResolveLineItems prices each requested line against the catalog, preserving
// input order, and returns the priced lines with their subtotal. Prices come
// exclusively from the catalog. Availability is not checked here; rejecting
// unavailable items is the caller's policy.
func (s *Service) ResolveLineItems(ctx context.Context, reqs []LineItemRequest) ([]PricedLineItem, decimal.Decimal, error) {
	if len(reqs) == 0 {
		return nil, decimal.Zero, ErrEmptyOrder
	}

	ids := make([]string, len(reqs))
	for i, req := range reqs {
		if req.Quantity <= 0 || req.Quantity > maxLineQuantity {
			return nil, decimal.Zero, &InvalidQuantityError{ItemID: req.ItemID}
		}
		ids[i] = req.ItemID
	}

	// Single batch lookup for all lines.
	fetched, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get menu items")
	}
	byID := make(map[string]catalog.Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}

	items := make([]PricedLineItem, len(reqs))
	subtotal := decimal.Zero
	for i, req := range reqs {
		it, ok := byID[req.ItemID]
		if !ok {
			return nil, decimal.Zero, &ItemNotFoundError{ItemID: req.ItemID}
		}

		lineTotal := it.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
		items[i] = PricedLineItem{
			ItemID:    it.ID,
			Name:      it.Name,
			UnitPrice: it.Price,
			Quantity:  req.Quantity,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	return items, subtotal, nil
}

// Quote prices the requested items without a promotion and without any side
// effects. Used to reprice an order after a promotion is lost at commit time.
func (s *Service) Quote(ctx context.Context, reqs []LineItemRequest) (*Quote, error) {
	items, subtotal, err := s.ResolveLineItems(ctx, reqs)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Items:       items,
		Subtotal:    subtotal,
		DeliveryFee: s.deliveryFee,
		Total:       subtotal.Add(s.deliveryFee).Round(2),
	}, nil
}

// Finalize computes the final order from priced lines and an optional
// accepted promotion, persists it, and commits the promotion redemption in
// the same atomic unit. promo may be nil.
func (s *Service) Finalize(ctx context.Context, req PlaceOrderRequest, items []PricedLineItem, subtotal decimal.Decimal, promo *promotion.Result) (*Order, error) {
	discount := decimal.Zero
	promotionID := ""
	if promo != nil {
		discount = promo.Discount
		promotionID = promo.PromotionID
	}

	total := subtotal.Add(s.deliveryFee).Sub(discount)
	if total.IsNegative() {
		// Unreachable if discount clamping is correct. Treated as a defect,
		// not silently clamped.
		zctx.From(ctx).Error("negative order total",
			zap.String("subtotal", subtotal.String()),
			zap.String("delivery_fee", s.deliveryFee.String()),
			zap.String("discount", discount.String()),
			zap.String("promotion_id", promotionID),
		)
		return nil, ErrNegativeTotal
	}

	now := s.now()
	o := &Order{
		ID:           uuid.New().String(),
		Number:       newOrderNumber(now),
		UserID:       req.UserID,
		RestaurantID: req.RestaurantID,
		Items:        items,
		Subtotal:     subtotal.Round(2),
		DeliveryFee:  s.deliveryFee.Round(2),
		Discount:     discount.Round(2),
		Total:        total.Round(2),
		PromotionID:  promotionID,
		CreatedAt:    now,
	}

	var red *promotion.Redemption
	if promo != nil {
		red = &promotion.Redemption{
			UserID:      req.UserID,
			PromotionID: promo.PromotionID,
			OrderID:     o.ID,
			RedeemedAt:  now,
		}
	}

	if err := s.orders.Create(ctx, o, red); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// PlaceOrder runs the full pricing pipeline: resolve line items, evaluate the
// optional promotion, and finalize. The first two stages are side-effect
// free; only Finalize writes. A promotion race lost at commit time surfaces
// as promotion.ErrExhausted or promotion.ErrAlreadyUsed, and the caller can
// retry via Quote or PlaceOrder without the code.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	items, subtotal, err := s.ResolveLineItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var promo *promotion.Result
	if req.PromotionCode != "" {
		promo, err = s.promotions.Evaluate(ctx, req.PromotionCode, promotion.Input{
			Subtotal:     subtotal,
			DeliveryFee:  s.deliveryFee,
			RestaurantID: req.RestaurantID,
			UserID:       req.UserID,
		})
		if err != nil {
			return nil, err
		}
	}

	o, err := s.Finalize(ctx, req, items, subtotal, promo)
	if err != nil {
		return nil, err
	}

	return &PlaceOrderResult{Order: o, Promotion: promo}, nil
}

// newOrderNumber generates a human-readable order number.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%d%03d", now.UnixMilli(), rand.Intn(1000))
}
