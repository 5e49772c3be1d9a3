package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/delivergo/pricing/internal/domain/promotion"
)

// LineItemRequest is a single requested line of an order. It deliberately
// carries no price: unit prices always come from the catalog, so a tampered
// client payload cannot influence pricing.
type LineItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// PricedLineItem is a line item priced from the catalog. LineTotal is
// UnitPrice times Quantity; instances are built only by ResolveLineItems.
type PricedLineItem struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Order is a fully priced order. Total = Subtotal + DeliveryFee - Discount,
// and is never negative.
type Order struct {
	ID           string
	Number       string
	UserID       string
	RestaurantID string
	Items        []PricedLineItem
	Subtotal     decimal.Decimal
	DeliveryFee  decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	PromotionID  string
	CreatedAt    time.Time
}

// Repository persists finalized orders. When red is non-nil the
// implementation must, within a single atomic unit, increment the promotion's
// usage count only while it is below the usage limit and insert the
// redemption record. A lost usage race yields promotion.ErrExhausted; a
// duplicate (user, promotion) pair yields promotion.ErrAlreadyUsed. In either
// case nothing is persisted, so the caller can reprice without the code.
type Repository interface {
	Create(ctx context.Context, o *Order, red *promotion.Redemption) error
}
