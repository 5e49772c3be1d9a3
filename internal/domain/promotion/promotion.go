package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported promotion discount strategies.
type Kind string

const (
	// KindPercentage discounts a percentage of the order subtotal,
	// optionally capped by MaxDiscount.
	KindPercentage Kind = "percentage"
	// KindFixedAmount discounts a fixed amount, capped at the payable total.
	KindFixedAmount Kind = "fixed"
	// KindFreeDelivery discounts exactly the delivery fee.
	KindFreeDelivery Kind = "free_delivery"
)

// Rule evaluation errors, one per rejection reason. Checks run in a fixed
// order, so a code violating several rules always reports the same reason.
var (
	ErrNotFound      = errors.New("promotion not found")
	ErrInactive      = errors.New("promotion is not active")
	ErrExpired       = errors.New("promotion expired")
	ErrExhausted     = errors.New("promotion usage limit reached")
	ErrAlreadyUsed   = errors.New("promotion already used")
	ErrNotApplicable = errors.New("promotion not applicable to this restaurant")
)

// MinimumOrderError indicates the order subtotal is below the promotion's
// minimum. It carries the threshold so callers can show it to the user.
type MinimumOrderError struct {
	MinOrderAmount decimal.Decimal
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("minimum order amount is %s", e.MinOrderAmount)
}

// Promotion defines a discount campaign and its eligibility constraints.
// Codes are canonicalized to uppercase on storage and lookup.
type Promotion struct {
	ID             string
	Code           string
	Description    string
	Kind           Kind
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	// MaxDiscount caps percentage discounts. Zero means no cap.
	MaxDiscount decimal.Decimal
	StartAt     time.Time
	EndAt       time.Time
	UsageLimit  int
	UsageCount  int
	Active      bool
	// RestaurantIDs restricts the promotion to specific restaurants.
	// Empty means the promotion applies everywhere.
	RestaurantIDs []string
}

// AppliesTo reports whether the promotion can be used at the given restaurant.
func (p *Promotion) AppliesTo(restaurantID string) bool {
	if len(p.RestaurantIDs) == 0 {
		return true
	}
	for _, id := range p.RestaurantIDs {
		if id == restaurantID {
			return true
		}
	}
	return false
}

// Redemption records that a user applied a promotion to an order.
// At most one redemption exists per (UserID, PromotionID) pair.
type Redemption struct {
	UserID      string
	PromotionID string
	OrderID     string
	RedeemedAt  time.Time
}

// Store provides promotion lookup and redemption checks. Lookup must not
// filter on Active: the evaluator distinguishes an unknown code from an
// inactive one.
type Store interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	HasRedemption(ctx context.Context, userID, promotionID string) (bool, error)
}
