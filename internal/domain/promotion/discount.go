package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// computeDiscount calculates the discount amount for a promotion that has
// passed all eligibility checks. The switch is exhaustive over Kind; an
// unknown kind is a data error, not a silent zero discount.
func computeDiscount(p *Promotion, subtotal, deliveryFee decimal.Decimal) (decimal.Decimal, error) {
	switch p.Kind {
	case KindPercentage:
		amount := subtotal.Mul(p.Value).Div(hundred)
		if p.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, p.MaxDiscount)
		}
		return floorAtZero(amount).Round(2), nil

	case KindFixedAmount:
		// A fixed discount can never exceed the payable amount.
		payable := subtotal.Add(deliveryFee)
		return floorAtZero(decimal.Min(p.Value, payable)).Round(2), nil

	case KindFreeDelivery:
		// Exactly the delivery fee, regardless of Value.
		return floorAtZero(deliveryFee).Round(2), nil

	default:
		return decimal.Zero, errors.Errorf("unsupported promotion kind: %q", p.Kind)
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
