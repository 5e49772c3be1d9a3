package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Input carries the order context a promotion is evaluated against.
type Input struct {
	Subtotal     decimal.Decimal
	DeliveryFee  decimal.Decimal
	RestaurantID string
	UserID       string
}

// Result is a proposed discount. Nothing has been committed yet: usage counts
// and redemption records are only written when the order is finalized.
type Result struct {
	PromotionID string
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	Discount    decimal.Decimal
	Description string
}

// Evaluator validates promotion codes and computes discounts. It is
// read-only: calling Evaluate repeatedly with the same input has no side
// effects, so a pricing request can safely be retried before commit.
type Evaluator struct {
	store Store
	now   func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate checks the code against all promotion rules and returns the
// proposed discount. Checks run in a fixed order; the first failing check
// determines the error, so users see one stable message for multi-violation
// input:
//
//	lookup, active, time window, usage cap, minimum order,
//	per-user reuse, restaurant applicability.
func (e *Evaluator) Evaluate(ctx context.Context, code string, in Input) (*Result, error) {
	canonical := Canonicalize(code)

	p, err := e.store.FindByCode(ctx, canonical)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}

	if !p.Active {
		return nil, ErrInactive
	}

	now := e.now()
	if now.Before(p.StartAt) || now.After(p.EndAt) {
		return nil, ErrExpired
	}

	if p.UsageCount >= p.UsageLimit {
		return nil, ErrExhausted
	}

	if in.Subtotal.LessThan(p.MinOrderAmount) {
		return nil, &MinimumOrderError{MinOrderAmount: p.MinOrderAmount}
	}

	used, err := e.store.HasRedemption(ctx, in.UserID, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "check redemption")
	}
	if used {
		return nil, ErrAlreadyUsed
	}

	if !p.AppliesTo(in.RestaurantID) {
		return nil, ErrNotApplicable
	}

	discount, err := computeDiscount(p, in.Subtotal, in.DeliveryFee)
	if err != nil {
		return nil, err
	}

	return &Result{
		PromotionID: p.ID,
		Code:        p.Code,
		Kind:        p.Kind,
		Value:       p.Value,
		Discount:    discount,
		Description: p.Description,
	}, nil
}

// Canonicalize normalizes a promotion code to its stored form.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
