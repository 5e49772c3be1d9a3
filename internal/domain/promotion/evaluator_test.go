package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	promo          *Promotion
	findErr        error
	redeemed       bool
	redemptionErr  error
	findCalls      int
	redemptionReqs [][2]string
}

func (m *mockStore) FindByCode(_ context.Context, _ string) (*Promotion, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.promo, nil
}

func (m *mockStore) HasRedemption(_ context.Context, userID, promotionID string) (bool, error) {
	m.redemptionReqs = append(m.redemptionReqs, [2]string{userID, promotionID})
	return m.redeemed, m.redemptionErr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testPromotion(mutate ...func(*Promotion)) *Promotion {
	p := &Promotion{
		ID:             "promo-1",
		Code:           "WELCOME10",
		Description:    "10% off your first order",
		Kind:           KindPercentage,
		Value:          decimal.NewFromInt(10),
		MinOrderAmount: decimal.NewFromInt(50000),
		MaxDiscount:    decimal.NewFromInt(50000),
		StartAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndAt:          time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		UsageLimit:     100,
		UsageCount:     0,
		Active:         true,
	}
	for _, fn := range mutate {
		fn(p)
	}
	return p
}

func TestEvaluate_CheckOrder(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	input := Input{
		Subtotal:     decimal.NewFromInt(100000),
		DeliveryFee:  decimal.NewFromInt(15000),
		RestaurantID: "rest-1",
		UserID:       "user-1",
	}

	tests := []struct {
		name    string
		store   *mockStore
		input   Input
		wantErr error
	}{
		{
			name:    "unknown code",
			store:   &mockStore{findErr: ErrNotFound},
			input:   input,
			wantErr: ErrNotFound,
		},
		{
			name: "inactive",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.Active = false
			})},
			input:   input,
			wantErr: ErrInactive,
		},
		{
			name: "not yet started",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.StartAt = now.Add(24 * time.Hour)
			})},
			input:   input,
			wantErr: ErrExpired,
		},
		{
			name: "already ended",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.EndAt = now.Add(-24 * time.Hour)
			})},
			input:   input,
			wantErr: ErrExpired,
		},
		{
			name: "usage limit reached",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.UsageLimit = 100
				p.UsageCount = 100
			})},
			input:   input,
			wantErr: ErrExhausted,
		},
		{
			name:  "already used by this user",
			store: &mockStore{promo: testPromotion(), redeemed: true},
			input: input,
			// ErrAlreadyUsed is checked after the minimum-order threshold.
			wantErr: ErrAlreadyUsed,
		},
		{
			name: "restricted to another restaurant",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.RestaurantIDs = []string{"rest-2", "rest-3"}
			})},
			input:   input,
			wantErr: ErrNotApplicable,
		},
		{
			name: "restricted list including the restaurant passes",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.RestaurantIDs = []string{"rest-1", "rest-2"}
			})},
			input: input,
		},
		{
			name: "inactive wins over expired: first failing check reports",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.Active = false
				p.EndAt = now.Add(-24 * time.Hour)
				p.UsageCount = p.UsageLimit
			})},
			input:   input,
			wantErr: ErrInactive,
		},
		{
			name: "exhausted wins over minimum order",
			store: &mockStore{promo: testPromotion(func(p *Promotion) {
				p.UsageCount = p.UsageLimit
				p.MinOrderAmount = decimal.NewFromInt(1000000)
			})},
			input:   input,
			wantErr: ErrExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(tt.store)
			e.now = fixedClock(now)

			got, err := e.Evaluate(context.Background(), "WELCOME10", tt.input)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
		})
	}
}

func TestEvaluate_MinimumOrderNotMet(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &mockStore{promo: testPromotion()}

	e := NewEvaluator(store)
	e.now = fixedClock(now)

	_, err := e.Evaluate(context.Background(), "WELCOME10", Input{
		Subtotal:     decimal.NewFromInt(40000),
		DeliveryFee:  decimal.NewFromInt(15000),
		RestaurantID: "rest-1",
		UserID:       "user-1",
	})

	var minErr *MinimumOrderError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, decimal.NewFromInt(50000).Equal(minErr.MinOrderAmount))
}

func TestEvaluate_CanonicalizesCode(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &mockStore{promo: testPromotion()}

	e := NewEvaluator(store)
	e.now = fixedClock(now)

	got, err := e.Evaluate(context.Background(), "  welcome10 ", Input{
		Subtotal:     decimal.NewFromInt(100000),
		DeliveryFee:  decimal.NewFromInt(15000),
		RestaurantID: "rest-1",
		UserID:       "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", got.Code)
}

func TestEvaluate_WelcomeScenario(t *testing.T) {
	// Subtotal 100000, fee 15000, 10% with 50000 cap -> discount 10000.
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &mockStore{promo: testPromotion()}

	e := NewEvaluator(store)
	e.now = fixedClock(now)

	got, err := e.Evaluate(context.Background(), "WELCOME10", Input{
		Subtotal:     decimal.NewFromInt(100000),
		DeliveryFee:  decimal.NewFromInt(15000),
		RestaurantID: "rest-1",
		UserID:       "user-1",
	})

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10000).Equal(got.Discount),
		"expected discount 10000, got %s", got.Discount)
	assert.Equal(t, "promo-1", got.PromotionID)
}

func TestEvaluate_IsReadOnly(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &mockStore{promo: testPromotion()}

	e := NewEvaluator(store)
	e.now = fixedClock(now)

	in := Input{
		Subtotal:     decimal.NewFromInt(100000),
		DeliveryFee:  decimal.NewFromInt(15000),
		RestaurantID: "rest-1",
		UserID:       "user-1",
	}

	first, err := e.Evaluate(context.Background(), "WELCOME10", in)
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), "WELCOME10", in)
	require.NoError(t, err)

	// Identical inputs, identical results, no mutation between calls.
	assert.True(t, first.Discount.Equal(second.Discount))
	assert.Equal(t, 0, store.promo.UsageCount)
}
