package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/delivergo/pricing/internal/domain/promotion"
)

const (
	getPromotionByCodeSQL = `SELECT id, code, description, kind, value,
		min_order_amount, max_discount, start_at, end_at,
		usage_limit, usage_count, active, applicable_restaurant_ids
		FROM promotions WHERE UPPER(code) = UPPER($1)`

	hasRedemptionSQL = `SELECT EXISTS (
		SELECT 1 FROM promotion_redemptions
		WHERE user_id = $1 AND promotion_id = $2)`
)

var _ promotion.Store = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Store backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up a promotion by its code (case-insensitive). Inactive
// promotions are returned too: the evaluator reports "inactive" distinctly
// from "not found".
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find promotion by code %s", code)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find promotion by code %s", code)
	}
	return &p, nil
}

// HasRedemption reports whether the user has already redeemed the promotion.
func (r *PromotionRepository) HasRedemption(ctx context.Context, userID, promotionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, hasRedemptionSQL, userID, promotionID).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check redemption for user %s promotion %s", userID, promotionID)
	}
	return exists, nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p              promotion.Promotion
		kind           string
		value          decimal.Decimal
		minOrderAmount decimal.Decimal
		maxDiscount    decimal.Decimal
		startAt        time.Time
		endAt          time.Time
		usageLimit     int32
		usageCount     int32
		restaurantIDs  []string
	)
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &kind, &value,
		&minOrderAmount, &maxDiscount, &startAt, &endAt,
		&usageLimit, &usageCount, &p.Active, &restaurantIDs,
	)
	p.Kind = promotion.Kind(kind)
	p.Value = value
	p.MinOrderAmount = minOrderAmount
	p.MaxDiscount = maxDiscount
	p.StartAt = startAt
	p.EndAt = endAt
	p.UsageLimit = int(usageLimit)
	p.UsageCount = int(usageCount)
	p.RestaurantIDs = restaurantIDs
	return p, err
}
