package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/delivergo/pricing/internal/domain/order"
	"github.com/delivergo/pricing/internal/domain/promotion"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, order_number, user_id, restaurant_id, items,
		 subtotal, delivery_fee, discount, total, promotion_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`

	// Compare-and-increment: the WHERE guard makes the usage cap race-safe
	// without read-modify-write in application code.
	consumePromotionUseSQL = `UPDATE promotions
		SET usage_count = usage_count + 1
		WHERE id = $1 AND usage_count < usage_limit`

	createRedemptionSQL = `INSERT INTO promotion_redemptions
		(user_id, promotion_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4)`
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and, when red is non-nil, consumes one promotion
// use and records the redemption, all in one transaction. Losing the usage
// race rolls everything back and returns promotion.ErrExhausted; a duplicate
// (user, promotion) redemption returns promotion.ErrAlreadyUsed via the
// table's primary key constraint.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, red *promotion.Redemption) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.RestaurantID, itemsJSON,
		o.Subtotal, o.DeliveryFee, o.Discount, o.Total, o.PromotionID, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %s", o.ID)
	}

	if red != nil {
		tag, err := tx.Exec(ctx, consumePromotionUseSQL, red.PromotionID)
		if err != nil {
			return errors.Wrapf(err, "consume use of promotion %s", red.PromotionID)
		}
		if tag.RowsAffected() == 0 {
			return promotion.ErrExhausted
		}

		_, err = tx.Exec(ctx, createRedemptionSQL,
			red.UserID, red.PromotionID, red.OrderID, red.RedeemedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return promotion.ErrAlreadyUsed
			}
			return errors.Wrapf(err, "record redemption of promotion %s", red.PromotionID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrapf(err, "commit order %s", o.ID)
	}
	return nil
}
