//go:build integration

// Package integration exercises the pricing core against a real PostgreSQL
// instance, covering the transactional guarantees that unit tests with mock
// repositories cannot: the guarded usage counter and the one-redemption-per-
// user key.
package integration

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/delivergo/pricing/internal/domain/order"
	"github.com/delivergo/pricing/internal/domain/promotion"
	"github.com/delivergo/pricing/internal/repository"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx := context.Background()

	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pricing"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		log.Printf("start postgres container: %v", err)
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			log.Printf("terminate postgres container: %v", err)
		}
	}()

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("connection string: %v", err)
		return 1
	}

	pool, err = repository.NewPool(ctx, dsn)
	if err != nil {
		log.Printf("create pool: %v", err)
		return 1
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Printf("run migrations: %v", err)
		return 1
	}

	return m.Run()
}

func newService(t *testing.T) *order.Service {
	t.Helper()
	menu := repository.NewMenuItemRepository(pool)
	promos := repository.NewPromotionRepository(pool)
	orders := repository.NewOrderRepository(pool)
	return order.NewService(menu, promotion.NewEvaluator(promos), orders, decimal.NewFromInt(15000))
}

func seedMenuItem(t *testing.T, restaurantID string, price int64) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO menu_items (id, restaurant_id, name, price) VALUES ($1, $2, $3, $4)`,
		id, restaurantID, "item "+id[:8], decimal.NewFromInt(price),
	)
	require.NoError(t, err)
	return id
}

func seedPromotion(t *testing.T, code string, kind promotion.Kind, value int64, usageLimit int) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO promotions (
			id, code, description, kind, value, min_order_amount, max_discount,
			start_at, end_at, usage_limit, active
		) VALUES ($1, $2, '', $3, $4, 0, 0, $5, $6, $7, TRUE)`,
		id, code, string(kind), decimal.NewFromInt(value),
		now.Add(-time.Hour), now.Add(24*time.Hour), usageLimit,
	)
	require.NoError(t, err)
	return id
}

func promotionUsage(t *testing.T, promotionID string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(context.Background(),
		`SELECT usage_count FROM promotions WHERE id = $1`, promotionID,
	).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestPlaceOrder_WithPromotion(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	restaurant := uuid.NewString()
	itemID := seedMenuItem(t, restaurant, 100000)
	promoID := seedPromotion(t, "ITWELCOME10", promotion.KindPercentage, 10, 100)

	res, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:        uuid.NewString(),
		RestaurantID:  restaurant,
		Items:         []order.LineItemRequest{{ItemID: itemID, Quantity: 1}},
		PromotionCode: "itwelcome10",
	})
	require.NoError(t, err)

	assert.True(t, res.Order.Subtotal.Equal(decimal.NewFromInt(100000)), "subtotal %s", res.Order.Subtotal)
	assert.True(t, res.Order.Discount.Equal(decimal.NewFromInt(10000)), "discount %s", res.Order.Discount)
	assert.True(t, res.Order.Total.Equal(decimal.NewFromInt(105000)), "total %s", res.Order.Total)

	assert.Equal(t, 1, promotionUsage(t, promoID))

	var redemptions int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM promotion_redemptions WHERE promotion_id = $1`, promoID,
	).Scan(&redemptions)
	require.NoError(t, err)
	assert.Equal(t, 1, redemptions)
}

func TestPlaceOrder_SecondRedemptionRejected(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	restaurant := uuid.NewString()
	itemID := seedMenuItem(t, restaurant, 80000)
	promoID := seedPromotion(t, "ITREPEAT", promotion.KindFixedAmount, 20000, 100)

	userID := uuid.NewString()
	req := order.PlaceOrderRequest{
		UserID:        userID,
		RestaurantID:  restaurant,
		Items:         []order.LineItemRequest{{ItemID: itemID, Quantity: 1}},
		PromotionCode: "ITREPEAT",
	}

	_, err := svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, promotion.ErrAlreadyUsed)

	assert.Equal(t, 1, promotionUsage(t, promoID), "failed redemption must not consume a use")
}

func TestPlaceOrder_LastUseRace(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	restaurant := uuid.NewString()
	itemID := seedMenuItem(t, restaurant, 50000)
	promoID := seedPromotion(t, "ITLASTONE", promotion.KindFreeDelivery, 0, 1)

	const racers = 4
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
				UserID:        uuid.NewString(),
				RestaurantID:  restaurant,
				Items:         []order.LineItemRequest{{ItemID: itemID, Quantity: 1}},
				PromotionCode: "ITLASTONE",
			})
		}()
	}
	wg.Wait()

	var won, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, promotion.ErrExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, won, "exactly one caller wins the last use")
	assert.Equal(t, racers-1, exhausted)
	assert.Equal(t, 1, promotionUsage(t, promoID))
}

func TestPlaceOrder_NoPromotion(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	restaurant := uuid.NewString()
	itemID := seedMenuItem(t, restaurant, 70000)

	res, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:       uuid.NewString(),
		RestaurantID: restaurant,
		Items:        []order.LineItemRequest{{ItemID: itemID, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.True(t, res.Order.Total.Equal(decimal.NewFromInt(155000)), "total %s", res.Order.Total)
	assert.Nil(t, res.Promotion)

	var stored decimal.Decimal
	err = pool.QueryRow(ctx, `SELECT total FROM orders WHERE id = $1`, res.Order.ID).Scan(&stored)
	require.NoError(t, err)
	assert.True(t, stored.Equal(res.Order.Total))
}
