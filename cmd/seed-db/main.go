package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/delivergo/pricing/internal/repository"
)

type menuItemJSON struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurantId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	Available    bool            `json:"available"`
}

type promotionJSON struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Description    string          `json:"description"`
	Kind           string          `json:"kind"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	StartAt        time.Time       `json:"startAt"`
	EndAt          time.Time       `json:"endAt"`
	UsageLimit     int             `json:"usageLimit"`
	Active         bool            `json:"active"`
	RestaurantIDs  []string        `json:"restaurantIds"`
}

const upsertMenuItemSQL = `
INSERT INTO menu_items (id, restaurant_id, name, price, category, available)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    restaurant_id = EXCLUDED.restaurant_id,
    name          = EXCLUDED.name,
    price         = EXCLUDED.price,
    category      = EXCLUDED.category,
    available     = EXCLUDED.available`

const upsertPromotionSQL = `
INSERT INTO promotions (
    id, code, description, kind, value, min_order_amount, max_discount,
    start_at, end_at, usage_limit, active, applicable_restaurant_ids
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    code                      = EXCLUDED.code,
    description               = EXCLUDED.description,
    kind                      = EXCLUDED.kind,
    value                     = EXCLUDED.value,
    min_order_amount          = EXCLUDED.min_order_amount,
    max_discount              = EXCLUDED.max_discount,
    start_at                  = EXCLUDED.start_at,
    end_at                    = EXCLUDED.end_at,
    usage_limit               = EXCLUDED.usage_limit,
    active                    = EXCLUDED.active,
    applicable_restaurant_ids = EXCLUDED.applicable_restaurant_ids`

const upsertServiceKeySQL = `
INSERT INTO service_keys (id, key_hash, service, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash,
    service  = EXCLUDED.service,
    active   = TRUE`

func main() {
	var (
		databaseURL    string
		menuFile       string
		promotionsFile string
		apiKey         string
		apiKeyPepper   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu_items.json", "path to menu items JSON file")
	flag.StringVar(&promotionsFile, "promotions-file", "db/seed/promotions.json", "path to promotions JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PRICING_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PRICING_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PRICING_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PRICING_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PRICING_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile, promotionsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile, promotionsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenuItems(ctx, pool, menuFile); err != nil {
		return errors.Wrap(err, "seed menu items")
	}
	if err := seedPromotions(ctx, pool, promotionsFile); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedServiceKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed service key")
	}

	return nil
}

func seedMenuItems(ctx context.Context, pool *pgxpool.Pool, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	var items []menuItemJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("upserting menu items", slog.Int("count", len(items)))

	for _, it := range items {
		if _, err := pool.Exec(ctx, upsertMenuItemSQL,
			it.ID, it.RestaurantID, it.Name, it.Price, it.Category, it.Available,
		); err != nil {
			return errors.Wrapf(err, "upsert menu item %s", it.ID)
		}

		slog.Info("upserted menu item", slog.String("id", it.ID), slog.String("name", it.Name))
	}

	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool, promotionsFile string) error {
	slog.Info("reading promotions file", slog.String("path", promotionsFile))

	data, err := os.ReadFile(promotionsFile)
	if err != nil {
		return errors.Wrap(err, "read promotions file")
	}

	var promos []promotionJSON
	if err := json.Unmarshal(data, &promos); err != nil {
		return errors.Wrap(err, "parse promotions JSON")
	}

	slog.Info("upserting promotions", slog.Int("count", len(promos)))

	for _, p := range promos {
		restaurantIDs := p.RestaurantIDs
		if restaurantIDs == nil {
			restaurantIDs = []string{}
		}
		if _, err := pool.Exec(ctx, upsertPromotionSQL,
			p.ID, p.Code, p.Description, p.Kind, p.Value, p.MinOrderAmount,
			p.MaxDiscount, p.StartAt, p.EndAt, p.UsageLimit, p.Active, restaurantIDs,
		); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.Code)
		}

		slog.Info("upserted promotion", slog.String("code", p.Code), slog.String("kind", p.Kind))
	}

	return nil
}

func seedServiceKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default service key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertServiceKeySQL, "default", keyHash, "gateway"); err != nil {
		return errors.Wrap(err, "upsert default service key")
	}

	slog.Info("upserted service key", slog.String("id", "default"), slog.String("service", "gateway"))

	return nil
}
