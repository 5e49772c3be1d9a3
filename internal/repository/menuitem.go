package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/delivergo/pricing/internal/domain/catalog"
)

const (
	listMenuItemsSQL = `SELECT id, restaurant_id, name, price, category, available
		FROM menu_items ORDER BY id`

	listMenuItemsByRestaurantSQL = `SELECT id, restaurant_id, name, price, category, available
		FROM menu_items WHERE restaurant_id = $1 ORDER BY id`

	getMenuItemByIDSQL = `SELECT id, restaurant_id, name, price, category, available
		FROM menu_items WHERE id = $1`

	getMenuItemsByIDsSQL = `SELECT id, restaurant_id, name, price, category, available
		FROM menu_items WHERE id = ANY($1)`
)

var _ catalog.Repository = (*MenuItemRepository)(nil)

// MenuItemRepository implements catalog.Repository backed by PostgreSQL.
type MenuItemRepository struct {
	pool *pgxpool.Pool
}

// NewMenuItemRepository returns a MenuItemRepository that uses the given pool.
func NewMenuItemRepository(pool *pgxpool.Pool) *MenuItemRepository {
	return &MenuItemRepository{pool: pool}
}

// List returns all menu items ordered by ID.
func (r *MenuItemRepository) List(ctx context.Context) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list menu items")
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// ListByRestaurant returns a single restaurant's menu ordered by ID.
func (r *MenuItemRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsByRestaurantSQL, restaurantID)
	if err != nil {
		return nil, errors.Wrapf(err, "list menu for restaurant %s", restaurantID)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// GetByID returns a single menu item by its identifier.
func (r *MenuItemRepository) GetByID(ctx context.Context, id string) (*catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get menu item %s", id)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get menu item %s", id)
	}
	return &it, nil
}

// GetByIDs returns menu items matching any of the given IDs.
func (r *MenuItemRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get menu items by ids")
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

func scanMenuItem(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		it    catalog.Item
		price decimal.Decimal
	)
	err := row.Scan(&it.ID, &it.RestaurantID, &it.Name, &price, &it.Category, &it.Available)
	it.Price = price
	return it, err
}
