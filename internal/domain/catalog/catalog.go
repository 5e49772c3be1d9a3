package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// Item represents a menu item offered by a restaurant. Prices stored here are
// the only authoritative source for order pricing; client-supplied prices are
// never trusted.
type Item struct {
	ID           string
	RestaurantID string
	Name         string
	Price        decimal.Decimal
	Category     string
	Available    bool
}

// Repository defines read operations for the menu catalog.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
}
