package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active key matches the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// ServiceKey identifies an upstream service allowed to call the pricing API.
// Keys are stored as HMAC-SHA256 hashes; the plaintext never touches the
// database.
type ServiceKey struct {
	ID      string
	KeyHash string
	Service string
}

// Repository provides lookup of service keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*ServiceKey, error)
}
