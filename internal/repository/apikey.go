package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/delivergo/pricing/internal/domain/auth"
)

const getServiceKeyByHashSQL = `SELECT id, key_hash, service
	FROM service_keys WHERE key_hash = $1 AND active = TRUE`

var _ auth.Repository = (*ServiceKeyRepository)(nil)

// ServiceKeyRepository provides service key lookups backed by PostgreSQL.
type ServiceKeyRepository struct {
	pool *pgxpool.Pool
}

// NewServiceKeyRepository returns a ServiceKeyRepository that uses the given pool.
func NewServiceKeyRepository(pool *pgxpool.Pool) *ServiceKeyRepository {
	return &ServiceKeyRepository{pool: pool}
}

// FindByHash looks up an active service key by its HMAC-SHA256 hash.
func (r *ServiceKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.ServiceKey, error) {
	var key auth.ServiceKey
	err := r.pool.QueryRow(ctx, getServiceKeyByHashSQL, hash).Scan(
		&key.ID, &key.KeyHash, &key.Service,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "find service key by hash")
	}
	return &key, nil
}
