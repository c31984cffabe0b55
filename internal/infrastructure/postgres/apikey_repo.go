package postgres

import (
	"context"
	"fmt"

	"project/internal/metastore"

	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyRepository implements metastore.Metastore on top of the api_keys
// table owned by the metadata service.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

func (r *APIKeyRepository) CheckPermission(ctx context.Context, project string, keyType metastore.AccessKeyType, apiKey string) (bool, error) {
	const sql = `
		SELECT EXISTS (
			SELECT 1
			FROM api_keys
			WHERE project = $1 AND key_type = $2 AND access_key = $3
		)
	`

	var ok bool
	if err := r.pool.QueryRow(ctx, sql, project, keyType.String(), apiKey).Scan(&ok); err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}

	return ok, nil
}
