package postgres

import (
	"context"
	"fmt"

	"project/internal/domain/bulkupload"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BulkUploadRepository tracks overflow batches written to object storage
// until the loader hands them to the batch-load pipeline.
type BulkUploadRepository struct {
	pool *pgxpool.Pool
}

func NewBulkUploadRepository(pool *pgxpool.Pool) *BulkUploadRepository {
	return &BulkUploadRepository{pool: pool}
}

func (r *BulkUploadRepository) Create(ctx context.Context, u *bulkupload.Upload) error {
	const sql = `
		INSERT INTO bulk_uploads (id, project, object_key, event_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.pool.Exec(ctx, sql,
		u.ID, u.Project, u.ObjectKey, u.EventCount, u.Status, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bulk upload: %w", err)
	}

	return nil
}

// FetchBatch claims up to limit pending uploads. SKIP LOCKED keeps multiple
// loader instances from claiming the same row.
func (r *BulkUploadRepository) FetchBatch(ctx context.Context, limit int) ([]*bulkupload.Upload, error) {
	const sql = `
		WITH claimed AS (
			SELECT id
			FROM bulk_uploads
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE bulk_uploads
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed)
		RETURNING id, project, object_key, event_count, status, created_at, updated_at
	`

	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query bulk uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*bulkupload.Upload
	for rows.Next() {
		u := &bulkupload.Upload{}
		if err := rows.Scan(&u.ID, &u.Project, &u.ObjectKey, &u.EventCount, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bulk upload: %w", err)
		}
		uploads = append(uploads, u)
	}

	return uploads, nil
}

func (r *BulkUploadRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE bulk_uploads
		SET status = 'processed', updated_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed returns uploads to the queue so a later poll retries them.
func (r *BulkUploadRepository) MarkFailed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE bulk_uploads
		SET status = 'new', updated_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
