package releases

import (
	"context"
	"fmt"

	"github.com/Cybrite/your-tube/internal/dbx"
	"github.com/Cybrite/your-tube/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, key, reason string) error {
	query :=
		`INSERT INTO pending_media_releases (media_key, last_error)
		 VALUES ($1, $2)
		 ON CONFLICT (media_key) DO UPDATE SET last_error = EXCLUDED.last_error, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, key, reason); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Due(ctx context.Context, limit int) ([]models.PendingRelease, error) {
	query :=
		`SELECT id, media_key, attempts, last_error, created_at
		 FROM pending_media_releases
		 ORDER BY updated_at
		 LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.PendingRelease
	for rows.Next() {
		var p models.PendingRelease
		if err := rows.Scan(&p.ID, &p.Key, &p.Attempts, &p.LastError, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Done(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_media_releases WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Failed(ctx context.Context, id int64, reason string) error {
	query :=
		`UPDATE pending_media_releases
		 SET attempts = attempts + 1, last_error = $2, updated_at = now()
		 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
