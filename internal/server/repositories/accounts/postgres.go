package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/dbx"
	"github.com/Cybrite/your-tube/internal/server/models"
)

const accountColumns = `id, username, email, full_name, password_hash,
		avatar_url, avatar_key, cover_url, cover_key, refresh_token, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var refresh sql.NullString
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FullName, &a.PasswordHash,
		&a.Avatar.URL, &a.Avatar.Key, &a.Cover.URL, &a.Cover.Key,
		&refresh, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.RefreshToken = refresh.String
	return a, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (username, email, full_name, password_hash, avatar_url, avatar_key, cover_url, cover_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		account.Username, account.Email, account.FullName, account.PasswordHash,
		account.Avatar.URL, account.Avatar.Key, account.Cover.URL, account.Cover.Key,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = lower($1)`, username)
}

func (r *PostgresRepository) FindByIdentity(ctx context.Context, username, email string) (*models.Account, error) {
	if username == "" && email == "" {
		return nil, common.ErrorNotFound
	}

	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE ($1 <> '' AND username = lower($1)) OR ($2 <> '' AND email = lower($2))
		 ORDER BY (username = lower($1)) DESC
		 LIMIT 1`

	return r.findOne(ctx, query, username, email)
}

func (r *PostgresRepository) FindOwners(ctx context.Context, ids []string) (map[string]models.OwnerProfile, error) {
	owners := make(map[string]models.OwnerProfile, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}

	query :=
		`SELECT id, username, full_name, avatar_url FROM accounts
		 WHERE id = ANY($1::uuid[])`

	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.OwnerProfile
		if err := rows.Scan(&o.ID, &o.Username, &o.FullName, &o.Avatar); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		owners[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return owners, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	query :=
		`UPDATE accounts SET refresh_token = $2, updated_at = now()
		 WHERE id = $1`

	n, err := r.exec(ctx, query, id, nullIfEmpty(token))
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}

	query :=
		`UPDATE accounts SET refresh_token = $3, updated_at = now()
		 WHERE id = $1 AND refresh_token = $2`

	n, err := r.exec(ctx, query, id, expected, nullIfEmpty(next))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// mediaColumns maps a slot to its column pair. Column names never come from
// caller input.
func mediaColumns(slot models.MediaSlot) (urlCol, keyCol string, err error) {
	switch slot {
	case models.SlotAvatar:
		return "avatar_url", "avatar_key", nil
	case models.SlotCover:
		return "cover_url", "cover_key", nil
	default:
		return "", "", fmt.Errorf("unknown media slot %d", slot)
	}
}

func (r *PostgresRepository) SwapMedia(ctx context.Context, id string, slot models.MediaSlot, expectedKey string, next models.MediaRef) (bool, error) {
	urlCol, keyCol, err := mediaColumns(slot)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(
		`UPDATE accounts SET %[1]s = $3, %[2]s = $4, updated_at = now()
		 WHERE id = $1 AND %[2]s = $2`, urlCol, keyCol)

	n, err := r.exec(ctx, query, id, expectedKey, next.URL, next.Key)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query :=
		`UPDATE accounts SET password_hash = $2, updated_at = now()
		 WHERE id = $1`

	n, err := r.exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error) {
	query :=
		`UPDATE accounts SET full_name = $2, email = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id, fullName, email))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrorNotFound
		case dbx.IsUniqueViolation(err):
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}
