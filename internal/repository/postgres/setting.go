package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// SettingRepository implements repository.SettingRepository using PostgreSQL.
type SettingRepository struct {
	db DB
}

// NewSettingRepository creates a new PostgreSQL-backed setting repository.
func NewSettingRepository(db DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the value stored under the exact key.
func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM config WHERE key = $1`

	var value string
	err := r.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("scan config value: %w", err)
	}

	return value, nil
}

// GetByPrefix returns all key/value pairs whose key starts with prefix.
func (r *SettingRepository) GetByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	query := `SELECT key, value FROM config WHERE key LIKE $1 || '%'`

	rows, err := r.db.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("query config by prefix: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		values[k] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config rows: %w", err)
	}

	return values, nil
}
