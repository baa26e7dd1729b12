package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dstall/fileharbor/internal/domain"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, role, is_active, is_ldap, language, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.FullName,
		u.PasswordHash,
		u.Role,
		u.IsActive,
		u.IsLDAP,
		u.Language,
		u.LastLogin,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "username", u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, username, email, full_name, password_hash, role, is_active, is_ldap, language, last_login, created_at, updated_at
		FROM users
		WHERE id = $1`

	return r.scanUser(ctx, query, id)
}

// GetByUsername retrieves a user by their username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, username, email, full_name, password_hash, role, is_active, is_ldap, language, last_login, created_at, updated_at
		FROM users
		WHERE username = $1`

	return r.scanUser(ctx, query, username)
}

// UpdateRole sets the role of an existing user.
func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`

	ct, err := r.db.Exec(ctx, query, role, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// UpdateLastLogin stamps the user's last successful login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = $1 WHERE id = $2`

	ct, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.IsLDAP,
		&u.Language,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
