package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstall/fileharbor/internal/domain"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

func newUserTestFixture(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewUserRepository(mock)
	return repo, mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           "u-1234",
		Username:     "alice",
		Email:        "alice@example.com",
		FullName:     "Alice Smith",
		PasswordHash: "hash-abc",
		Role:         domain.RoleUser,
		IsActive:     true,
		IsLDAP:       false,
		Language:     "en",
		LastLogin:    nil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// userColumns returns the 12 column names scanned by scanUser and inserted by Create.
func userColumns() []string {
	return []string{
		"id", "username", "email", "full_name", "password_hash",
		"role", "is_active", "is_ldap", "language",
		"last_login", "created_at", "updated_at",
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns()).AddRow(
		u.ID, u.Username, u.Email, u.FullName, u.PasswordHash,
		u.Role, u.IsActive, u.IsLDAP, u.Language,
		u.LastLogin, u.CreatedAt, u.UpdatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Username, u.Email, u.FullName, u.PasswordHash,
			u.Role, u.IsActive, u.IsLDAP, u.Language,
			u.LastLogin, u.CreatedAt, u.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateUsername(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Username, u.Email, u.FullName, u.PasswordHash,
			u.Role, u.IsActive, u.IsLDAP, u.Language,
			u.LastLogin, u.CreatedAt, u.UpdatedAt,
		).
		WillReturnError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestUserRepository_GetByID_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(u.ID).
		WillReturnRows(userRow(u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, u.Role, got.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-id")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByUsername
// ---------------------------------------------------------------------------

func TestUserRepository_GetByUsername_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE username =").
		WithArgs(u.Username).
		WillReturnRows(userRow(u))

	got, err := repo.GetByUsername(context.Background(), u.Username)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Username, got.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByUsername_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE username =").
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByUsername(context.Background(), "nobody")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// UpdateRole
// ---------------------------------------------------------------------------

func TestUserRepository_UpdateRole_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	// UpdateRole stamps updated_at with time.Now().UTC(), so we use AnyArg for it.
	mock.ExpectExec("UPDATE users SET role =").
		WithArgs(domain.RoleAdmin, pgxmock.AnyArg(), "u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateRole(context.Background(), "u-1234", domain.RoleAdmin)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateRole_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET role =").
		WithArgs(domain.RoleAdmin, pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateRole(context.Background(), "missing-id", domain.RoleAdmin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// UpdateLastLogin
// ---------------------------------------------------------------------------

func TestUserRepository_UpdateLastLogin_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("UPDATE users SET last_login =").
		WithArgs(at, "u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateLastLogin(context.Background(), "u-1234", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateLastLogin_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()

	mock.ExpectExec("UPDATE users SET last_login =").
		WithArgs(at, "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateLastLogin(context.Background(), "missing-id", at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
