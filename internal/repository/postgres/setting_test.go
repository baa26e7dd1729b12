package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

func newSettingTestFixture(t *testing.T) (*SettingRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewSettingRepository(mock)
	return repo, mock
}

func TestSettingRepository_Get_Success(t *testing.T) {
	repo, mock := newSettingTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT value FROM config WHERE key =").
		WithArgs("ldap_host").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("ldap.corp.example.com"))

	value, err := repo.Get(context.Background(), "ldap_host")
	require.NoError(t, err)
	assert.Equal(t, "ldap.corp.example.com", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepository_Get_NotFound(t *testing.T) {
	repo, mock := newSettingTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT value FROM config WHERE key =").
		WithArgs("unset_key").
		WillReturnError(pgx.ErrNoRows)

	value, err := repo.Get(context.Background(), "unset_key")
	assert.Empty(t, value)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepository_GetByPrefix(t *testing.T) {
	repo, mock := newSettingTestFixture(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"key", "value"}).
		AddRow("ldap_host", "ldap.corp.example.com").
		AddRow("ldap_port", "389").
		AddRow("ldap_use_tls", "true")

	mock.ExpectQuery("SELECT key, value FROM config WHERE key LIKE").
		WithArgs("ldap_").
		WillReturnRows(rows)

	values, err := repo.GetByPrefix(context.Background(), "ldap_")
	require.NoError(t, err)
	assert.Len(t, values, 3)
	assert.Equal(t, "389", values["ldap_port"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepository_GetByPrefix_Empty(t *testing.T) {
	repo, mock := newSettingTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT key, value FROM config WHERE key LIKE").
		WithArgs("missing_").
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}))

	values, err := repo.GetByPrefix(context.Background(), "missing_")
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.NoError(t, mock.ExpectationsWereMet())
}
