package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-ledger/internal/model"
)

func TestUserRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	email := " Alice@Example.com "
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(string(alice), "Alice", "alice@example.com", "555-0100", "hash", model.RoleCustomer).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepo(db)
	err = repo.Create(context.Background(), model.User{
		Address: "0x00000000000000000000000000000000000000A1", FullName: "Alice",
		Email: &email, Phone: "555-0100", PasswordHash: "hash", Role: model.RoleCustomer,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err = NewUserRepo(db).Create(context.Background(), model.User{Address: string(alice), PasswordHash: "h", Role: model.RoleCustomer})
	assert.ErrorIs(t, err, ErrUserExists)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserRepoGetByAddress(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"address", "full_name", "email", "phone", "password_hash", "role", "is_active", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(selectUser + "WHERE address=?")).
		WithArgs(string(alice)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(string(alice), "Alice", nil, "", "hash", "CUSTOMER", true, ts, ts))
	mock.ExpectQuery(regexp.QuoteMeta(selectUser + "WHERE address=?")).
		WillReturnRows(sqlmock.NewRows(cols))

	repo := NewUserRepo(db)
	u, err := repo.GetByAddress(context.Background(), string(alice))
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.FullName)
	assert.Nil(t, u.Email)
	assert.True(t, u.IsActive)

	_, err = repo.GetByAddress(context.Background(), "0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoValidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"user_address", "expires_at", "revoked_at"}
	q := regexp.QuoteMeta("SELECT user_address, expires_at, revoked_at FROM refresh_tokens")
	future := time.Now().UTC().Add(time.Hour)
	mock.ExpectQuery(q).WithArgs("good").WillReturnRows(sqlmock.NewRows(cols).AddRow(string(alice), future, nil))
	mock.ExpectQuery(q).WithArgs("revoked").WillReturnRows(sqlmock.NewRows(cols).AddRow(string(alice), future, ts))
	mock.ExpectQuery(q).WithArgs("stale").WillReturnRows(sqlmock.NewRows(cols).AddRow(string(alice), ts, nil))
	mock.ExpectQuery(q).WithArgs("missing").WillReturnRows(sqlmock.NewRows(cols))

	repo := NewTokenRepo(db)
	addr, err := repo.ValidateRefresh(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, string(alice), addr)
	for _, h := range []string{"revoked", "stale", "missing"} {
		_, err := repo.ValidateRefresh(context.Background(), h)
		assert.ErrorIs(t, err, ErrTokenInvalid, h)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoRotate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	exp := ts.Add(24 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("old", string(alice)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs(string(alice), "new", exp).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("old", string(alice)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewTokenRepo(db)
	require.NoError(t, repo.Rotate(context.Background(), string(alice), "old", "new", exp))
	err = repo.Rotate(context.Background(), string(alice), "old", "new", exp)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
	assert.NoError(t, mock.ExpectationsWereMet())
}
