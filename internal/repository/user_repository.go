package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/parking-ledger/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var (
	// ErrUserExists is returned when the address or email is already registered.
	ErrUserExists = fmt.Errorf("%w: user already exists", ErrConflict)
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = errors.New("user not found")
)

// isDuplicate reports a MySQL duplicate-key violation (error 1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "1062")
}

// Create inserts a new account. The password must already be hashed.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	var email any
	if u.Email != nil && *u.Email != "" {
		email = strings.ToLower(strings.TrimSpace(*u.Email))
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (address, full_name, email, phone, password_hash, role) VALUES (?,?,?,?,?,?)",
		strings.ToLower(u.Address), u.FullName, email, u.Phone, u.PasswordHash, u.Role)
	if err != nil {
		if isDuplicate(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

const selectUser = "SELECT address, full_name, email, phone, password_hash, role, is_active, created_at, updated_at FROM users "

// GetByAddress fetches a user by wallet address.
func (r *UserRepo) GetByAddress(ctx context.Context, address string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, selectUser+"WHERE address=? LIMIT 1", strings.ToLower(address)))
}

// GetByEmail fetches a user by normalised email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, selectUser+"WHERE email=? LIMIT 1", strings.ToLower(strings.TrimSpace(email))))
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u     model.User
		email sql.NullString
	)
	err := row.Scan(&u.Address, &u.FullName, &email, &u.Phone, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrUserNotFound
	}
	if err != nil {
		return u, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	return u, nil
}
