package model

import "time"

// User is an account row in the `users` table. Accounts are keyed by the
// wallet address that signs ledger operations; the password only guards
// token issuance.
//
// Fields:
//
//	Address      – lower-case wallet address, primary key.
//	FullName     – display name given at registration.
//	Email        – optional unique contact address (nil when not given).
//	Phone        – optional contact number.
//	PasswordHash – bcrypt hashed password.
//	Role         – OWNER for the ledger owner, CUSTOMER otherwise.
//	IsActive     – whether the account may log in.
type User struct {
	Address      string
	FullName     string
	Email        *string
	Phone        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Roles stored in users.role and in the JWT role claim.
const (
	RoleOwner    = "OWNER"
	RoleCustomer = "CUSTOMER"
)

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID          uint64
	UserAddress string
	TokenHash   string
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}
