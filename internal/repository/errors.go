// Package repository holds the MySQL-backed persistence for the ledger,
// user accounts and refresh tokens.
package repository

import "errors"

// ErrConflict is returned when a write cannot proceed because of
// conflicting stored state. Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")
