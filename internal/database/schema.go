package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// schema is applied statement by statement since the MySQL driver does not
// run multi-statement strings by default. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		address VARCHAR(255) NOT NULL DEFAULT '',
		base_rate_cents BIGINT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		total_spots INT NOT NULL DEFAULT 0,
		available_spots INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS spots (
		seq BIGINT AUTO_INCREMENT UNIQUE,
		location_id BIGINT NOT NULL,
		spot_id VARCHAR(32) NOT NULL,
		spot_type ENUM('standard','handicap','electric') NOT NULL DEFAULT 'standard',
		rate_cents BIGINT NOT NULL DEFAULT 0,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (location_id, spot_id),
		FOREIGN KEY (location_id) REFERENCES locations(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT PRIMARY KEY,
		user_address CHAR(42) NOT NULL,
		location_id BIGINT NOT NULL,
		spot_id VARCHAR(32) NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		total_cost_cents BIGINT NOT NULL,
		refunded_cents BIGINT NOT NULL DEFAULT 0,
		status ENUM('ACTIVE','COMPLETED','CANCELLED') NOT NULL,
		payment_method VARCHAR(64) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_reservations_user (user_address, id),
		INDEX idx_reservations_spot (location_id, spot_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS wallets (
		address CHAR(42) PRIMARY KEY,
		balance_cents BIGINT NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS treasury (
		id TINYINT PRIMARY KEY,
		balance_cents BIGINT NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS users (
		address CHAR(42) PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) NULL UNIQUE,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role ENUM('CUSTOMER','OWNER') NOT NULL DEFAULT 'CUSTOMER',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_address CHAR(42) NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_refresh_tokens_user (user_address),
		FOREIGN KEY (user_address) REFERENCES users(address)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	logrus.Info("checking database schema")
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
