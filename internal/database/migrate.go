package database

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the full schema as idempotent DDL so a fresh
// database is usable without external tooling. Statements run in order.
// User identity lives in the external identity service that mints the
// JWTs; owner_id and customer_id columns carry its IDs without a local
// users table.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id                  BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		owner_id            BIGINT UNSIGNED NOT NULL,
		kind                VARCHAR(16)     NOT NULL,
		name                VARCHAR(255)    NOT NULL,
		address             VARCHAR(512)    NOT NULL,
		contact_number      VARCHAR(32)     NOT NULL,
		rate_per_hour_cents BIGINT          NOT NULL,
		is_24x7             TINYINT(1)      NOT NULL DEFAULT 0,
		opening_hours       JSON            NULL,
		is_active           TINYINT(1)      NOT NULL DEFAULT 1,
		created_at          DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at          DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_resources_owner (owner_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS resource_zones (
		resource_id BIGINT UNSIGNED NOT NULL,
		zone_code   VARCHAR(3)      NOT NULL,
		capacity    INT UNSIGNED    NOT NULL,
		PRIMARY KEY (resource_id, zone_code),
		CONSTRAINT fk_zones_resource FOREIGN KEY (resource_id) REFERENCES resources (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id                CHAR(36)        NOT NULL,
		resource_id       BIGINT UNSIGNED NOT NULL,
		zone_code         VARCHAR(3)      NOT NULL,
		slot_key          VARCHAR(8)      NOT NULL,
		customer_id       BIGINT UNSIGNED NOT NULL,
		period_from       DATETIME        NOT NULL,
		period_to         DATETIME        NOT NULL,
		base_amount_cents BIGINT          NOT NULL,
		discount_cents    BIGINT          NOT NULL DEFAULT 0,
		amount_due_cents  BIGINT          NOT NULL,
		coupon_code       VARCHAR(64)     NULL,
		vehicle_number    VARCHAR(32)     NULL,
		payment_ref       VARCHAR(128)    NULL,
		paid_at           DATETIME        NULL,
		status            VARCHAR(16)     NOT NULL,
		created_at        DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at        DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_res_slot_period (resource_id, slot_key, period_from, period_to),
		KEY idx_res_customer (customer_id, created_at),
		KEY idx_res_status_created (status, created_at),
		CONSTRAINT fk_reservations_resource FOREIGN KEY (resource_id) REFERENCES resources (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS coupons (
		code             VARCHAR(64)  NOT NULL,
		discount_percent DECIMAL(5,2) NOT NULL,
		is_active        TINYINT(1)   NOT NULL DEFAULT 1,
		created_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema. Every statement is idempotent, so running
// it on startup is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
