// Package schema: safe database initialization. Creates only missing tables and
// columns, never drops or overwrites.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"cityzen/logx"
)

type table struct {
	name string
	ddl  string
}

// tables is in dependency order: a table only references tables above it.
var tables = []table{
	{"categories", `
CREATE TABLE IF NOT EXISTS categories (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    name VARCHAR(100) NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"citizens", `
CREATE TABLE IF NOT EXISTS citizens (
    uid VARCHAR(128) PRIMARY KEY COMMENT 'Identity provider subject',
    name VARCHAR(255) NOT NULL DEFAULT '',
    ward VARCHAR(100) NULL,
    strikes INT NOT NULL DEFAULT 0 COMMENT 'Equals the number of citizen_strikes rows',
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    banned_at TIMESTAMP NULL COMMENT 'Set exactly when is_banned',
    ban_reason TEXT NULL COMMENT 'Set exactly when is_banned',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_banned (is_banned, banned_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"authority_companies", `
CREATE TABLE IF NOT EXISTS authority_companies (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"authority_categories", `
CREATE TABLE IF NOT EXISTS authority_categories (
    authority_id BIGINT NOT NULL,
    category_id BIGINT NOT NULL,
    PRIMARY KEY (authority_id, category_id),
    INDEX idx_category (category_id),
    FOREIGN KEY (authority_id) REFERENCES authority_companies(id) ON DELETE CASCADE,
    FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"service_areas", `
CREATE TABLE IF NOT EXISTS service_areas (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    authority_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL,
    latitude DECIMAL(10, 7) NOT NULL,
    longitude DECIMAL(10, 7) NOT NULL,
    radius_km DECIMAL(8, 3) NOT NULL COMMENT 'Circle radius in kilometres',
    INDEX idx_authority (authority_id),
    FOREIGN KEY (authority_id) REFERENCES authority_companies(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaints", `
CREATE TABLE IF NOT EXISTS complaints (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    citizen_uid VARCHAR(128) NOT NULL COMMENT 'Owner',
    category_id BIGINT NOT NULL,
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    latitude DECIMAL(10, 7) NOT NULL,
    longitude DECIMAL(10, 7) NOT NULL,
    current_status ENUM('pending', 'accepted', 'in_progress', 'resolved', 'rejected', 'appealed', 'completed') NOT NULL DEFAULT 'pending',
    appeal_status ENUM('none', 'pending', 'reviewed', 'approved', 'rejected') NOT NULL DEFAULT 'none',
    pre_appeal_status VARCHAR(20) NULL COMMENT 'Status restored when an appeal is rejected',
    appeal_count INT NOT NULL DEFAULT 0,
    upvotes INT NOT NULL DEFAULT 0,
    rating TINYINT NULL COMMENT '1..5, set on completion',
    status_notes TEXT NULL,
    appeal_reason TEXT NULL,
    admin_remarks TEXT NULL,
    forwarded_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
    last_authority_activity_at TIMESTAMP(6) NULL COMMENT 'Staleness reference',
    last_bumped_at TIMESTAMP(6) NULL COMMENT 'Bump cooldown reference',
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    FOREIGN KEY (citizen_uid) REFERENCES citizens(uid) ON DELETE RESTRICT,
    FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE RESTRICT,
    INDEX idx_citizen_created (citizen_uid, created_at),
    INDEX idx_category_status_location (category_id, current_status, latitude, longitude),
    INDEX idx_status_created (current_status, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaint_images", `
CREATE TABLE IF NOT EXISTS complaint_images (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    image_type ENUM('initial', 'progress', 'resolution', 'appeal') NOT NULL,
    url VARCHAR(1024) NOT NULL,
    fingerprint CHAR(64) NOT NULL COMMENT 'SHA-256 of the image bytes',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_complaint (complaint_id),
    INDEX idx_fingerprint (fingerprint),
    FOREIGN KEY (complaint_id) REFERENCES complaints(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaint_assignments", `
CREATE TABLE IF NOT EXISTS complaint_assignments (
    complaint_id BIGINT NOT NULL,
    authority_id BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (complaint_id, authority_id),
    INDEX idx_authority (authority_id),
    FOREIGN KEY (complaint_id) REFERENCES complaints(id) ON DELETE CASCADE,
    FOREIGN KEY (authority_id) REFERENCES authority_companies(id) ON DELETE RESTRICT
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaint_status_history", `
CREATE TABLE IF NOT EXISTS complaint_status_history (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    old_status VARCHAR(20) NULL COMMENT 'NULL on submission',
    new_status VARCHAR(20) NOT NULL,
    actor_type VARCHAR(20) NOT NULL COMMENT 'citizen, authority, admin or system',
    actor_id VARCHAR(128) NOT NULL,
    reason TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_complaint (complaint_id, id),
    FOREIGN KEY (complaint_id) REFERENCES complaints(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaint_upvotes", `
CREATE TABLE IF NOT EXISTS complaint_upvotes (
    citizen_uid VARCHAR(128) NOT NULL,
    complaint_id BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (complaint_id, citizen_uid),
    FOREIGN KEY (complaint_id) REFERENCES complaints(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaint_reports", `
CREATE TABLE IF NOT EXISTS complaint_reports (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NULL COMMENT 'NULL once the complaint is deleted',
    reported_by VARCHAR(128) NOT NULL,
    reason VARCHAR(64) NOT NULL,
    description TEXT NULL,
    status ENUM('pending', 'reviewed', 'resolved', 'dismissed') NOT NULL DEFAULT 'pending',
    resolved_by VARCHAR(128) NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uq_complaint_reporter (complaint_id, reported_by),
    INDEX idx_status_created (status, created_at),
    FOREIGN KEY (complaint_id) REFERENCES complaints(id) ON DELETE SET NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"citizen_strikes", `
CREATE TABLE IF NOT EXISTS citizen_strikes (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    citizen_uid VARCHAR(128) NOT NULL,
    reason TEXT NOT NULL,
    complaint_id BIGINT NULL COMMENT 'No foreign key: the complaint may be deleted',
    issued_by VARCHAR(128) NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_citizen (citizen_uid, id),
    FOREIGN KEY (citizen_uid) REFERENCES citizens(uid) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"complaint_cell_locks", `
CREATE TABLE IF NOT EXISTS complaint_cell_locks (
    lock_key VARCHAR(64) PRIMARY KEY COMMENT 'category:h3cell guard row for duplicate checks'
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"outbox_events", `
CREATE TABLE IF NOT EXISTS outbox_events (
    id CHAR(36) PRIMARY KEY,
    aggregate_type VARCHAR(50) NOT NULL,
    aggregate_id VARCHAR(128) NOT NULL,
    event_type VARCHAR(100) NOT NULL,
    payload JSON NOT NULL,
    status ENUM('pending', 'sending', 'delivered', 'dead') NOT NULL DEFAULT 'pending',
    attempts INT NOT NULL DEFAULT 0,
    next_retry_at TIMESTAMP NULL,
    locked_at TIMESTAMP NULL,
    last_error TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    published_at TIMESTAMP NULL,
    INDEX idx_status_retry (status, next_retry_at),
    INDEX idx_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
}

// lateColumns were added after the first deployments; older databases get them via ALTER.
var lateColumns = []struct {
	table, column, def string
}{
	{"complaints", "forwarded_by_admin", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"complaints", "last_bumped_at", "TIMESTAMP(6) NULL COMMENT 'Bump cooldown reference'"},
	{"complaints", "pre_appeal_status", "VARCHAR(20) NULL COMMENT 'Status restored when an appeal is rejected'"},
	{"complaint_reports", "resolved_by", "VARCHAR(128) NULL"},
}

// microColumns hold instants compared at microsecond resolution (staleness, bump
// cooldown, rate window). Older databases created them as whole-second TIMESTAMP,
// which rounds and can collapse two authority actions into one instant.
var microColumns = []struct {
	table, column, def string
}{
	{"complaints", "last_authority_activity_at", "TIMESTAMP(6) NULL COMMENT 'Staleness reference'"},
	{"complaints", "last_bumped_at", "TIMESTAMP(6) NULL COMMENT 'Bump cooldown reference'"},
	{"complaints", "created_at", "TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)"},
	{"complaints", "updated_at", "TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)"},
}

// InitializeDatabase ensures every table exists, creating only the missing ones in
// dependency order, then adds any missing late columns and widens whole-second
// timestamps. Never drops or recreates.
func InitializeDatabase(ctx context.Context, db *sql.DB, log logx.Logger) error {
	for _, t := range tables {
		exists, err := tableExists(ctx, db, t.name)
		if err != nil {
			return fmt.Errorf("failed to check if table %s exists: %w", t.name, err)
		}
		if exists {
			log.Debug(ctx, "schema_table_exists", "table exists", slog.String("table", t.name))
			continue
		}
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
		log.Info(ctx, "schema_table_created", "created table", slog.String("table", t.name))
	}
	for _, c := range lateColumns {
		if err := ensureColumn(ctx, db, log, c.table, c.column, c.def); err != nil {
			return err
		}
	}
	for _, c := range microColumns {
		if err := ensureMicroseconds(ctx, db, log, c.table, c.column, c.def); err != nil {
			return err
		}
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
		table,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func ensureColumn(ctx context.Context, db *sql.DB, log logx.Logger, table, column, def string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil {
		return fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}
	// MySQL does not support ADD COLUMN IF NOT EXISTS; we checked above so safe to add
	query := "ALTER TABLE " + table + " ADD COLUMN " + column + " " + def
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	log.Info(ctx, "schema_column_added", "added missing column",
		slog.String("table", table), slog.String("column", column))
	return nil
}

func ensureMicroseconds(ctx context.Context, db *sql.DB, log logx.Logger, table, column, def string) error {
	var precision sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT DATETIME_PRECISION FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table, column,
	).Scan(&precision)
	if err != nil {
		return fmt.Errorf("failed to check precision of %s.%s: %w", table, column, err)
	}
	if precision.Valid && precision.Int64 >= 6 {
		return nil
	}
	query := "ALTER TABLE " + table + " MODIFY COLUMN " + column + " " + def
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to widen %s.%s: %w", table, column, err)
	}
	log.Info(ctx, "schema_column_widened", "timestamp column widened to microseconds",
		slog.String("table", table), slog.String("column", column))
	return nil
}
