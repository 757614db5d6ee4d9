package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RequiredColumn defines a required column for a table.
type RequiredColumn struct {
	Table  string
	Column string
}

// DefaultRequiredColumns are the columns the lifecycle, moderation and outbox code
// read and write. If any are missing the server should not start.
var DefaultRequiredColumns = []RequiredColumn{
	{Table: "complaints", Column: "appeal_status"},
	{Table: "complaints", Column: "pre_appeal_status"},
	{Table: "complaints", Column: "appeal_count"},
	{Table: "complaints", Column: "forwarded_by_admin"},
	{Table: "complaints", Column: "last_authority_activity_at"},
	{Table: "complaints", Column: "last_bumped_at"},
	{Table: "complaint_images", Column: "fingerprint"},
	{Table: "complaint_status_history", Column: "actor_type"},
	{Table: "complaint_status_history", Column: "actor_id"},
	{Table: "complaint_status_history", Column: "reason"},
	{Table: "complaint_reports", Column: "resolved_by"},
	{Table: "citizens", Column: "strikes"},
	{Table: "citizens", Column: "banned_at"},
	{Table: "outbox_events", Column: "next_retry_at"},
	{Table: "outbox_events", Column: "locked_at"},
}

// ValidateRequiredColumns checks that all required columns exist and names every missing one.
func ValidateRequiredColumns(ctx context.Context, db *sql.DB, required []RequiredColumn) error {
	if len(required) == 0 {
		required = DefaultRequiredColumns
	}
	var missing []string
	for _, rc := range required {
		exists, err := columnExists(ctx, db, rc.Table, rc.Column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", rc.Table, rc.Column, err)
		}
		if !exists {
			missing = append(missing, rc.Table+"."+rc.Column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns (run migrations to fix): %s", strings.Join(missing, ", "))
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
