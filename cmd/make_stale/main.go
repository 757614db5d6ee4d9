// make_stale back-dates a complaint's authority activity and clears its bump clock so
// the bump path can be exercised without waiting days.
// Usage: from project root, run: go run ./cmd/make_stale [-id 42] [-days 4]
// Without -id the most recent open complaint is used. Requires .env (or env) with DB_*.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"cityzen/config"
	"cityzen/logx"
	"cityzen/schema"
)

func main() {
	id := flag.Int64("id", 0, "complaint id (default: latest open complaint)")
	days := flag.Int("days", 4, "how many days to back-date authority activity")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.LoadConfig()
	log := logx.New("make_stale", cfg.Log.Env, cfg.Log.Version, cfg.Log.Level)
	ctx := context.Background()

	if err := run(ctx, cfg.Database, log, *id, *days); err != nil {
		log.Error(ctx, "make_stale_failed", "could not back-date complaint", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.DatabaseConfig, log logx.Logger, id int64, days int) error {
	if days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", days)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := schema.ValidateRequiredColumns(ctx, db, nil); err != nil {
		return err
	}
	return backdate(ctx, db, log, id, days, time.Now().UTC())
}

func backdate(ctx context.Context, db *sql.DB, log logx.Logger, id int64, days int, now time.Time) error {
	var status string
	var err error
	if id == 0 {
		err = db.QueryRowContext(ctx, `
			SELECT id, current_status FROM complaints
			WHERE current_status NOT IN ('resolved', 'rejected', 'completed')
			ORDER BY id DESC LIMIT 1`).Scan(&id, &status)
	} else {
		err = db.QueryRowContext(ctx, `SELECT id, current_status FROM complaints WHERE id = ?`, id).Scan(&id, &status)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("no matching complaint")
	}
	if err != nil {
		return fmt.Errorf("find complaint: %w", err)
	}
	switch status {
	case "resolved", "rejected", "completed":
		return fmt.Errorf("complaint %d is %s; only open complaints can be bumped", id, status)
	}

	past := now.Add(-time.Duration(days) * 24 * time.Hour)
	// created_at moves too so a complaint no authority has touched also reads as stale.
	_, err = db.ExecContext(ctx, `
		UPDATE complaints
		SET last_authority_activity_at = ?, last_bumped_at = NULL, created_at = LEAST(created_at, ?)
		WHERE id = ?`, past, past, id)
	if err != nil {
		return fmt.Errorf("update complaint: %w", err)
	}
	log.Info(ctx, "complaint_backdated", "complaint is now stale and eligible for a bump",
		slog.Int64("complaint_id", id),
		slog.String("status", status),
		slog.Time("last_authority_activity_at", past))
	return nil
}
