package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"cityzen/models"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, status, attempts, next_retry_at, locked_at, last_error, created_at, published_at`

// InsertOutboxEvent stores an event in the caller's transaction.
func (t *sqlTx) InsertOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = models.OutboxStatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, []byte(e.Payload), e.Status, e.Attempts, e.CreatedAt,
	)
	if err != nil {
		return dbErr("insert outbox event", err)
	}
	return nil
}

// OutboxRepository is used by the relay worker outside request transactions.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// ClaimPending marks up to limit due events as sending and returns them. Events
// stuck in sending for longer than staleAfter are reclaimed.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr("begin outbox claim", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE (status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?))
		   OR (status = ? AND locked_at < ?)
		ORDER BY created_at
		LIMIT ?
		FOR UPDATE SKIP LOCKED`,
		models.OutboxStatusPending, now, models.OutboxStatusSending, now.Add(-staleAfter), limit,
	)
	if err != nil {
		return nil, dbErr("select outbox events", err)
	}
	events, err := scanOutbox(rows)
	if err != nil {
		return nil, dbErr("scan outbox events", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(events)+3)
	ids = append(ids, models.OutboxStatusSending, now)
	for i := range events {
		ids = append(ids, events[i].ID)
		events[i].Status = models.OutboxStatusSending
		events[i].LockedAt = &now
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, locked_at = ? WHERE id IN (`+placeholders(len(events))+`)`, ids...,
	); err != nil {
		return nil, dbErr("claim outbox events", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, dbErr("commit outbox claim", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, published_at = ?, locked_at = NULL WHERE id = ?`,
		models.OutboxStatusDelivered, time.Now().UTC(), id,
	)
	if err != nil {
		return dbErr("mark outbox event delivered", err)
	}
	return nil
}

// MarkFailed returns the event to pending with a retry time, or parks it as dead.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error {
	status := models.OutboxStatusPending
	if dead {
		status = models.OutboxStatusDead
		nextRetryAt = nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, attempts = ?, next_retry_at = ?, last_error = ?, locked_at = NULL WHERE id = ?`,
		status, attempts, nextRetryAt, lastErr, id,
	)
	if err != nil {
		return dbErr("mark outbox event failed", err)
	}
	return nil
}

func scanOutbox(rows *sql.Rows) ([]models.OutboxEvent, error) {
	defer rows.Close()
	var out []models.OutboxEvent
	for rows.Next() {
		var (
			e                            models.OutboxEvent
			payload                      []byte
			nextRetry, locked, published sql.NullTime
			lastErr                      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.Status,
			&e.Attempts, &nextRetry, &locked, &lastErr, &e.CreatedAt, &published); err != nil {
			return nil, err
		}
		e.Payload = payload
		e.NextRetryAt = timePtr(nextRetry)
		e.LockedAt = timePtr(locked)
		e.LastError = stringPtr(lastErr)
		e.PublishedAt = timePtr(published)
		out = append(out, e)
	}
	return out, rows.Err()
}
