package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cityzen/models"
	"cityzen/repository"
)

// Store is the unit-of-work boundary every service writes through.
type Store interface {
	WithTx(ctx context.Context, fn func(repository.Tx) error) error
	View(ctx context.Context, fn func(repository.Tx) error) error
}

// Policy holds the tunable constants of the complaint engine.
type Policy struct {
	DuplicateRadiusMeters float64
	StalenessWindow       time.Duration
	BumpCooldown          time.Duration
	RateLimitCount        int
	RateLimitWindow       time.Duration
	BanThreshold          int
	MaxAppeals            int
	MaxImages             int
}

func DefaultPolicy() Policy {
	return Policy{
		DuplicateRadiusMeters: 50,
		StalenessWindow:       72 * time.Hour,
		BumpCooldown:          72 * time.Hour,
		RateLimitCount:        5,
		RateLimitWindow:       15 * time.Minute,
		BanThreshold:          5,
		MaxAppeals:            2,
		MaxImages:             5,
	}
}

// recordEvent appends a domain event to the outbox inside tx.
func recordEvent(ctx context.Context, tx repository.OutboxTx, aggregate string, id any, eventType string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
		AggregateType: aggregate,
		AggregateID:   fmt.Sprint(id),
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     at,
	})
}

// requireActiveCitizen provisions the citizen on first contact, loads it and
// refuses banned ones.
func requireActiveCitizen(ctx context.Context, tx repository.ModerationTx, uid string) (*models.Citizen, error) {
	if err := tx.EnsureCitizen(ctx, uid); err != nil {
		return nil, err
	}
	c, err := tx.GetCitizen(ctx, uid)
	if err != nil {
		return nil, err
	}
	if c.IsBanned {
		return nil, models.ErrCitizenBanned
	}
	return c, nil
}

func historyRow(complaintID int64, from *models.ComplaintStatus, to models.ComplaintStatus, actor models.Actor, reason string, at time.Time) *models.ComplaintStatusHistory {
	h := &models.ComplaintStatusHistory{
		ComplaintID: complaintID,
		OldStatus:   from,
		NewStatus:   to,
		ActorType:   actor.Type,
		ActorID:     actor.ID,
		CreatedAt:   at,
	}
	if actor.Type == models.ActorAuthority && actor.ID == "" {
		h.ActorID = fmt.Sprintf("authority:%d", actor.AuthorityID)
	}
	if reason != "" {
		h.Reason = &reason
	}
	return h
}
