package models

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusSending   = "sending"
	OutboxStatusDelivered = "delivered"
	OutboxStatusDead      = "dead"
)

// Domain event types written to the outbox.
const (
	EventComplaintSubmitted     = "complaint.submitted"
	EventComplaintBumped        = "complaint.bumped"
	EventComplaintStatusChanged = "complaint.status_changed"
	EventComplaintDeleted       = "complaint.deleted"
	EventComplaintUpvoted       = "complaint.upvoted"
	EventAppealSubmitted        = "appeal.submitted"
	EventAppealAdjudicated      = "appeal.adjudicated"
	EventReportCreated          = "report.created"
	EventReportResolved         = "report.resolved"
	EventCitizenStruck          = "citizen.struck"
	EventCitizenBanned          = "citizen.banned"
	EventCitizenUnbanned        = "citizen.unbanned"
)

// OutboxEvent is written in the same transaction as the change it describes.
type OutboxEvent struct {
	ID            string          `db:"id" json:"id"`
	AggregateType string          `db:"aggregate_type" json:"aggregateType"`
	AggregateID   string          `db:"aggregate_id" json:"aggregateId"`
	EventType     string          `db:"event_type" json:"eventType"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        string          `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	NextRetryAt   *time.Time      `db:"next_retry_at" json:"nextRetryAt,omitempty"`
	LockedAt      *time.Time      `db:"locked_at" json:"lockedAt,omitempty"`
	LastError     *string         `db:"last_error" json:"lastError,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	PublishedAt   *time.Time      `db:"published_at" json:"publishedAt,omitempty"`
}
