package repository

import (
	"context"
	"time"

	"cityzen/geo"
	"cityzen/models"
)

// ComplaintTx covers complaints and their child rows.
type ComplaintTx interface {
	CategoryExists(ctx context.Context, categoryID int64) (bool, error)
	LockCells(ctx context.Context, keys []string) error
	FindOpenComplaintsInBox(ctx context.Context, categoryID int64, box geo.BoundingBox) ([]models.Complaint, error)
	FindImageOwner(ctx context.Context, fingerprint string, excludeComplaintID int64) (int64, bool, error)
	CountSubmissionsSince(ctx context.Context, citizenUID string, since time.Time) (int, error)

	InsertComplaint(ctx context.Context, c *models.Complaint) error
	InsertImage(ctx context.Context, img *models.ComplaintImage) error
	InsertAssignments(ctx context.Context, complaintID int64, authorityIDs []int64, at time.Time) error
	InsertStatusHistory(ctx context.Context, h *models.ComplaintStatusHistory) error

	GetComplaint(ctx context.Context, id int64) (*models.Complaint, error)
	LockComplaint(ctx context.Context, id int64) (*models.Complaint, error)
	UpdateComplaint(ctx context.Context, c *models.Complaint) error
	DeleteComplaint(ctx context.Context, id int64) error
	ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error)
	ListImages(ctx context.Context, complaintID int64) ([]models.ComplaintImage, error)
	ListAssignments(ctx context.Context, complaintID int64) ([]int64, error)
	ListStatusHistory(ctx context.Context, complaintID int64) ([]models.ComplaintStatusHistory, error)

	InsertUpvote(ctx context.Context, u *models.Upvote) error
	IncrementUpvotes(ctx context.Context, complaintID int64) (int, error)
}

// AuthorityTx covers authority reference data needed inside a write.
type AuthorityTx interface {
	CountAuthoritiesForCategory(ctx context.Context, categoryID int64, authorityIDs []int64) (int, error)
	IsAssigned(ctx context.Context, complaintID, authorityID int64) (bool, error)
}

// ModerationTx covers citizen standing, strikes and reports.
type ModerationTx interface {
	EnsureCitizen(ctx context.Context, uid string) error
	GetCitizen(ctx context.Context, uid string) (*models.Citizen, error)
	LockCitizen(ctx context.Context, uid string) (*models.Citizen, error)
	IncrementStrikes(ctx context.Context, uid string) (int, error)
	InsertStrike(ctx context.Context, s *models.Strike) error
	ListStrikes(ctx context.Context, uid string) ([]models.Strike, error)
	SetBan(ctx context.Context, uid string, bannedAt *time.Time, reason *string) error
	ListBannedCitizens(ctx context.Context) ([]models.Citizen, error)

	InsertReport(ctx context.Context, r *models.ComplaintReport) error
	LockReport(ctx context.Context, id int64) (*models.ComplaintReport, error)
	UpdateReport(ctx context.Context, r *models.ComplaintReport) error
	CloseOpenReports(ctx context.Context, complaintID int64, status models.ReportStatus, resolvedBy string, at time.Time) error
	ListReports(ctx context.Context, status *models.ReportStatus) ([]models.ComplaintReport, error)
}

// OutboxTx records domain events in the caller's transaction.
type OutboxTx interface {
	InsertOutboxEvent(ctx context.Context, e *models.OutboxEvent) error
}

// Tx is everything a service may do inside one unit of work.
type Tx interface {
	ComplaintTx
	AuthorityTx
	ModerationTx
	OutboxTx
}
