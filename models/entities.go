package models

import (
	"time"
)

// ComplaintStatus represents the possible statuses of a complaint
type ComplaintStatus string

const (
	StatusPending    ComplaintStatus = "pending"
	StatusAccepted   ComplaintStatus = "accepted"
	StatusInProgress ComplaintStatus = "in_progress"
	StatusResolved   ComplaintStatus = "resolved"
	StatusRejected   ComplaintStatus = "rejected"
	StatusAppealed   ComplaintStatus = "appealed"
	StatusCompleted  ComplaintStatus = "completed"
)

// AllStatuses lists every status a complaint can hold.
var AllStatuses = []ComplaintStatus{
	StatusPending, StatusAccepted, StatusInProgress, StatusResolved,
	StatusRejected, StatusAppealed, StatusCompleted,
}

func (s ComplaintStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the workflow unless reopened by an appeal.
func (s ComplaintStatus) Terminal() bool {
	return s == StatusResolved || s == StatusRejected || s == StatusCompleted
}

// Open is the complement of Terminal; open complaints take part in duplicate detection.
func (s ComplaintStatus) Open() bool {
	return s.Valid() && !s.Terminal()
}

// ParseComplaintStatus validates a raw status string at the boundary.
func ParseComplaintStatus(raw string) (ComplaintStatus, error) {
	s := ComplaintStatus(raw)
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Message: "unknown status " + raw}
	}
	return s, nil
}

// AppealStatus tracks the appeal sub-state of a complaint.
type AppealStatus string

const (
	AppealNone     AppealStatus = "none"
	AppealPending  AppealStatus = "pending"
	AppealReviewed AppealStatus = "reviewed"
	AppealApproved AppealStatus = "approved"
	AppealRejected AppealStatus = "rejected"
)

func (s AppealStatus) Valid() bool {
	switch s {
	case AppealNone, AppealPending, AppealReviewed, AppealApproved, AppealRejected:
		return true
	}
	return false
}

// ImageType tags why an image was attached.
type ImageType string

const (
	ImageInitial    ImageType = "initial"
	ImageProgress   ImageType = "progress"
	ImageResolution ImageType = "resolution"
	ImageAppeal     ImageType = "appeal"
)

func (t ImageType) Valid() bool {
	switch t {
	case ImageInitial, ImageProgress, ImageResolution, ImageAppeal:
		return true
	}
	return false
}

// ActorType represents who performed an action
type ActorType string

const (
	ActorCitizen   ActorType = "citizen"
	ActorAuthority ActorType = "authority"
	ActorAdmin     ActorType = "admin"
	ActorSystem    ActorType = "system"
)

// Complaint represents a complaint entity
type Complaint struct {
	ID                      int64           `db:"id" json:"id"`
	CitizenUID              string          `db:"citizen_uid" json:"citizenUid"`
	CategoryID              int64           `db:"category_id" json:"categoryId"`
	Title                   string          `db:"title" json:"title"`
	Description             string          `db:"description" json:"description"`
	Latitude                float64         `db:"latitude" json:"latitude"`
	Longitude               float64         `db:"longitude" json:"longitude"`
	CurrentStatus           ComplaintStatus `db:"current_status" json:"currentStatus"`
	AppealStatus            AppealStatus    `db:"appeal_status" json:"appealStatus"`
	PreAppealStatus         ComplaintStatus `db:"pre_appeal_status" json:"-"`
	AppealCount             int             `db:"appeal_count" json:"appealCount"`
	Upvotes                 int             `db:"upvotes" json:"upvotes"`
	Rating                  *int            `db:"rating" json:"rating,omitempty"`
	StatusNotes             *string         `db:"status_notes" json:"statusNotes,omitempty"`
	AppealReason            *string         `db:"appeal_reason" json:"appealReason,omitempty"`
	AdminRemarks            *string         `db:"admin_remarks" json:"adminRemarks,omitempty"`
	ForwardedByAdmin        bool            `db:"forwarded_by_admin" json:"forwardedByAdmin"`
	LastAuthorityActivityAt *time.Time      `db:"last_authority_activity_at" json:"lastAuthorityActivityAt,omitempty"`
	LastBumpedAt            *time.Time      `db:"last_bumped_at" json:"lastBumpedAt,omitempty"`
	CreatedAt               time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time       `db:"updated_at" json:"updatedAt"`

	Images      []ComplaintImage `db:"-" json:"images,omitempty"`
	Authorities []int64          `db:"-" json:"authorityIds,omitempty"`
}

// ActivityReference is the instant staleness is measured from: the last authority
// activity, or creation when no authority has touched the complaint yet.
func (c *Complaint) ActivityReference() time.Time {
	if c.LastAuthorityActivityAt != nil {
		return *c.LastAuthorityActivityAt
	}
	return c.CreatedAt
}

// ComplaintImage belongs to exactly one complaint
type ComplaintImage struct {
	ID          int64     `db:"id" json:"id"`
	ComplaintID int64     `db:"complaint_id" json:"complaintId"`
	ImageType   ImageType `db:"image_type" json:"imageType"`
	URL         string    `db:"url" json:"url"`
	Fingerprint string    `db:"fingerprint" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// ComplaintStatusHistory represents a status change record (immutable)
type ComplaintStatusHistory struct {
	ID          int64            `db:"id" json:"id"`
	ComplaintID int64            `db:"complaint_id" json:"complaintId"`
	OldStatus   *ComplaintStatus `db:"old_status" json:"oldStatus,omitempty"`
	NewStatus   ComplaintStatus  `db:"new_status" json:"newStatus"`
	ActorType   ActorType        `db:"actor_type" json:"actorType"`
	ActorID     string           `db:"actor_id" json:"actorId"`
	Reason      *string          `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// Category is reference data; complaints must point at a live row.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// AuthorityCompany is a municipal department that resolves complaints.
type AuthorityCompany struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Description string        `db:"description" json:"description"`
	CategoryIDs []int64       `db:"-" json:"categoryIds,omitempty"`
	Areas       []ServiceArea `db:"-" json:"areas,omitempty"`
}

// ServiceArea is a circular geofence owned by one authority.
type ServiceArea struct {
	ID          int64   `db:"id" json:"id"`
	AuthorityID int64   `db:"authority_id" json:"authorityId"`
	Name        string  `db:"name" json:"name"`
	Latitude    float64 `db:"latitude" json:"latitude"`
	Longitude   float64 `db:"longitude" json:"longitude"`
	RadiusKm    float64 `db:"radius_km" json:"radiusKm"`
}

// ComplaintAssignment records an authority actually chosen for a complaint.
type ComplaintAssignment struct {
	ComplaintID int64     `db:"complaint_id" json:"complaintId"`
	AuthorityID int64     `db:"authority_id" json:"authorityId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Upvote is unique per (citizen, complaint).
type Upvote struct {
	CitizenUID  string    `db:"citizen_uid" json:"citizenUid"`
	ComplaintID int64     `db:"complaint_id" json:"complaintId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Citizen carries the durable community-standing record.
// BannedAt and BanReason are set exactly when IsBanned is true.
type Citizen struct {
	UID       string     `db:"uid" json:"uid"`
	Name      string     `db:"name" json:"name"`
	Ward      *string    `db:"ward" json:"ward,omitempty"`
	Strikes   int        `db:"strikes" json:"strikes"`
	IsBanned  bool       `db:"is_banned" json:"isBanned"`
	BannedAt  *time.Time `db:"banned_at" json:"bannedAt,omitempty"`
	BanReason *string    `db:"ban_reason" json:"banReason,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// Strike is one ledger entry; the counter on Citizen is the sum of these.
type Strike struct {
	ID          int64     `db:"id" json:"id"`
	CitizenUID  string    `db:"citizen_uid" json:"citizenUid"`
	Reason      string    `db:"reason" json:"reason"`
	ComplaintID *int64    `db:"complaint_id" json:"complaintId,omitempty"`
	IssuedBy    string    `db:"issued_by" json:"issuedBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
