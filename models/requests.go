package models

import "time"

// Actor identifies the caller of a service operation.
// AuthorityID is set only for authority actors.
type Actor struct {
	Type        ActorType
	ID          string
	AuthorityID int64
}

func CitizenActor(uid string) Actor { return Actor{Type: ActorCitizen, ID: uid} }

func AdminActor(id string) Actor { return Actor{Type: ActorAdmin, ID: id} }

func AuthorityActor(authorityID int64, officer string) Actor {
	return Actor{Type: ActorAuthority, ID: officer, AuthorityID: authorityID}
}

// ImageUpload is one image received with a request, before it is stored.
type ImageUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// SubmitComplaintInput is a citizen submission after boundary parsing.
type SubmitComplaintInput struct {
	CitizenUID   string
	CategoryID   int64
	Title        string
	Description  string
	Latitude     float64
	Longitude    float64
	AuthorityIDs []int64
	Images       []ImageUpload
}

// CheckDuplicateRequest is the body of the pre-flight collision check.
type CheckDuplicateRequest struct {
	CategoryID int64   `json:"categoryId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// DuplicateResponse is returned by the pre-flight check and in 409 submission replies.
type DuplicateResponse struct {
	IsDuplicate         bool       `json:"isDuplicate"`
	CanBump             bool       `json:"canBump"`
	ExistingComplaint   *Complaint `json:"existingComplaint,omitempty"`
	ExistingComplaintID *int64     `json:"existingComplaintId,omitempty"`
	Message             string     `json:"message,omitempty"`
}

// AuthorityRecommendation is one ranked router candidate.
type AuthorityRecommendation struct {
	AuthorityID int64   `json:"authorityId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	DistanceKm  float64 `json:"distanceKm"`
	OutOfArea   bool    `json:"outOfArea"`
}

// RecommendationResponse wraps router output; Fallback is true when no area contained the point.
type RecommendationResponse struct {
	Authorities []AuthorityRecommendation `json:"authorities"`
	Fallback    bool                      `json:"fallback"`
}

// StatusUpdateInput drives one state machine transition.
type StatusUpdateInput struct {
	ComplaintID int64
	Status      ComplaintStatus
	Notes       string
	Rating      *int
	Images      []ImageUpload
}

// AppealInput is a citizen's contest of a resolved or rejected complaint.
type AppealInput struct {
	ComplaintID int64
	Reason      string
	Images      []ImageUpload
}

// AdjudicateAppealRequest is the admin decision body.
type AdjudicateAppealRequest struct {
	Action       AppealAction `json:"action"`
	AdminRemarks string       `json:"adminRemarks"`
	AddStrike    bool         `json:"addStrike"`
}

// ReportRequest is the body of a complaint report.
type ReportRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// ResolveReportRequest is the admin decision on a report.
type ResolveReportRequest struct {
	Action ReportAction `json:"action"`
	Reason string       `json:"reason"`
}

// DeleteComplaintRequest is the admin moderation delete body.
type DeleteComplaintRequest struct {
	Reason string `json:"reason"`
}

type StrikeRequest struct {
	CitizenUID  string `json:"citizenUid"`
	Reason      string `json:"reason"`
	ComplaintID *int64 `json:"complaintId,omitempty"`
}

// StrikeResult reports the new count. ShouldBan is advisory; bans are never automatic.
type StrikeResult struct {
	CitizenUID string `json:"citizenUid"`
	Strikes    int    `json:"strikes"`
	ShouldBan  bool   `json:"shouldBan"`
	IsBanned   bool   `json:"isBanned"`
}

type BanRequest struct {
	CitizenUID string `json:"citizenUid"`
	Reason     string `json:"reason"`
}

type BanResult struct {
	CitizenUID string    `json:"citizenUid"`
	BannedAt   time.Time `json:"bannedAt"`
	BanReason  string    `json:"banReason"`
}

type UnbanRequest struct {
	CitizenUID string `json:"citizenUid"`
}

// ModerationInfo is the read-back of a citizen's standing.
type ModerationInfo struct {
	Citizen   Citizen  `json:"citizen"`
	ShouldBan bool     `json:"shouldBan"`
	History   []Strike `json:"strikeHistory"`
}

type UpvoteResult struct {
	ComplaintID int64 `json:"complaintId"`
	Upvotes     int   `json:"upvotes"`
}

// ComplaintFilter narrows complaint listings.
type ComplaintFilter struct {
	CategoryID  *int64
	Status      *ComplaintStatus
	AuthorityID *int64
	Limit       int
	Offset      int
}

// ErrorResponse is the JSON envelope for every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
