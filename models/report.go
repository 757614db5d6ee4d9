package models

import (
	"strings"
	"time"
)

// ReportReason is the closed set of grounds a citizen may report a complaint on.
type ReportReason string

const (
	ReasonHarassment      ReportReason = "harassment_threats"
	ReasonHateSpeech      ReportReason = "hate_speech_discrimination"
	ReasonSexualContent   ReportReason = "nudity_sexual_content"
	ReasonSpam            ReportReason = "spam_scams"
	ReasonMisinformation  ReportReason = "fake_information_misinformation"
	ReasonSelfHarm        ReportReason = "self_harm_suicide"
	ReasonGraphicViolence ReportReason = "violence_graphic_content"
	ReasonIPViolation     ReportReason = "intellectual_property"
	ReasonImpersonation   ReportReason = "impersonation_fake_accounts"
	ReasonChildSafety     ReportReason = "child_safety"
	ReasonOther           ReportReason = "other_violations"
)

var reportReasons = map[ReportReason]struct{}{
	ReasonHarassment: {}, ReasonHateSpeech: {}, ReasonSexualContent: {}, ReasonSpam: {},
	ReasonMisinformation: {}, ReasonSelfHarm: {}, ReasonGraphicViolence: {}, ReasonIPViolation: {},
	ReasonImpersonation: {}, ReasonChildSafety: {}, ReasonOther: {},
}

func (r ReportReason) Valid() bool {
	_, ok := reportReasons[r]
	return ok
}

// ParseReportReason validates a raw reason string at the boundary.
func ParseReportReason(raw string) (ReportReason, error) {
	r := ReportReason(strings.TrimSpace(raw))
	if !r.Valid() {
		return "", &ValidationError{Field: "reason", Message: "unsupported report reason"}
	}
	return r, nil
}

// ReportStatus is the triage state of a report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewed, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// Open reports whether the report still awaits an admin decision.
func (s ReportStatus) Open() bool {
	return s == ReportPending || s == ReportReviewed
}

// ReportAction is the admin decision on a report.
type ReportAction string

const (
	ReportActionDismiss ReportAction = "dismiss"
	ReportActionDelete  ReportAction = "delete"
)

// AppealAction is the admin decision on an appeal.
type AppealAction string

const (
	AppealActionApprove AppealAction = "approve"
	AppealActionReject  AppealAction = "reject"
)

// ComplaintReport is unique per (complaint, reporter). ComplaintID is cleared
// when the reported complaint is deleted so the triage record survives.
type ComplaintReport struct {
	ID          int64        `db:"id" json:"id"`
	ComplaintID *int64       `db:"complaint_id" json:"complaintId,omitempty"`
	ReportedBy  string       `db:"reported_by" json:"reportedBy"`
	Reason      ReportReason `db:"reason" json:"reason"`
	Description *string      `db:"description" json:"description,omitempty"`
	Status      ReportStatus `db:"status" json:"status"`
	ResolvedBy  *string      `db:"resolved_by" json:"resolvedBy,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updatedAt"`
}
