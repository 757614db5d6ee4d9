// Package lifecycle holds the complaint status machine. It is pure: callers load
// the complaint under a row lock, call into here, and persist the result.
package lifecycle

import (
	"strings"
	"time"

	"cityzen/models"
)

type requirement uint8

const (
	needsNote requirement = 1 << iota
	needsEvidence
	needsAppealReason
)

type rule struct {
	actor    models.ActorType
	needs    requirement
	image    models.ImageType
	activity bool
}

var transitions = map[models.ComplaintStatus]map[models.ComplaintStatus]rule{
	models.StatusPending: {
		models.StatusAccepted: {actor: models.ActorAuthority, activity: true},
		models.StatusRejected: {actor: models.ActorAuthority, needs: needsNote, activity: true},
	},
	models.StatusAccepted: {
		models.StatusInProgress: {actor: models.ActorAuthority, needs: needsEvidence, image: models.ImageProgress, activity: true},
	},
	models.StatusInProgress: {
		models.StatusResolved: {actor: models.ActorAuthority, needs: needsEvidence, image: models.ImageResolution, activity: true},
	},
	models.StatusResolved: {
		models.StatusAppealed:  {actor: models.ActorCitizen, needs: needsAppealReason, image: models.ImageAppeal},
		models.StatusCompleted: {actor: models.ActorCitizen},
	},
	models.StatusRejected: {
		models.StatusAppealed: {actor: models.ActorCitizen, needs: needsAppealReason, image: models.ImageAppeal},
	},
}

// Request is one attempted transition.
type Request struct {
	Actor         models.Actor
	To            models.ComplaintStatus
	Notes         string
	AppealReason  string
	Rating        *int
	EvidenceCount int
}

// Change describes what Apply did, for history rows and image tagging.
type Change struct {
	From      models.ComplaintStatus
	To        models.ComplaintStatus
	ImageType models.ImageType
}

// Machine applies transitions; MaxAppeals bounds appeal cycles per complaint.
type Machine struct {
	MaxAppeals int
}

func New(maxAppeals int) *Machine {
	if maxAppeals <= 0 {
		maxAppeals = 1
	}
	return &Machine{MaxAppeals: maxAppeals}
}

// Allowed reports whether from -> to appears in the transition table for the actor type.
func Allowed(from, to models.ComplaintStatus, actor models.ActorType) bool {
	r, ok := transitions[from][to]
	return ok && r.actor == actor
}

// Apply validates req against c and, only if every check passes, mutates c.
func (m *Machine) Apply(c *models.Complaint, req Request, now time.Time) (Change, error) {
	from := c.CurrentStatus
	if !req.To.Valid() {
		return Change{}, &models.TransitionError{From: from, To: req.To, Reason: "unknown target status"}
	}
	r, ok := transitions[from][req.To]
	if !ok {
		return Change{}, &models.TransitionError{From: from, To: req.To}
	}
	if r.actor != req.Actor.Type {
		return Change{}, &models.TransitionError{From: from, To: req.To, Reason: "requires " + string(r.actor)}
	}
	if r.actor == models.ActorCitizen && req.Actor.ID != c.CitizenUID {
		return Change{}, models.ErrForbidden
	}

	notes := strings.TrimSpace(req.Notes)
	reason := strings.TrimSpace(req.AppealReason)
	if r.needs&needsNote != 0 && notes == "" {
		return Change{}, &models.ValidationError{Field: "statusNotes", Message: "a note is required for this transition"}
	}
	if r.needs&needsEvidence != 0 && req.EvidenceCount == 0 {
		return Change{}, &models.ValidationError{Field: "images", Message: "at least one evidence image is required"}
	}
	if r.needs&needsAppealReason != 0 {
		if reason == "" {
			return Change{}, &models.ValidationError{Field: "appealReason", Message: "appeal reason is required"}
		}
		if c.AppealCount >= m.MaxAppeals {
			return Change{}, models.ErrAppealLimitReached
		}
	}
	if req.Rating != nil {
		if req.To != models.StatusCompleted {
			return Change{}, &models.ValidationError{Field: "rating", Message: "rating is only accepted when completing a complaint"}
		}
		if *req.Rating < 1 || *req.Rating > 5 {
			return Change{}, &models.ValidationError{Field: "rating", Message: "rating must be between 1 and 5"}
		}
	}

	c.CurrentStatus = req.To
	if notes != "" {
		c.StatusNotes = &notes
	}
	switch req.To {
	case models.StatusAppealed:
		c.AppealReason = &reason
		c.AppealStatus = models.AppealPending
		c.PreAppealStatus = from
		c.AppealCount++
	case models.StatusCompleted:
		if req.Rating != nil {
			rating := *req.Rating
			c.Rating = &rating
		}
	}
	if r.activity {
		touchAuthorityActivity(c, now)
	}
	c.UpdatedAt = now
	return Change{From: from, To: req.To, ImageType: r.image}, nil
}

// ApproveAppeal sends an appealed complaint back to the authority queue, flagged as forwarded.
func (m *Machine) ApproveAppeal(c *models.Complaint, actor models.Actor, remarks string, now time.Time) (Change, error) {
	if err := checkAdjudicable(c, actor, models.StatusInProgress); err != nil {
		return Change{}, err
	}
	from := c.CurrentStatus
	c.CurrentStatus = models.StatusInProgress
	c.AppealStatus = models.AppealApproved
	c.ForwardedByAdmin = true
	setRemarks(c, remarks)
	touchAuthorityActivity(c, now)
	c.UpdatedAt = now
	return Change{From: from, To: c.CurrentStatus}, nil
}

// RejectAppeal restores the terminal status the complaint held before it was appealed.
func (m *Machine) RejectAppeal(c *models.Complaint, actor models.Actor, remarks string, now time.Time) (Change, error) {
	restore := c.PreAppealStatus
	if !restore.Terminal() || restore == models.StatusCompleted {
		restore = models.StatusRejected
	}
	if err := checkAdjudicable(c, actor, restore); err != nil {
		return Change{}, err
	}
	from := c.CurrentStatus
	c.CurrentStatus = restore
	c.AppealStatus = models.AppealRejected
	setRemarks(c, remarks)
	c.UpdatedAt = now
	return Change{From: from, To: c.CurrentStatus}, nil
}

// StatusDeleted is the pseudo-status reported when a delete is refused; no row ever holds it.
const StatusDeleted models.ComplaintStatus = "deleted"

// DeleteSource tells CheckDeletable which moderation path removes the complaint.
type DeleteSource uint8

const (
	// DirectDelete is an admin delete from the complaint itself.
	DirectDelete DeleteSource = iota
	// ReportDelete upholds a citizen report; it applies in any status.
	ReportDelete
)

// CheckDeletable allows direct moderation deletes only for non-terminal complaints.
// Report-driven deletes may remove a complaint in any status.
func CheckDeletable(c *models.Complaint, actor models.Actor, src DeleteSource) error {
	if actor.Type != models.ActorAdmin {
		return models.ErrForbidden
	}
	if src == DirectDelete && c.CurrentStatus.Terminal() {
		return &models.TransitionError{From: c.CurrentStatus, To: StatusDeleted, Reason: "terminal complaints can only be removed through a report"}
	}
	return nil
}

func checkAdjudicable(c *models.Complaint, actor models.Actor, to models.ComplaintStatus) error {
	if actor.Type != models.ActorAdmin {
		return &models.TransitionError{From: c.CurrentStatus, To: to, Reason: "requires admin"}
	}
	if c.CurrentStatus != models.StatusAppealed || c.AppealStatus != models.AppealPending {
		return &models.TransitionError{From: c.CurrentStatus, To: to, Reason: "no pending appeal"}
	}
	return nil
}

func setRemarks(c *models.Complaint, remarks string) {
	if r := strings.TrimSpace(remarks); r != "" {
		c.AdminRemarks = &r
	}
}

// touchAuthorityActivity keeps lastAuthorityActivityAt strictly increasing even
// when two writes land inside the same clock tick.
func touchAuthorityActivity(c *models.Complaint, now time.Time) {
	next := now.UTC().Truncate(time.Microsecond)
	if prev := c.LastAuthorityActivityAt; prev != nil && !next.After(*prev) {
		next = prev.Add(time.Microsecond)
	}
	c.LastAuthorityActivityAt = &next
}
