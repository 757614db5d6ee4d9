package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cityzen/geo"
	"cityzen/lifecycle"
	"cityzen/logx"
	"cityzen/metrics"
	"cityzen/models"
	"cityzen/repository"
)

// ComplaintService handles business logic for complaints
type ComplaintService struct {
	store     Store
	evaluator *DuplicateEvaluator
	machine   *lifecycle.Machine
	limiter   SubmissionLimiter
	images    ImageStore
	policy    Policy
	log       logx.Logger
	now       func() time.Time
}

// NewComplaintService creates a new complaint service
func NewComplaintService(
	store Store,
	evaluator *DuplicateEvaluator,
	machine *lifecycle.Machine,
	limiter SubmissionLimiter,
	images ImageStore,
	policy Policy,
	log logx.Logger,
) *ComplaintService {
	return &ComplaintService{
		store:     store,
		evaluator: evaluator,
		machine:   machine,
		limiter:   limiter,
		images:    images,
		policy:    policy,
		log:       log,
		now:       time.Now,
	}
}

// Submit creates a complaint after the rate limit, image reuse and duplicate checks.
//
// The duplicate check and the insert share one transaction that first locks the
// guard cells around the location, so two concurrent submissions at the same
// spot in the same category cannot both pass.
func (s *ComplaintService) Submit(ctx context.Context, in models.SubmitComplaintInput) (*models.Complaint, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	authorityIDs, err := validateSubmission(&in)
	if err != nil {
		return nil, err
	}
	imgs, err := prepareImages(in.Images, s.policy.MaxImages)
	if err != nil {
		return nil, err
	}
	if len(imgs) == 0 {
		return nil, &models.ValidationError{Field: "images", Message: "at least one image is required"}
	}

	allowed, retryAfter, err := s.limiter.Allow(ctx, in.CitizenUID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.IncSubmission(string(OutcomeRejectRateLimited))
		s.log.Warn(ctx, "submission_rate_limited", "citizen exceeded submission rate", slog.String("citizen_uid", in.CitizenUID))
		return nil, &models.RateLimitError{RetryAfter: retryAfter}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	var (
		created *models.Complaint
		saved   []string
	)
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := requireActiveCitizen(ctx, tx, in.CitizenUID); err != nil {
			return err
		}
		ok, err := tx.CategoryExists(ctx, in.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return &models.ValidationError{Field: "categoryId", Message: "unknown category"}
		}
		n, err := tx.CountAuthoritiesForCategory(ctx, in.CategoryID, authorityIDs)
		if err != nil {
			return err
		}
		if n != len(authorityIDs) {
			return &models.ValidationError{Field: "authorityIds", Message: "every chosen authority must service the category"}
		}
		if err := checkImageReuse(ctx, tx, imgs, 0); err != nil {
			return err
		}

		if err := tx.LockCells(ctx, geo.LockKeys(in.CategoryID, in.Latitude, in.Longitude)); err != nil {
			return err
		}
		candidates, err := tx.FindOpenComplaintsInBox(ctx, in.CategoryID, geo.BoxAround(in.Latitude, in.Longitude, s.evaluator.RadiusKm()))
		if err != nil {
			return err
		}
		decision := s.evaluator.Evaluate(candidates, in.CategoryID, in.Latitude, in.Longitude, now)
		if decision.Outcome != OutcomeAccept {
			return &models.DuplicateComplaintError{Existing: decision.Existing, CanBump: decision.Outcome == OutcomeOfferBump}
		}

		c := &models.Complaint{
			CitizenUID:    in.CitizenUID,
			CategoryID:    in.CategoryID,
			Title:         in.Title,
			Description:   in.Description,
			Latitude:      in.Latitude,
			Longitude:     in.Longitude,
			CurrentStatus: models.StatusPending,
			AppealStatus:  models.AppealNone,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertComplaint(ctx, c); err != nil {
			return err
		}
		rows, err := attachImages(ctx, tx, s.images, c.ID, models.ImageInitial, imgs, now, &saved)
		if err != nil {
			return err
		}
		if err := tx.InsertAssignments(ctx, c.ID, authorityIDs, now); err != nil {
			return err
		}
		actor := models.CitizenActor(in.CitizenUID)
		if err := tx.InsertStatusHistory(ctx, historyRow(c.ID, nil, c.CurrentStatus, actor, "submitted", now)); err != nil {
			return err
		}
		c.Images = rows
		c.Authorities = authorityIDs
		created = c
		return recordEvent(ctx, tx, "complaint", c.ID, models.EventComplaintSubmitted, map[string]any{
			"complaintId":  c.ID,
			"citizenUid":   c.CitizenUID,
			"categoryId":   c.CategoryID,
			"latitude":     c.Latitude,
			"longitude":    c.Longitude,
			"authorityIds": authorityIDs,
		}, now)
	})
	if err != nil {
		discardImages(s.images, saved)
		s.recordRejection(ctx, in, err)
		return nil, err
	}

	metrics.IncSubmission(string(OutcomeAccept))
	s.log.Info(ctx, "complaint_created", "complaint stored",
		slog.Int64("complaint_id", created.ID),
		slog.String("citizen_uid", created.CitizenUID),
		slog.Int64("category_id", created.CategoryID),
		slog.Int("authorities", len(authorityIDs)))
	return created, nil
}

func (s *ComplaintService) recordRejection(ctx context.Context, in models.SubmitComplaintInput, err error) {
	var (
		dup    *models.DuplicateComplaintError
		reused *models.ImageReusedError
	)
	switch {
	case errors.As(err, &dup):
		outcome := OutcomeBlockDuplicate
		if dup.CanBump {
			outcome = OutcomeOfferBump
		}
		metrics.IncSubmission(string(outcome))
		s.log.Info(ctx, "duplicate_blocked", "submission collides with an open complaint",
			slog.String("citizen_uid", in.CitizenUID),
			slog.Int64("existing_id", dup.Existing.ID),
			slog.Bool("can_bump", dup.CanBump))
	case errors.As(err, &reused):
		metrics.IncSubmission(string(OutcomeRejectReusedImage))
		s.log.Warn(ctx, "image_reused", "submission image already attached elsewhere",
			slog.String("citizen_uid", in.CitizenUID),
			slog.Int64("existing_id", reused.ComplaintID))
	}
}

// validateSubmission checks fields and returns the de-duplicated, sorted authority ids.
func validateSubmission(in *models.SubmitComplaintInput) ([]int64, error) {
	switch {
	case in.CitizenUID == "":
		return nil, &models.ValidationError{Field: "citizenUid", Message: "citizen is required"}
	case in.Title == "":
		return nil, &models.ValidationError{Field: "title", Message: "title is required"}
	case in.Description == "":
		return nil, &models.ValidationError{Field: "description", Message: "description is required"}
	case in.CategoryID <= 0:
		return nil, &models.ValidationError{Field: "categoryId", Message: "category is required"}
	case !geo.ValidCoordinates(in.Latitude, in.Longitude):
		return nil, &models.ValidationError{Field: "latitude", Message: "coordinates out of range"}
	case len(in.AuthorityIDs) == 0:
		return nil, &models.ValidationError{Field: "authorityIds", Message: "choose at least one authority"}
	}
	seen := make(map[int64]struct{}, len(in.AuthorityIDs))
	ids := make([]int64, 0, len(in.AuthorityIDs))
	for _, id := range in.AuthorityIDs {
		if id <= 0 {
			return nil, &models.ValidationError{Field: "authorityIds", Message: "invalid authority id"}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetComplaint returns a complaint with its images and assigned authorities.
func (s *ComplaintService) GetComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	var c *models.Complaint
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if c, err = tx.GetComplaint(ctx, id); err != nil {
			return err
		}
		if c.Images, err = tx.ListImages(ctx, id); err != nil {
			return err
		}
		c.Authorities, err = tx.ListAssignments(ctx, id)
		return err
	})
	return c, err
}

// GetStatusTimeline returns the audit trail of a complaint, oldest first.
func (s *ComplaintService) GetStatusTimeline(ctx context.Context, id int64) ([]models.ComplaintStatusHistory, error) {
	var out []models.ComplaintStatusHistory
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetComplaint(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.ListStatusHistory(ctx, id)
		return err
	})
	return out, err
}

// ListComplaints returns the public listing, most upvoted first.
func (s *ComplaintService) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	f.AuthorityID = nil
	return s.list(ctx, f)
}

// AuthorityQueue lists complaints assigned to the calling authority, admin-forwarded first.
func (s *ComplaintService) AuthorityQueue(ctx context.Context, actor models.Actor, f models.ComplaintFilter) ([]models.Complaint, error) {
	if actor.Type != models.ActorAuthority {
		return nil, models.ErrForbidden
	}
	id := actor.AuthorityID
	f.AuthorityID = &id
	return s.list(ctx, f)
}

func (s *ComplaintService) list(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	var out []models.Complaint
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListComplaints(ctx, f)
		return err
	})
	if out == nil {
		out = []models.Complaint{}
	}
	return out, err
}

// UpdateStatus applies one state machine transition with its evidence, atomically.
// The complaint row is locked for the whole check-and-set, so a concurrent
// conflicting transition sees the committed result and fails.
func (s *ComplaintService) UpdateStatus(ctx context.Context, actor models.Actor, in models.StatusUpdateInput) (*models.Complaint, error) {
	imgs, err := prepareImages(in.Images, s.policy.MaxImages)
	if err != nil {
		return nil, err
	}
	req := lifecycle.Request{
		Actor:         actor,
		To:            in.Status,
		Notes:         in.Notes,
		Rating:        in.Rating,
		EvidenceCount: len(imgs),
	}
	return s.transition(ctx, actor, in.ComplaintID, req, imgs, in.Notes)
}

// Appeal moves a resolved or rejected complaint to appealed on behalf of its owner.
func (s *ComplaintService) Appeal(ctx context.Context, actor models.Actor, in models.AppealInput) (*models.Complaint, error) {
	if actor.Type != models.ActorCitizen {
		return nil, models.ErrForbidden
	}
	imgs, err := prepareImages(in.Images, s.policy.MaxImages)
	if err != nil {
		return nil, err
	}
	req := lifecycle.Request{
		Actor:         actor,
		To:            models.StatusAppealed,
		AppealReason:  in.Reason,
		EvidenceCount: len(imgs),
	}
	return s.transition(ctx, actor, in.ComplaintID, req, imgs, in.Reason)
}

func (s *ComplaintService) transition(ctx context.Context, actor models.Actor, complaintID int64, req lifecycle.Request, imgs []preparedImage, reason string) (*models.Complaint, error) {
	now := s.now().UTC()
	var (
		updated *models.Complaint
		change  lifecycle.Change
		saved   []string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if actor.Type == models.ActorCitizen {
			if _, err := requireActiveCitizen(ctx, tx, actor.ID); err != nil {
				return err
			}
		}
		c, err := tx.LockComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		if actor.Type == models.ActorAuthority {
			assigned, err := tx.IsAssigned(ctx, c.ID, actor.AuthorityID)
			if err != nil {
				return err
			}
			if !assigned {
				return models.ErrForbidden
			}
		}
		if err := checkImageReuse(ctx, tx, imgs, c.ID); err != nil {
			return err
		}
		change, err = s.machine.Apply(c, req, now)
		if err != nil {
			return err
		}
		imageType := change.ImageType
		if imageType == "" {
			imageType = models.ImageProgress
		}
		if _, err := attachImages(ctx, tx, s.images, c.ID, imageType, imgs, now, &saved); err != nil {
			return err
		}
		if err := tx.UpdateComplaint(ctx, c); err != nil {
			return err
		}
		from := change.From
		if err := tx.InsertStatusHistory(ctx, historyRow(c.ID, &from, change.To, actor, reason, now)); err != nil {
			return err
		}
		updated = c
		eventType := models.EventComplaintStatusChanged
		if change.To == models.StatusAppealed {
			eventType = models.EventAppealSubmitted
		}
		return recordEvent(ctx, tx, "complaint", c.ID, eventType, map[string]any{
			"complaintId": c.ID,
			"from":        change.From,
			"to":          change.To,
			"actorType":   actor.Type,
			"actorId":     actor.ID,
		}, now)
	})
	if err != nil {
		discardImages(s.images, saved)
		return nil, err
	}
	metrics.IncTransition(string(change.From), string(change.To))
	s.log.Info(ctx, "status_changed", "complaint status updated",
		slog.Int64("complaint_id", complaintID),
		slog.String("from", string(change.From)),
		slog.String("to", string(change.To)),
		slog.String("actor_type", string(actor.Type)))
	return updated, nil
}

// Upvote records one upvote per citizen and complaint and returns the new count.
func (s *ComplaintService) Upvote(ctx context.Context, actor models.Actor, complaintID int64) (*models.UpvoteResult, error) {
	now := s.now().UTC()
	var count int
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := requireActiveCitizen(ctx, tx, actor.ID); err != nil {
			return err
		}
		if _, err := tx.GetComplaint(ctx, complaintID); err != nil {
			return err
		}
		if err := tx.InsertUpvote(ctx, &models.Upvote{CitizenUID: actor.ID, ComplaintID: complaintID, CreatedAt: now}); err != nil {
			return err
		}
		var err error
		if count, err = tx.IncrementUpvotes(ctx, complaintID); err != nil {
			return err
		}
		return recordEvent(ctx, tx, "complaint", complaintID, models.EventComplaintUpvoted, map[string]any{
			"complaintId": complaintID,
			"citizenUid":  actor.ID,
			"upvotes":     count,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return &models.UpvoteResult{ComplaintID: complaintID, Upvotes: count}, nil
}
