package service

import (
	"context"
	"log/slog"
	"time"

	"cityzen/geo"
	"cityzen/logx"
	"cityzen/metrics"
	"cityzen/models"
	"cityzen/repository"
)

// DuplicateService serves the pre-flight check and the bump action.
type DuplicateService struct {
	store     Store
	evaluator *DuplicateEvaluator
	log       logx.Logger
	now       func() time.Time
}

func NewDuplicateService(store Store, evaluator *DuplicateEvaluator, log logx.Logger) *DuplicateService {
	return &DuplicateService{store: store, evaluator: evaluator, log: log, now: time.Now}
}

// CheckDuplicate runs the collision rules without writing anything.
func (s *DuplicateService) CheckDuplicate(ctx context.Context, req models.CheckDuplicateRequest) (*models.DuplicateResponse, error) {
	if req.CategoryID <= 0 {
		return nil, &models.ValidationError{Field: "categoryId", Message: "category is required"}
	}
	if !geo.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, &models.ValidationError{Field: "latitude", Message: "coordinates out of range"}
	}
	var decision Decision
	err := s.store.View(ctx, func(tx repository.Tx) error {
		candidates, err := tx.FindOpenComplaintsInBox(ctx, req.CategoryID, geo.BoxAround(req.Latitude, req.Longitude, s.evaluator.RadiusKm()))
		if err != nil {
			return err
		}
		decision = s.evaluator.Evaluate(candidates, req.CategoryID, req.Latitude, req.Longitude, s.now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return duplicateResponse(decision), nil
}

// Bump resets a stale complaint's bump clock. Status and assignments are untouched.
func (s *DuplicateService) Bump(ctx context.Context, actor models.Actor, complaintID int64) (*models.Complaint, error) {
	now := s.now().UTC()
	var bumped *models.Complaint
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := requireActiveCitizen(ctx, tx, actor.ID); err != nil {
			return err
		}
		c, err := tx.LockComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		if !c.CurrentStatus.Open() || !s.evaluator.IsStale(c, now) || !s.evaluator.BumpEligible(c, now) {
			return models.ErrBumpNotEligible
		}
		c.LastBumpedAt = &now
		c.UpdatedAt = now
		if err := tx.UpdateComplaint(ctx, c); err != nil {
			return err
		}
		bumped = c
		return recordEvent(ctx, tx, "complaint", c.ID, models.EventComplaintBumped, map[string]any{
			"complaintId": c.ID,
			"bumpedBy":    actor.ID,
			"bumpedAt":    now,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncBump()
	s.log.Info(ctx, "complaint_bumped", "stale complaint bumped",
		slog.Int64("complaint_id", complaintID), slog.String("citizen_uid", actor.ID))
	return bumped, nil
}

func duplicateResponse(d Decision) *models.DuplicateResponse {
	resp := &models.DuplicateResponse{}
	if d.Existing == nil {
		return resp
	}
	id := d.Existing.ID
	resp.IsDuplicate = true
	resp.CanBump = d.Outcome == OutcomeOfferBump
	resp.ExistingComplaint = d.Existing
	resp.ExistingComplaintID = &id
	if resp.CanBump {
		resp.Message = "A similar complaint has had no authority activity for a while. You can bump it instead of filing a new one."
	} else {
		resp.Message = "A similar complaint is already open nearby. Track it instead of filing a new one."
	}
	return resp
}
