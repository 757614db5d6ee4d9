package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cityzen/lifecycle"
	"cityzen/logx"
	"cityzen/metrics"
	"cityzen/models"
	"cityzen/repository"
)

const (
	defaultBanReason       = "Accumulated 5 or more strikes for policy violations"
	deletedComplaintReason = "Complaint removed by moderation"
	rejectedAppealReason   = "Appeal rejected by moderation"
)

// ModerationService owns strikes, bans, reports and appeal adjudication.
// Every decision that combines a complaint write with a strike commits as one transaction.
type ModerationService struct {
	store   Store
	machine *lifecycle.Machine
	images  ImageStore
	policy  Policy
	log     logx.Logger
	now     func() time.Time
}

func NewModerationService(store Store, machine *lifecycle.Machine, images ImageStore, policy Policy, log logx.Logger) *ModerationService {
	return &ModerationService{store: store, machine: machine, images: images, policy: policy, log: log, now: time.Now}
}

func requireAdmin(actor models.Actor) error {
	if actor.Type != models.ActorAdmin {
		return models.ErrForbidden
	}
	return nil
}

// AddStrike increments the citizen's strike count. Banning is never automatic.
func (s *ModerationService) AddStrike(ctx context.Context, actor models.Actor, req models.StrikeRequest) (*models.StrikeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.CitizenUID = strings.TrimSpace(req.CitizenUID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.CitizenUID == "" {
		return nil, &models.ValidationError{Field: "citizenUid", Message: "citizen is required"}
	}
	if req.Reason == "" {
		return nil, &models.ValidationError{Field: "reason", Message: "reason is required"}
	}
	now := s.now().UTC()
	var result *models.StrikeResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.EnsureCitizen(ctx, req.CitizenUID); err != nil {
			return err
		}
		var err error
		result, err = s.strike(ctx, tx, actor, req.CitizenUID, req.Reason, req.ComplaintID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logStrike(ctx, result)
	return result, nil
}

// strike is the single write path for strikes. The counter is incremented in
// place so concurrent strikes on one citizen never lose an update.
func (s *ModerationService) strike(ctx context.Context, tx repository.Tx, actor models.Actor, uid, reason string, complaintID *int64, now time.Time) (*models.StrikeResult, error) {
	count, err := tx.IncrementStrikes(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertStrike(ctx, &models.Strike{
		CitizenUID:  uid,
		Reason:      reason,
		ComplaintID: complaintID,
		IssuedBy:    actor.ID,
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}
	citizen, err := tx.GetCitizen(ctx, uid)
	if err != nil {
		return nil, err
	}
	result := &models.StrikeResult{
		CitizenUID: uid,
		Strikes:    count,
		ShouldBan:  count >= s.policy.BanThreshold,
		IsBanned:   citizen.IsBanned,
	}
	payload := map[string]any{"citizenUid": uid, "strikes": count, "reason": reason, "shouldBan": result.ShouldBan}
	if complaintID != nil {
		payload["complaintId"] = *complaintID
	}
	return result, recordEvent(ctx, tx, "citizen", uid, models.EventCitizenStruck, payload, now)
}

func (s *ModerationService) logStrike(ctx context.Context, r *models.StrikeResult) {
	metrics.IncModeration("strike")
	s.log.Info(ctx, "strike_added", "strike issued",
		slog.String("citizen_uid", r.CitizenUID),
		slog.Int("strikes", r.Strikes),
		slog.Bool("should_ban", r.ShouldBan))
}

// Ban suspends a citizen. Strikes are left as they are.
func (s *ModerationService) Ban(ctx context.Context, actor models.Actor, req models.BanRequest) (*models.BanResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	uid := strings.TrimSpace(req.CitizenUID)
	if uid == "" {
		return nil, &models.ValidationError{Field: "citizenUid", Message: "citizen is required"}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultBanReason
	}
	now := s.now().UTC().Truncate(time.Second)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.EnsureCitizen(ctx, uid); err != nil {
			return err
		}
		c, err := tx.LockCitizen(ctx, uid)
		if err != nil {
			return err
		}
		if c.IsBanned {
			return models.ErrAlreadyBanned
		}
		if err := tx.SetBan(ctx, uid, &now, &reason); err != nil {
			return err
		}
		return recordEvent(ctx, tx, "citizen", uid, models.EventCitizenBanned, map[string]any{
			"citizenUid": uid, "bannedAt": now, "banReason": reason, "strikes": c.Strikes,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncModeration("ban")
	s.log.Warn(ctx, "citizen_banned", "citizen banned", slog.String("citizen_uid", uid), slog.String("admin_id", actor.ID))
	return &models.BanResult{CitizenUID: uid, BannedAt: now, BanReason: reason}, nil
}

// Unban clears the ban fields and keeps the strike history.
func (s *ModerationService) Unban(ctx context.Context, actor models.Actor, req models.UnbanRequest) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	uid := strings.TrimSpace(req.CitizenUID)
	if uid == "" {
		return &models.ValidationError{Field: "citizenUid", Message: "citizen is required"}
	}
	now := s.now().UTC()
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCitizen(ctx, uid)
		if err != nil {
			return err
		}
		if !c.IsBanned {
			return models.ErrNotBanned
		}
		if err := tx.SetBan(ctx, uid, nil, nil); err != nil {
			return err
		}
		return recordEvent(ctx, tx, "citizen", uid, models.EventCitizenUnbanned, map[string]any{
			"citizenUid": uid, "strikes": c.Strikes,
		}, now)
	})
	if err != nil {
		return err
	}
	metrics.IncModeration("unban")
	s.log.Info(ctx, "citizen_unbanned", "citizen unbanned", slog.String("citizen_uid", uid), slog.String("admin_id", actor.ID))
	return nil
}

// Report files a report against a complaint; one per reporter and complaint.
func (s *ModerationService) Report(ctx context.Context, actor models.Actor, complaintID int64, req models.ReportRequest) (*models.ComplaintReport, error) {
	if actor.Type != models.ActorCitizen {
		return nil, models.ErrForbidden
	}
	reason, err := models.ParseReportReason(req.Reason)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	report := &models.ComplaintReport{
		ComplaintID: &complaintID,
		ReportedBy:  actor.ID,
		Reason:      reason,
		Status:      models.ReportPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		report.Description = &d
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := requireActiveCitizen(ctx, tx, actor.ID); err != nil {
			return err
		}
		if _, err := tx.GetComplaint(ctx, complaintID); err != nil {
			return err
		}
		if err := tx.InsertReport(ctx, report); err != nil {
			return err
		}
		return recordEvent(ctx, tx, "report", report.ID, models.EventReportCreated, map[string]any{
			"reportId": report.ID, "complaintId": complaintID, "reason": reason,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncModeration("report")
	s.log.Info(ctx, "report_created", "complaint reported",
		slog.Int64("report_id", report.ID), slog.Int64("complaint_id", complaintID), slog.String("reason", string(reason)))
	return report, nil
}

// ResolveReport dismisses a report or deletes its complaint in whatever status it
// is in. A delete also strikes the complaint's author in the same transaction.
func (s *ModerationService) ResolveReport(ctx context.Context, actor models.Actor, reportID int64, req models.ResolveReportRequest) (*models.ComplaintReport, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Action != models.ReportActionDismiss && req.Action != models.ReportActionDelete {
		return nil, &models.ValidationError{Field: "action", Message: "action must be dismiss or delete"}
	}
	now := s.now().UTC()
	var (
		report *models.ComplaintReport
		struck *models.StrikeResult
		urls   []string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		if report, err = tx.LockReport(ctx, reportID); err != nil {
			return err
		}
		if !report.Status.Open() {
			return models.ErrReportClosed
		}
		report.Status = models.ReportDismissed
		if req.Action == models.ReportActionDelete {
			if report.ComplaintID == nil {
				return notFoundComplaint(0)
			}
			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				reason = "Reported for " + string(report.Reason)
			}
			if struck, urls, err = s.deleteWithStrike(ctx, tx, actor, *report.ComplaintID, reason, lifecycle.ReportDelete, now); err != nil {
				return err
			}
			report.Status = models.ReportResolved
			report.ComplaintID = nil
		}
		admin := actor.ID
		report.ResolvedBy = &admin
		report.UpdatedAt = now
		if err := tx.UpdateReport(ctx, report); err != nil {
			return err
		}
		return recordEvent(ctx, tx, "report", report.ID, models.EventReportResolved, map[string]any{
			"reportId": report.ID, "action": req.Action, "status": report.Status,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	discardImages(s.images, urls)
	metrics.IncModeration("report_" + string(req.Action))
	if struck != nil {
		s.logStrike(ctx, struck)
	}
	s.log.Info(ctx, "report_resolved", "report resolved",
		slog.Int64("report_id", reportID), slog.String("action", string(req.Action)))
	return report, nil
}

// DeleteComplaint removes a non-terminal complaint and strikes its author.
func (s *ModerationService) DeleteComplaint(ctx context.Context, actor models.Actor, complaintID int64, req models.DeleteComplaintRequest) (*models.StrikeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = deletedComplaintReason
	}
	now := s.now().UTC()
	var (
		struck *models.StrikeResult
		urls   []string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		struck, urls, err = s.deleteWithStrike(ctx, tx, actor, complaintID, reason, lifecycle.DirectDelete, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	discardImages(s.images, urls)
	metrics.IncModeration("delete")
	s.logStrike(ctx, struck)
	s.log.Warn(ctx, "complaint_deleted", "complaint removed by moderation",
		slog.Int64("complaint_id", complaintID), slog.String("admin_id", actor.ID))
	return struck, nil
}

// deleteWithStrike returns the image URLs of the removed complaint so their
// files can be cleaned up once the transaction commits.
func (s *ModerationService) deleteWithStrike(ctx context.Context, tx repository.Tx, actor models.Actor, complaintID int64, reason string, src lifecycle.DeleteSource, now time.Time) (*models.StrikeResult, []string, error) {
	c, err := tx.LockComplaint(ctx, complaintID)
	if err != nil {
		return nil, nil, err
	}
	if err := lifecycle.CheckDeletable(c, actor, src); err != nil {
		return nil, nil, err
	}
	images, err := tx.ListImages(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.CloseOpenReports(ctx, c.ID, models.ReportResolved, actor.ID, now); err != nil {
		return nil, nil, err
	}
	if err := tx.DeleteComplaint(ctx, c.ID); err != nil {
		return nil, nil, err
	}
	if err := recordEvent(ctx, tx, "complaint", c.ID, models.EventComplaintDeleted, map[string]any{
		"complaintId": c.ID, "citizenUid": c.CitizenUID, "status": c.CurrentStatus, "reason": reason,
	}, now); err != nil {
		return nil, nil, err
	}
	// The strike does not reference the complaint row, which no longer exists.
	struck, err := s.strike(ctx, tx, actor, c.CitizenUID, reason, nil, now)
	if err != nil {
		return nil, nil, err
	}
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, img.URL)
	}
	return struck, urls, nil
}

// AdjudicateAppeal approves or rejects a pending appeal. A rejection may carry a
// strike, written in the same transaction as the status change.
func (s *ModerationService) AdjudicateAppeal(ctx context.Context, actor models.Actor, complaintID int64, req models.AdjudicateAppealRequest) (*models.Complaint, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Action != models.AppealActionApprove && req.Action != models.AppealActionReject {
		return nil, &models.ValidationError{Field: "action", Message: "action must be approve or reject"}
	}
	if req.AddStrike && req.Action != models.AppealActionReject {
		return nil, &models.ValidationError{Field: "addStrike", Message: "a strike can only accompany a rejection"}
	}
	now := s.now().UTC()
	var (
		updated *models.Complaint
		change  lifecycle.Change
		struck  *models.StrikeResult
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		if req.Action == models.AppealActionApprove {
			change, err = s.machine.ApproveAppeal(c, actor, req.AdminRemarks, now)
		} else {
			change, err = s.machine.RejectAppeal(c, actor, req.AdminRemarks, now)
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateComplaint(ctx, c); err != nil {
			return err
		}
		from := change.From
		if err := tx.InsertStatusHistory(ctx, historyRow(c.ID, &from, change.To, actor, "appeal "+string(c.AppealStatus), now)); err != nil {
			return err
		}
		if req.AddStrike {
			reason := strings.TrimSpace(req.AdminRemarks)
			if reason == "" {
				reason = rejectedAppealReason
			}
			id := c.ID
			if struck, err = s.strike(ctx, tx, actor, c.CitizenUID, reason, &id, now); err != nil {
				return err
			}
		}
		updated = c
		return recordEvent(ctx, tx, "complaint", c.ID, models.EventAppealAdjudicated, map[string]any{
			"complaintId":  c.ID,
			"action":       req.Action,
			"from":         change.From,
			"to":           change.To,
			"appealStatus": c.AppealStatus,
			"strike":       req.AddStrike,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(change.From), string(change.To))
	metrics.IncModeration("appeal_" + string(req.Action))
	if struck != nil {
		s.logStrike(ctx, struck)
	}
	s.log.Info(ctx, "appeal_adjudicated", "appeal decided",
		slog.Int64("complaint_id", complaintID),
		slog.String("action", string(req.Action)),
		slog.String("status", string(change.To)))
	return updated, nil
}

// GetModerationInfo returns a citizen's standing and strike ledger. A uid with
// no row yet has a clean record.
func (s *ModerationService) GetModerationInfo(ctx context.Context, uid string) (*models.ModerationInfo, error) {
	var info *models.ModerationInfo
	err := s.store.View(ctx, func(tx repository.Tx) error {
		c, err := tx.GetCitizen(ctx, uid)
		if errors.Is(err, models.ErrNotFound) {
			info = &models.ModerationInfo{Citizen: models.Citizen{UID: uid}, History: []models.Strike{}}
			return nil
		}
		if err != nil {
			return err
		}
		history, err := tx.ListStrikes(ctx, uid)
		if err != nil {
			return err
		}
		if history == nil {
			history = []models.Strike{}
		}
		info = &models.ModerationInfo{Citizen: *c, ShouldBan: c.Strikes >= s.policy.BanThreshold, History: history}
		return nil
	})
	return info, err
}

func (s *ModerationService) ListBanned(ctx context.Context) ([]models.Citizen, error) {
	out := []models.Citizen{}
	err := s.store.View(ctx, func(tx repository.Tx) error {
		banned, err := tx.ListBannedCitizens(ctx)
		if banned != nil {
			out = banned
		}
		return err
	})
	return out, err
}

// ListReports returns reports, optionally narrowed to one status, newest first.
func (s *ModerationService) ListReports(ctx context.Context, status *models.ReportStatus) ([]models.ComplaintReport, error) {
	out := []models.ComplaintReport{}
	err := s.store.View(ctx, func(tx repository.Tx) error {
		reports, err := tx.ListReports(ctx, status)
		if reports != nil {
			out = reports
		}
		return err
	})
	return out, err
}

func notFoundComplaint(id int64) error {
	return &models.NotFoundError{Entity: "complaint", ID: id}
}
