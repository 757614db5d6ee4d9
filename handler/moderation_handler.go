package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"cityzen/logx"
	"cityzen/models"
)

// ModerationOps covers reports, appeal decisions, strikes and bans.
type ModerationOps interface {
	AddStrike(ctx context.Context, actor models.Actor, req models.StrikeRequest) (*models.StrikeResult, error)
	Ban(ctx context.Context, actor models.Actor, req models.BanRequest) (*models.BanResult, error)
	Unban(ctx context.Context, actor models.Actor, req models.UnbanRequest) error
	Report(ctx context.Context, actor models.Actor, complaintID int64, req models.ReportRequest) (*models.ComplaintReport, error)
	ResolveReport(ctx context.Context, actor models.Actor, reportID int64, req models.ResolveReportRequest) (*models.ComplaintReport, error)
	DeleteComplaint(ctx context.Context, actor models.Actor, complaintID int64, req models.DeleteComplaintRequest) (*models.StrikeResult, error)
	AdjudicateAppeal(ctx context.Context, actor models.Actor, complaintID int64, req models.AdjudicateAppealRequest) (*models.Complaint, error)
	GetModerationInfo(ctx context.Context, uid string) (*models.ModerationInfo, error)
	ListBanned(ctx context.Context) ([]models.Citizen, error)
	ListReports(ctx context.Context, status *models.ReportStatus) ([]models.ComplaintReport, error)
}

// ModerationHandler handles admin moderation and citizen reports
type ModerationHandler struct {
	moderation ModerationOps
	log        logx.Logger
}

// NewModerationHandler creates a new moderation handler
func NewModerationHandler(moderation ModerationOps, log logx.Logger) *ModerationHandler {
	return &ModerationHandler{moderation: moderation, log: log}
}

// Report handles POST /api/v1/complaints/{id}/report
func (h *ModerationHandler) Report(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req models.ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	report, err := h.moderation.Report(r.Context(), actor, id, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, report)
}

// ResolveReport handles PATCH /api/v1/complaints/reports/{id}
func (h *ModerationHandler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req models.ResolveReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	report, err := h.moderation.ResolveReport(r.Context(), actor, id, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// ListReports handles GET /api/v1/complaints/reports?status=
func (h *ModerationHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	var status *models.ReportStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := models.ReportStatus(raw)
		if !s.Valid() {
			writeError(w, r, h.log, &models.ValidationError{Field: "status", Message: "unknown report status"})
			return
		}
		status = &s
	}
	reports, err := h.moderation.ListReports(r.Context(), status)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"reports": reports, "count": len(reports)})
}

// AdjudicateAppeal handles PATCH /api/v1/complaints/appeals/{id}
func (h *ModerationHandler) AdjudicateAppeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req models.AdjudicateAppealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	c, err := h.moderation.AdjudicateAppeal(r.Context(), actor, id, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// DeleteComplaint handles DELETE /api/v1/complaints/{id}. The body is optional.
func (h *ModerationHandler) DeleteComplaint(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req models.DeleteComplaintRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, h.log, err)
			return
		}
	}
	res, err := h.moderation.DeleteComplaint(r.Context(), actor, id, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"deleted": true, "complaintId": id, "strike": res})
}

// Strike handles POST /api/v1/moderation/strike
func (h *ModerationHandler) Strike(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	var req models.StrikeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.moderation.AddStrike(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// Ban handles POST /api/v1/moderation/ban
func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	var req models.BanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.moderation.Ban(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// Unban handles POST /api/v1/moderation/unban
func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	var req models.UnbanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.moderation.Unban(r.Context(), actor, req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"citizenUid": req.CitizenUID, "isBanned": false})
}

// GetUserModeration handles GET /api/v1/moderation/user/{citizenUid}
func (h *ModerationHandler) GetUserModeration(w http.ResponseWriter, r *http.Request) {
	h.moderationInfo(w, r, mux.Vars(r)["citizenUid"])
}

// MyStrikes handles GET /api/v1/moderation/my-strikes for the calling citizen.
func (h *ModerationHandler) MyStrikes(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	h.moderationInfo(w, r, actor.ID)
}

func (h *ModerationHandler) moderationInfo(w http.ResponseWriter, r *http.Request, uid string) {
	info, err := h.moderation.GetModerationInfo(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// ListBanned handles GET /api/v1/moderation/banned-users
func (h *ModerationHandler) ListBanned(w http.ResponseWriter, r *http.Request) {
	citizens, err := h.moderation.ListBanned(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"citizens": citizens, "count": len(citizens)})
}
