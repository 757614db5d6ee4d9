package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"cityzen/logx"
	"cityzen/models"
)

// ComplaintOps is the complaint lifecycle surface the handlers drive.
type ComplaintOps interface {
	Submit(ctx context.Context, in models.SubmitComplaintInput) (*models.Complaint, error)
	GetComplaint(ctx context.Context, id int64) (*models.Complaint, error)
	GetStatusTimeline(ctx context.Context, id int64) ([]models.ComplaintStatusHistory, error)
	ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error)
	AuthorityQueue(ctx context.Context, actor models.Actor, f models.ComplaintFilter) ([]models.Complaint, error)
	UpdateStatus(ctx context.Context, actor models.Actor, in models.StatusUpdateInput) (*models.Complaint, error)
	Appeal(ctx context.Context, actor models.Actor, in models.AppealInput) (*models.Complaint, error)
	Upvote(ctx context.Context, actor models.Actor, complaintID int64) (*models.UpvoteResult, error)
}

// DuplicateOps serves the pre-flight collision check and bumps.
type DuplicateOps interface {
	CheckDuplicate(ctx context.Context, req models.CheckDuplicateRequest) (*models.DuplicateResponse, error)
	Bump(ctx context.Context, actor models.Actor, complaintID int64) (*models.Complaint, error)
}

// ComplaintHandler handles HTTP requests for complaints
type ComplaintHandler struct {
	complaints ComplaintOps
	duplicates DuplicateOps
	maxBytes   int64
	log        logx.Logger
}

// NewComplaintHandler creates a new complaint handler
func NewComplaintHandler(complaints ComplaintOps, duplicates DuplicateOps, maxBytes int64, log logx.Logger) *ComplaintHandler {
	return &ComplaintHandler{complaints: complaints, duplicates: duplicates, maxBytes: maxBytes, log: log}
}

type statusUpdateBody struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
	Rating *int   `json:"rating"`
}

type appealBody struct {
	Reason string `json:"reason"`
}

// CreateComplaint handles POST /api/v1/complaints (multipart: fields plus "images" parts).
func (h *ComplaintHandler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	if !isMultipart(r) {
		respondWithError(w, http.StatusBadRequest, "validation_error", "multipart/form-data body required")
		return
	}
	if err := parseMultipart(w, r, h.maxBytes); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	in, err := submissionFromForm(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	in.CitizenUID = actor.ID
	if in.Images, err = readImages(r, h.maxBytes); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	c, err := h.complaints.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, c)
}

func submissionFromForm(r *http.Request) (models.SubmitComplaintInput, error) {
	in := models.SubmitComplaintInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	var err error
	if in.CategoryID, err = formInt(r, "categoryId"); err != nil {
		return in, err
	}
	if in.Latitude, err = formFloat(r, "latitude"); err != nil {
		return in, err
	}
	if in.Longitude, err = formFloat(r, "longitude"); err != nil {
		return in, err
	}
	// Accept both repeated fields and a single comma-separated value.
	for _, raw := range r.MultipartForm.Value["authorityIds"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return in, &models.ValidationError{Field: "authorityIds", Message: "must be integers"}
			}
			in.AuthorityIDs = append(in.AuthorityIDs, id)
		}
	}
	return in, nil
}

func formInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(name)), 10, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Message: "must be an integer"}
	}
	return v, nil
}

func formFloat(r *http.Request, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(name)), 64)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Message: "must be a number"}
	}
	return v, nil
}

// CheckDuplicate handles POST /api/v1/complaints/check-duplicate
func (h *ComplaintHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req models.CheckDuplicateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	resp, err := h.duplicates.CheckDuplicate(r.Context(), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// Bump handles POST /api/v1/complaints/{id}/bump
func (h *ComplaintHandler) Bump(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	c, err := h.duplicates.Bump(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// GetComplaint handles GET /api/v1/complaints/{id}
func (h *ComplaintHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	c, err := h.complaints.GetComplaint(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// GetStatusTimeline handles GET /api/v1/complaints/{id}/timeline
func (h *ComplaintHandler) GetStatusTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	history, err := h.complaints.GetStatusTimeline(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"complaintId": id, "timeline": history})
}

// ListComplaints handles GET /api/v1/complaints?categoryId=&status=
func (h *ComplaintHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	var f models.ComplaintFilter
	var err error
	if f.CategoryID, err = queryInt(r, "categoryId"); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if f.Status, err = queryStatus(r); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	page, pageSize := queryPage(r, &f)
	list, err := h.complaints.ListComplaints(r.Context(), f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"complaints": list,
		"count":      len(list),
		"page":       page,
		"page_size":  pageSize,
	})
}

// UpdateStatus handles PATCH /api/v1/complaints/{id}/status. Evidence-carrying
// transitions arrive as multipart with "images" parts; the rest may be JSON.
func (h *ComplaintHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	in := models.StatusUpdateInput{ComplaintID: id}
	var body statusUpdateBody
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxBytes); err != nil {
			writeError(w, r, h.log, err)
			return
		}
		body.Status = r.FormValue("status")
		body.Notes = r.FormValue("notes")
		if raw := strings.TrimSpace(r.FormValue("rating")); raw != "" {
			rating, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, h.log, &models.ValidationError{Field: "rating", Message: "must be an integer"})
				return
			}
			body.Rating = &rating
		}
		if in.Images, err = readImages(r, h.maxBytes); err != nil {
			writeError(w, r, h.log, err)
			return
		}
	} else if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if in.Status, err = models.ParseComplaintStatus(body.Status); err != nil {
		writeError(w, r, h.log, &models.ValidationError{Field: "status", Message: err.Error()})
		return
	}
	in.Notes = body.Notes
	in.Rating = body.Rating

	c, err := h.complaints.UpdateStatus(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// Appeal handles POST /api/v1/complaints/{id}/appeal
func (h *ComplaintHandler) Appeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	in := models.AppealInput{ComplaintID: id}
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxBytes); err != nil {
			writeError(w, r, h.log, err)
			return
		}
		in.Reason = r.FormValue("reason")
		if in.Images, err = readImages(r, h.maxBytes); err != nil {
			writeError(w, r, h.log, err)
			return
		}
	} else {
		var body appealBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, h.log, err)
			return
		}
		in.Reason = body.Reason
	}

	c, err := h.complaints.Appeal(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// Upvote handles POST /api/v1/complaints/{id}/upvote
func (h *ComplaintHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.complaints.Upvote(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
