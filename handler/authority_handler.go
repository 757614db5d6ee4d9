package handler

import (
	"context"
	"net/http"

	"cityzen/logx"
	"cityzen/models"
)

// Recommender ranks the authorities that can take a complaint at a point.
type Recommender interface {
	Recommend(ctx context.Context, categoryID int64, lat, lon float64) (*models.RecommendationResponse, error)
}

// AuthorityHandler handles routing recommendations and the authority work queue
type AuthorityHandler struct {
	router     Recommender
	complaints ComplaintOps
	log        logx.Logger
}

// NewAuthorityHandler creates a new authority handler
func NewAuthorityHandler(router Recommender, complaints ComplaintOps, log logx.Logger) *AuthorityHandler {
	return &AuthorityHandler{router: router, complaints: complaints, log: log}
}

// Recommend handles GET /api/v1/complaints/recommend-authorities?categoryId=&latitude=&longitude=
func (h *AuthorityHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	categoryID, err := queryInt(r, "categoryId")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if categoryID == nil {
		writeError(w, r, h.log, &models.ValidationError{Field: "categoryId", Message: "is required"})
		return
	}
	lat, err := queryFloat(r, "latitude")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	lon, err := queryFloat(r, "longitude")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	resp, err := h.router.Recommend(r.Context(), *categoryID, lat, lon)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetMyComplaints handles GET /api/v1/authority/complaints?status=&page=1&page_size=20
// (only complaints assigned to the caller's authority).
func (h *AuthorityHandler) GetMyComplaints(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	var f models.ComplaintFilter
	var err error
	if f.Status, err = queryStatus(r); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	page, pageSize := queryPage(r, &f)
	list, err := h.complaints.AuthorityQueue(r.Context(), actor, f)
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
