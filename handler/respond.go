package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cityzen/logx"
	"cityzen/middleware"
	"cityzen/models"
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	response := models.ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	}
	respondWithJSON(w, statusCode, response)
}

// writeError maps a service error onto its HTTP reply. Anything unrecognised is a 500
// and the cause is logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, log logx.Logger, err error) {
	var (
		verr  *models.ValidationError
		dup   *models.DuplicateComplaintError
		reuse *models.ImageReusedError
		rate  *models.RateLimitError
		terr  *models.TransitionError
		dbErr *models.DatabaseError
	)
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.As(err, &dup):
		id := dup.Existing.ID
		respondWithJSON(w, http.StatusConflict, duplicateBody{
			Error:               "duplicate_complaint",
			Message:             dup.Error(),
			Code:                http.StatusConflict,
			IsDuplicate:         true,
			CanBump:             dup.CanBump,
			ExistingComplaint:   dup.Existing,
			ExistingComplaintID: id,
		})
	case errors.As(err, &reuse):
		respondWithJSON(w, http.StatusBadRequest, imageReusedBody{
			ErrorResponse:  models.ErrorResponse{Error: "image_reused", Message: "This image has already been used in another complaint", Code: http.StatusBadRequest},
			IsImageReused:  true,
			ExistingFromID: reuse.ComplaintID,
		})
	case errors.As(err, &rate):
		secs := int(math.Ceil(rate.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		respondWithError(w, http.StatusTooManyRequests, "rate_limited", rate.Error())
	case errors.As(err, &terr):
		respondWithError(w, http.StatusBadRequest, "invalid_status_transition", terr.Error())
	case errors.Is(err, models.ErrInvalidStatusTransition):
		respondWithError(w, http.StatusBadRequest, "invalid_status_transition", err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrCitizenBanned):
		respondWithError(w, http.StatusForbidden, "citizen_banned", "Your account has been banned")
	case errors.Is(err, models.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, models.ErrDuplicateReport),
		errors.Is(err, models.ErrAlreadyUpvoted),
		errors.Is(err, models.ErrBumpNotEligible),
		errors.Is(err, models.ErrAppealLimitReached),
		errors.Is(err, models.ErrAlreadyBanned),
		errors.Is(err, models.ErrNotBanned),
		errors.Is(err, models.ErrReportClosed):
		respondWithError(w, http.StatusConflict, "conflict", err.Error())
	default:
		attrs := []slog.Attr{slog.String("path", r.URL.Path), slog.String("error", err.Error())}
		if errors.As(err, &dbErr) {
			attrs = append(attrs, slog.String("op", dbErr.Op))
		}
		log.Error(r.Context(), "request_failed", "internal error", attrs...)
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Something went wrong, please try again")
	}
}

type duplicateBody struct {
	Error               string            `json:"error"`
	Message             string            `json:"message"`
	Code                int               `json:"code"`
	IsDuplicate         bool              `json:"isDuplicate"`
	CanBump             bool              `json:"canBump"`
	ExistingComplaint   *models.Complaint `json:"existingComplaint"`
	ExistingComplaintID int64             `json:"existingComplaintId"`
}

type imageReusedBody struct {
	models.ErrorResponse
	IsImageReused  bool  `json:"isImageReused"`
	ExistingFromID int64 `json:"existingComplaintId"`
}

func actorFrom(r *http.Request) (models.Actor, bool) {
	return middleware.ActorFromContext(r.Context())
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &models.ValidationError{Field: name, Message: "invalid id"}
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &models.ValidationError{Message: "request body is required"}
		}
		return &models.ValidationError{Message: "invalid request body"}
	}
	return nil
}

func queryInt(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &models.ValidationError{Field: name, Message: "must be an integer"}
	}
	return &v, nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, &models.ValidationError{Field: name, Message: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Message: "must be a number"}
	}
	return v, nil
}

func queryStatus(r *http.Request) (*models.ComplaintStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	s, err := models.ParseComplaintStatus(raw)
	if err != nil {
		return nil, &models.ValidationError{Field: "status", Message: err.Error()}
	}
	return &s, nil
}

// queryPage reads page and page_size, defaulting to the first 20 rows and capping the page at 100.
func queryPage(r *http.Request, f *models.ComplaintFilter) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize
	return page, pageSize
}

// readImages collects every file part under "images" from a multipart request.
func readImages(r *http.Request, maxBytes int64) ([]models.ImageUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File["images"]
	out := make([]models.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxBytes {
			return nil, &models.ValidationError{Field: "images", Message: "image too large"}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, &models.ValidationError{Field: "images", Message: "unreadable image"}
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil {
			return nil, &models.ValidationError{Field: "images", Message: "unreadable image"}
		}
		out = append(out, models.ImageUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return out, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return &models.ValidationError{Message: "invalid multipart form"}
	}
	return nil
}
