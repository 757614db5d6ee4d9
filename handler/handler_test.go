package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cityzen/logx"
	"cityzen/middleware"
	"cityzen/models"
)

type mockComplaints struct {
	mock.Mock
}

func (m *mockComplaints) Submit(ctx context.Context, in models.SubmitComplaintInput) (*models.Complaint, error) {
	args := m.Called(ctx, in)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *mockComplaints) GetComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *mockComplaints) GetStatusTimeline(ctx context.Context, id int64) ([]models.ComplaintStatusHistory, error) {
	args := m.Called(ctx, id)
	h, _ := args.Get(0).([]models.ComplaintStatusHistory)
	return h, args.Error(1)
}

func (m *mockComplaints) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	args := m.Called(ctx, f)
	l, _ := args.Get(0).([]models.Complaint)
	return l, args.Error(1)
}

func (m *mockComplaints) AuthorityQueue(ctx context.Context, actor models.Actor, f models.ComplaintFilter) ([]models.Complaint, error) {
	args := m.Called(ctx, actor, f)
	l, _ := args.Get(0).([]models.Complaint)
	return l, args.Error(1)
}

func (m *mockComplaints) UpdateStatus(ctx context.Context, actor models.Actor, in models.StatusUpdateInput) (*models.Complaint, error) {
	args := m.Called(ctx, actor, in)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *mockComplaints) Appeal(ctx context.Context, actor models.Actor, in models.AppealInput) (*models.Complaint, error) {
	args := m.Called(ctx, actor, in)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *mockComplaints) Upvote(ctx context.Context, actor models.Actor, id int64) (*models.UpvoteResult, error) {
	args := m.Called(ctx, actor, id)
	r, _ := args.Get(0).(*models.UpvoteResult)
	return r, args.Error(1)
}

type mockDuplicates struct {
	mock.Mock
}

func (m *mockDuplicates) CheckDuplicate(ctx context.Context, req models.CheckDuplicateRequest) (*models.DuplicateResponse, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*models.DuplicateResponse)
	return r, args.Error(1)
}

func (m *mockDuplicates) Bump(ctx context.Context, actor models.Actor, id int64) (*models.Complaint, error) {
	args := m.Called(ctx, actor, id)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

type mockModeration struct {
	mock.Mock
}

func (m *mockModeration) AddStrike(ctx context.Context, actor models.Actor, req models.StrikeRequest) (*models.StrikeResult, error) {
	args := m.Called(ctx, actor, req)
	r, _ := args.Get(0).(*models.StrikeResult)
	return r, args.Error(1)
}

func (m *mockModeration) Ban(ctx context.Context, actor models.Actor, req models.BanRequest) (*models.BanResult, error) {
	args := m.Called(ctx, actor, req)
	r, _ := args.Get(0).(*models.BanResult)
	return r, args.Error(1)
}

func (m *mockModeration) Unban(ctx context.Context, actor models.Actor, req models.UnbanRequest) error {
	return m.Called(ctx, actor, req).Error(0)
}

func (m *mockModeration) Report(ctx context.Context, actor models.Actor, id int64, req models.ReportRequest) (*models.ComplaintReport, error) {
	args := m.Called(ctx, actor, id, req)
	r, _ := args.Get(0).(*models.ComplaintReport)
	return r, args.Error(1)
}

func (m *mockModeration) ResolveReport(ctx context.Context, actor models.Actor, id int64, req models.ResolveReportRequest) (*models.ComplaintReport, error) {
	args := m.Called(ctx, actor, id, req)
	r, _ := args.Get(0).(*models.ComplaintReport)
	return r, args.Error(1)
}

func (m *mockModeration) DeleteComplaint(ctx context.Context, actor models.Actor, id int64, req models.DeleteComplaintRequest) (*models.StrikeResult, error) {
	args := m.Called(ctx, actor, id, req)
	r, _ := args.Get(0).(*models.StrikeResult)
	return r, args.Error(1)
}

func (m *mockModeration) AdjudicateAppeal(ctx context.Context, actor models.Actor, id int64, req models.AdjudicateAppealRequest) (*models.Complaint, error) {
	args := m.Called(ctx, actor, id, req)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *mockModeration) GetModerationInfo(ctx context.Context, uid string) (*models.ModerationInfo, error) {
	args := m.Called(ctx, uid)
	r, _ := args.Get(0).(*models.ModerationInfo)
	return r, args.Error(1)
}

func (m *mockModeration) ListBanned(ctx context.Context) ([]models.Citizen, error) {
	args := m.Called(ctx)
	l, _ := args.Get(0).([]models.Citizen)
	return l, args.Error(1)
}

func (m *mockModeration) ListReports(ctx context.Context, status *models.ReportStatus) ([]models.ComplaintReport, error) {
	args := m.Called(ctx, status)
	l, _ := args.Get(0).([]models.ComplaintReport)
	return l, args.Error(1)
}

type mockRecommender struct {
	mock.Mock
}

func (m *mockRecommender) Recommend(ctx context.Context, categoryID int64, lat, lon float64) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, categoryID, lat, lon)
	r, _ := args.Get(0).(*models.RecommendationResponse)
	return r, args.Error(1)
}

var (
	citizen   = models.CitizenActor("alice")
	officer   = models.AuthorityActor(10, "officer-7")
	adminUser = models.AdminActor("admin")
)

// as injects actor the way the auth middleware would.
func as(actor models.Actor, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r.WithContext(middleware.WithActor(r.Context(), actor)))
	})
}

type harness struct {
	complaints *mockComplaints
	duplicates *mockDuplicates
	moderation *mockModeration
	router     *mockRecommender
	mux        *mux.Router
}

func newHarness(actor models.Actor) *harness {
	h := &harness{
		complaints: &mockComplaints{},
		duplicates: &mockDuplicates{},
		moderation: &mockModeration{},
		router:     &mockRecommender{},
		mux:        mux.NewRouter(),
	}
	ch := NewComplaintHandler(h.complaints, h.duplicates, 1<<20, logx.Nop())
	ah := NewAuthorityHandler(h.router, h.complaints, logx.Nop())
	mh := NewModerationHandler(h.moderation, logx.Nop())

	h.mux.Handle("/complaints", as(actor, ch.CreateComplaint)).Methods("POST")
	h.mux.Handle("/complaints", as(actor, ch.ListComplaints)).Methods("GET")
	h.mux.Handle("/complaints/check-duplicate", as(actor, ch.CheckDuplicate)).Methods("POST")
	h.mux.Handle("/complaints/recommend-authorities", as(actor, ah.Recommend)).Methods("GET")
	h.mux.Handle("/complaints/reports", as(actor, mh.ListReports)).Methods("GET")
	h.mux.Handle("/complaints/reports/{id:[0-9]+}", as(actor, mh.ResolveReport)).Methods("PATCH")
	h.mux.Handle("/complaints/appeals/{id:[0-9]+}", as(actor, mh.AdjudicateAppeal)).Methods("PATCH")
	h.mux.Handle("/complaints/{id:[0-9]+}", as(actor, ch.GetComplaint)).Methods("GET")
	h.mux.Handle("/complaints/{id:[0-9]+}", as(actor, mh.DeleteComplaint)).Methods("DELETE")
	h.mux.Handle("/complaints/{id:[0-9]+}/status", as(actor, ch.UpdateStatus)).Methods("PATCH")
	h.mux.Handle("/complaints/{id:[0-9]+}/appeal", as(actor, ch.Appeal)).Methods("POST")
	h.mux.Handle("/complaints/{id:[0-9]+}/bump", as(actor, ch.Bump)).Methods("POST")
	h.mux.Handle("/complaints/{id:[0-9]+}/upvote", as(actor, ch.Upvote)).Methods("POST")
	h.mux.Handle("/complaints/{id:[0-9]+}/report", as(actor, mh.Report)).Methods("POST")
	h.mux.Handle("/authority/complaints", as(actor, ah.GetMyComplaints)).Methods("GET")
	h.mux.Handle("/moderation/strike", as(actor, mh.Strike)).Methods("POST")
	h.mux.Handle("/moderation/ban", as(actor, mh.Ban)).Methods("POST")
	h.mux.Handle("/moderation/unban", as(actor, mh.Unban)).Methods("POST")
	h.mux.Handle("/moderation/user/{citizenUid}", as(actor, mh.GetUserModeration)).Methods("GET")
	h.mux.Handle("/moderation/my-strikes", as(actor, mh.MyStrikes)).Methods("GET")
	return h
}

func (h *harness) do(method, target string, body any) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func (h *harness) doForm(method, target string, fields map[string]string, images int) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for i := 0; i < images; i++ {
		part, _ := mw.CreateFormFile("images", "photo.png")
		part.Write([]byte{0x89, 'P', 'N', 'G', byte(i)})
	}
	mw.Close()
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateComplaintParsesMultipart(t *testing.T) {
	h := newHarness(citizen)
	h.complaints.On("Submit", mock.Anything, mock.MatchedBy(func(in models.SubmitComplaintInput) bool {
		return in.CitizenUID == "alice" &&
			in.CategoryID == 3 &&
			in.Title == "Pothole" &&
			in.Latitude == 12.97 &&
			len(in.AuthorityIDs) == 3 &&
			len(in.Images) == 2
	})).Return(&models.Complaint{ID: 42, CurrentStatus: models.StatusPending}, nil)

	rec := h.doForm(http.MethodPost, "/complaints", map[string]string{
		"categoryId":   "3",
		"title":        "Pothole",
		"description":  "Deep pothole near the bus stop",
		"latitude":     "12.97",
		"longitude":    "77.59",
		"authorityIds": "10, 11,12",
	}, 2)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 42, decode(t, rec)["id"])
	h.complaints.AssertExpectations(t)
}

func TestCreateComplaintRejectsJSONBody(t *testing.T) {
	h := newHarness(citizen)
	rec := h.do(http.MethodPost, "/complaints", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	h.complaints.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestCreateComplaintBadCoordinates(t *testing.T) {
	h := newHarness(citizen)
	rec := h.doForm(http.MethodPost, "/complaints", map[string]string{"categoryId": "3", "latitude": "north", "longitude": "1"}, 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["error"])
}

func TestDuplicateReplyCarriesExistingComplaint(t *testing.T) {
	h := newHarness(citizen)
	existing := &models.Complaint{ID: 7, Title: "Streetlight out", CurrentStatus: models.StatusAccepted}
	h.complaints.On("Submit", mock.Anything, mock.Anything).
		Return(nil, &models.DuplicateComplaintError{Existing: existing, CanBump: true})

	rec := h.doForm(http.MethodPost, "/complaints", map[string]string{"categoryId": "1", "latitude": "1", "longitude": "1"}, 1)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["isDuplicate"])
	assert.Equal(t, true, body["canBump"])
	assert.EqualValues(t, 7, body["existingComplaintId"])
	assert.NotNil(t, body["existingComplaint"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"image reuse", &models.ImageReusedError{ComplaintID: 3}, http.StatusBadRequest},
		{"transition", &models.TransitionError{From: models.StatusPending, To: models.StatusResolved}, http.StatusBadRequest},
		{"not found", &models.NotFoundError{Entity: "complaint", ID: 9}, http.StatusNotFound},
		{"banned", models.ErrCitizenBanned, http.StatusForbidden},
		{"forbidden", models.ErrForbidden, http.StatusForbidden},
		{"already upvoted", models.ErrAlreadyUpvoted, http.StatusConflict},
		{"bump", models.ErrBumpNotEligible, http.StatusConflict},
		{"appeal limit", models.ErrAppealLimitReached, http.StatusConflict},
		{"database", &models.DatabaseError{Op: "update complaint", Err: errors.New("gone away")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(citizen)
			h.complaints.On("Upvote", mock.Anything, citizen, int64(5)).Return(nil, tc.err)

			rec := h.do(http.MethodPost, "/complaints/5/upvote", nil)

			assert.Equal(t, tc.code, rec.Code)
			body := decode(t, rec)
			assert.EqualValues(t, tc.code, body["code"])
			if tc.code == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "gone away")
			}
		})
	}
}

func TestImageReuseFlag(t *testing.T) {
	h := newHarness(citizen)
	h.complaints.On("Submit", mock.Anything, mock.Anything).Return(nil, &models.ImageReusedError{ComplaintID: 3})
	rec := h.doForm(http.MethodPost, "/complaints", map[string]string{"categoryId": "1", "latitude": "1", "longitude": "1"}, 1)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, true, decode(t, rec)["isImageReused"])
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	h := newHarness(citizen)
	h.complaints.On("Submit", mock.Anything, mock.Anything).Return(nil, &models.RateLimitError{RetryAfter: 90500 * time.Millisecond})
	rec := h.doForm(http.MethodPost, "/complaints", map[string]string{"categoryId": "1", "latitude": "1", "longitude": "1"}, 1)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "91", rec.Header().Get("Retry-After"))
}

func TestUpdateStatusJSONAndMultipart(t *testing.T) {
	h := newHarness(officer)
	h.complaints.On("UpdateStatus", mock.Anything, officer, models.StatusUpdateInput{
		ComplaintID: 5, Status: models.StatusRejected, Notes: "not civic",
	}).Return(&models.Complaint{ID: 5, CurrentStatus: models.StatusRejected}, nil)
	h.complaints.On("UpdateStatus", mock.Anything, officer, mock.MatchedBy(func(in models.StatusUpdateInput) bool {
		return in.ComplaintID == 6 && in.Status == models.StatusInProgress && len(in.Images) == 1
	})).Return(&models.Complaint{ID: 6, CurrentStatus: models.StatusInProgress}, nil)

	rec := h.do(http.MethodPatch, "/complaints/5/status", map[string]any{"status": "rejected", "notes": "not civic"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.doForm(http.MethodPatch, "/complaints/6/status", map[string]string{"status": "in_progress"}, 1)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPatch, "/complaints/5/status", map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	h.complaints.AssertExpectations(t)
}

func TestCompletionCarriesRating(t *testing.T) {
	h := newHarness(citizen)
	h.complaints.On("UpdateStatus", mock.Anything, citizen, mock.MatchedBy(func(in models.StatusUpdateInput) bool {
		return in.Status == models.StatusCompleted && in.Rating != nil && *in.Rating == 4
	})).Return(&models.Complaint{ID: 5, CurrentStatus: models.StatusCompleted}, nil)

	rec := h.do(http.MethodPatch, "/complaints/5/status", map[string]any{"status": "completed", "rating": 4})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAppealAcceptsJSONReason(t *testing.T) {
	h := newHarness(citizen)
	h.complaints.On("Appeal", mock.Anything, citizen, models.AppealInput{ComplaintID: 8, Reason: "still broken"}).
		Return(&models.Complaint{ID: 8, CurrentStatus: models.StatusAppealed}, nil)

	rec := h.do(http.MethodPost, "/complaints/8/appeal", map[string]any{"reason": "still broken"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "appealed", decode(t, rec)["currentStatus"])
}

func TestCheckDuplicateAndBump(t *testing.T) {
	h := newHarness(citizen)
	req := models.CheckDuplicateRequest{CategoryID: 1, Latitude: 12.9, Longitude: 77.5}
	h.duplicates.On("CheckDuplicate", mock.Anything, req).Return(&models.DuplicateResponse{}, nil)
	h.duplicates.On("Bump", mock.Anything, citizen, int64(4)).Return(nil, models.ErrBumpNotEligible)

	rec := h.do(http.MethodPost, "/complaints/check-duplicate", req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["isDuplicate"])

	rec = h.do(http.MethodPost, "/complaints/4/bump", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListComplaintsFilters(t *testing.T) {
	h := newHarness(citizen)
	cat := int64(2)
	status := models.StatusPending
	h.complaints.On("ListComplaints", mock.Anything, models.ComplaintFilter{CategoryID: &cat, Status: &status, Limit: 20, Offset: 20}).
		Return([]models.Complaint{{ID: 1}}, nil)

	rec := h.do(http.MethodGet, "/complaints?categoryId=2&status=pending&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = h.do(http.MethodGet, "/complaints?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommendRequiresCoordinates(t *testing.T) {
	h := newHarness(citizen)
	h.router.On("Recommend", mock.Anything, int64(1), 12.5, 77.25).Return(&models.RecommendationResponse{
		Authorities: []models.AuthorityRecommendation{{AuthorityID: 10, DistanceKm: 0.4}},
	}, nil)

	rec := h.do(http.MethodGet, "/complaints/recommend-authorities?categoryId=1&latitude=12.5&longitude=77.25", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["fallback"])

	rec = h.do(http.MethodGet, "/complaints/recommend-authorities?categoryId=1&latitude=12.5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorityQueuePassesActor(t *testing.T) {
	h := newHarness(officer)
	h.complaints.On("AuthorityQueue", mock.Anything, officer, models.ComplaintFilter{Limit: 20}).
		Return([]models.Complaint{}, nil)

	rec := h.do(http.MethodGet, "/authority/complaints", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	h.complaints.AssertExpectations(t)
}

func TestModerationEndpoints(t *testing.T) {
	h := newHarness(adminUser)
	h.moderation.On("AddStrike", mock.Anything, adminUser, models.StrikeRequest{CitizenUID: "bob", Reason: "spam"}).
		Return(&models.StrikeResult{CitizenUID: "bob", Strikes: 5, ShouldBan: true}, nil)
	h.moderation.On("Ban", mock.Anything, adminUser, models.BanRequest{CitizenUID: "bob"}).
		Return(nil, models.ErrAlreadyBanned)
	h.moderation.On("Unban", mock.Anything, adminUser, models.UnbanRequest{CitizenUID: "bob"}).Return(nil)
	h.moderation.On("GetModerationInfo", mock.Anything, "bob").
		Return(&models.ModerationInfo{Citizen: models.Citizen{UID: "bob", Strikes: 5}, ShouldBan: true}, nil)

	rec := h.do(http.MethodPost, "/moderation/strike", models.StrikeRequest{CitizenUID: "bob", Reason: "spam"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["shouldBan"])

	rec = h.do(http.MethodPost, "/moderation/ban", models.BanRequest{CitizenUID: "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/moderation/unban", models.UnbanRequest{CitizenUID: "bob"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/moderation/user/bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	h.moderation.AssertExpectations(t)
}

func TestReportAndResolve(t *testing.T) {
	h := newHarness(citizen)
	h.moderation.On("Report", mock.Anything, citizen, int64(3), models.ReportRequest{Reason: "spam_scams"}).
		Return(nil, models.ErrDuplicateReport)
	rec := h.do(http.MethodPost, "/complaints/3/report", models.ReportRequest{Reason: "spam_scams"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	a := newHarness(adminUser)
	a.moderation.On("ResolveReport", mock.Anything, adminUser, int64(9), models.ResolveReportRequest{Action: models.ReportActionDelete}).
		Return(&models.ComplaintReport{ID: 9, Status: models.ReportResolved}, nil)
	rec = a.do(http.MethodPatch, "/complaints/reports/9", models.ResolveReportRequest{Action: models.ReportActionDelete})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/complaints/reports?status=open", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteComplaintWithoutBody(t *testing.T) {
	h := newHarness(adminUser)
	h.moderation.On("DeleteComplaint", mock.Anything, adminUser, int64(12), models.DeleteComplaintRequest{}).
		Return(&models.StrikeResult{CitizenUID: "alice", Strikes: 1}, nil)

	rec := h.do(http.MethodDelete, "/complaints/12", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["deleted"])
}

func TestAdjudicateAppeal(t *testing.T) {
	h := newHarness(adminUser)
	req := models.AdjudicateAppealRequest{Action: models.AppealActionReject, AdminRemarks: "fixed", AddStrike: true}
	h.moderation.On("AdjudicateAppeal", mock.Anything, adminUser, int64(8), req).
		Return(&models.Complaint{ID: 8, CurrentStatus: models.StatusResolved, AppealStatus: models.AppealRejected}, nil)

	rec := h.do(http.MethodPatch, "/complaints/appeals/8", req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decode(t, rec)["appealStatus"])
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(adminUser)
	req := httptest.NewRequest(http.MethodPost, "/moderation/strike", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
