package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cityzen/geo"
	"cityzen/models"
	"cityzen/repository"
)

// memState is an in-memory stand-in for the MySQL schema used by service tests.
type memState struct {
	nextID        int64
	categories    map[int64]bool
	authorityCats map[int64]map[int64]bool
	complaints    map[int64]models.Complaint
	images        []models.ComplaintImage
	assignments   map[int64][]int64
	history       []models.ComplaintStatusHistory
	upvotes       map[string]bool
	citizens      map[string]models.Citizen
	strikes       []models.Strike
	reports       []models.ComplaintReport
	outbox        []models.OutboxEvent
	lockedCells   []string
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:        s.nextID,
		categories:    make(map[int64]bool, len(s.categories)),
		authorityCats: make(map[int64]map[int64]bool, len(s.authorityCats)),
		complaints:    make(map[int64]models.Complaint, len(s.complaints)),
		images:        append([]models.ComplaintImage(nil), s.images...),
		assignments:   make(map[int64][]int64, len(s.assignments)),
		history:       append([]models.ComplaintStatusHistory(nil), s.history...),
		upvotes:       make(map[string]bool, len(s.upvotes)),
		citizens:      make(map[string]models.Citizen, len(s.citizens)),
		strikes:       append([]models.Strike(nil), s.strikes...),
		reports:       append([]models.ComplaintReport(nil), s.reports...),
		outbox:        append([]models.OutboxEvent(nil), s.outbox...),
		lockedCells:   append([]string(nil), s.lockedCells...),
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.authorityCats {
		cats := make(map[int64]bool, len(v))
		for cat := range v {
			cats[cat] = true
		}
		c.authorityCats[k] = cats
	}
	for k, v := range s.complaints {
		c.complaints[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = append([]int64(nil), v...)
	}
	for k, v := range s.upvotes {
		c.upvotes[k] = v
	}
	for k, v := range s.citizens {
		c.citizens[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memStore serializes transactions and restores a snapshot when fn fails,
// which mirrors the row locks and rollback of the real store.
type memStore struct {
	mu     sync.Mutex
	st     *memState
	failOn string
}

func newMemStore() *memStore {
	return &memStore{st: &memState{
		categories:    map[int64]bool{},
		authorityCats: map[int64]map[int64]bool{},
		complaints:    map[int64]models.Complaint{},
		assignments:   map[int64][]int64{},
		upvotes:       map[string]bool{},
		citizens:      map[string]models.Citizen{},
	}}
}

func (m *memStore) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.st = snap
		return err
	}
	return nil
}

func (m *memStore) View(ctx context.Context, fn func(repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{m: m})
}

func (m *memStore) addCategory(id int64) {
	m.st.categories[id] = true
}

func (m *memStore) addAuthority(id int64, categories ...int64) {
	cats := map[int64]bool{}
	for _, c := range categories {
		cats[c] = true
	}
	m.st.authorityCats[id] = cats
}

func (m *memStore) addCitizen(uid string) {
	m.st.citizens[uid] = models.Citizen{UID: uid, Name: uid, CreatedAt: time.Now().UTC()}
}

func (m *memStore) complaintCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.complaints)
}

func (m *memStore) complaint(id int64) (models.Complaint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.complaints[id]
	return c, ok
}

func (m *memStore) citizen(uid string) models.Citizen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.citizens[uid]
}

func (m *memStore) events(eventType string) []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, e := range m.st.outbox {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) report(id int64) models.ComplaintReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.st.reports {
		if r.ID == id {
			return r
		}
	}
	return models.ComplaintReport{}
}

type memTx struct {
	m *memStore
}

func (t *memTx) st() *memState { return t.m.st }

func (t *memTx) fail(op string) error {
	if t.m.failOn == op {
		return &models.DatabaseError{Op: op, Err: errors.New("injected failure")}
	}
	return nil
}

func (t *memTx) CategoryExists(ctx context.Context, categoryID int64) (bool, error) {
	return t.st().categories[categoryID], nil
}

func (t *memTx) LockCells(ctx context.Context, keys []string) error {
	t.st().lockedCells = append(t.st().lockedCells, keys...)
	return nil
}

func (t *memTx) FindOpenComplaintsInBox(ctx context.Context, categoryID int64, box geo.BoundingBox) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range t.st().complaints {
		if c.CategoryID != categoryID || !c.CurrentStatus.Open() {
			continue
		}
		if !box.Contains(c.Latitude, c.Longitude) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) FindImageOwner(ctx context.Context, fingerprint string, excludeComplaintID int64) (int64, bool, error) {
	for _, img := range t.st().images {
		if img.Fingerprint == fingerprint && img.ComplaintID != excludeComplaintID {
			return img.ComplaintID, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) CountSubmissionsSince(ctx context.Context, citizenUID string, since time.Time) (int, error) {
	n := 0
	for _, c := range t.st().complaints {
		if c.CitizenUID == citizenUID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertComplaint(ctx context.Context, c *models.Complaint) error {
	if err := t.fail("InsertComplaint"); err != nil {
		return err
	}
	c.ID = t.st().id()
	stored := *c
	stored.Images, stored.Authorities = nil, nil
	t.st().complaints[c.ID] = stored
	return nil
}

func (t *memTx) InsertImage(ctx context.Context, img *models.ComplaintImage) error {
	if err := t.fail("InsertImage"); err != nil {
		return err
	}
	img.ID = t.st().id()
	t.st().images = append(t.st().images, *img)
	return nil
}

func (t *memTx) InsertAssignments(ctx context.Context, complaintID int64, authorityIDs []int64, at time.Time) error {
	if err := t.fail("InsertAssignments"); err != nil {
		return err
	}
	t.st().assignments[complaintID] = append(t.st().assignments[complaintID], authorityIDs...)
	return nil
}

func (t *memTx) InsertStatusHistory(ctx context.Context, h *models.ComplaintStatusHistory) error {
	h.ID = t.st().id()
	t.st().history = append(t.st().history, *h)
	return nil
}

func (t *memTx) GetComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	c, ok := t.st().complaints[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "complaint", ID: id}
	}
	return &c, nil
}

func (t *memTx) LockComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	return t.GetComplaint(ctx, id)
}

func (t *memTx) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	if err := t.fail("UpdateComplaint"); err != nil {
		return err
	}
	if _, ok := t.st().complaints[c.ID]; !ok {
		return &models.NotFoundError{Entity: "complaint", ID: c.ID}
	}
	stored := *c
	stored.Images, stored.Authorities = nil, nil
	t.st().complaints[c.ID] = stored
	return nil
}

func (t *memTx) DeleteComplaint(ctx context.Context, id int64) error {
	if err := t.fail("DeleteComplaint"); err != nil {
		return err
	}
	st := t.st()
	if _, ok := st.complaints[id]; !ok {
		return &models.NotFoundError{Entity: "complaint", ID: id}
	}
	delete(st.complaints, id)
	delete(st.assignments, id)
	images := st.images[:0]
	for _, img := range st.images {
		if img.ComplaintID != id {
			images = append(images, img)
		}
	}
	st.images = images
	for i := range st.reports {
		if r := st.reports[i].ComplaintID; r != nil && *r == id {
			st.reports[i].ComplaintID = nil
		}
	}
	return nil
}

func (t *memTx) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range t.st().complaints {
		if f.CategoryID != nil && c.CategoryID != *f.CategoryID {
			continue
		}
		if f.Status != nil && c.CurrentStatus != *f.Status {
			continue
		}
		if f.AuthorityID != nil && !contains(t.st().assignments[c.ID], *f.AuthorityID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ForwardedByAdmin != out[j].ForwardedByAdmin {
			return out[i].ForwardedByAdmin
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) ListImages(ctx context.Context, complaintID int64) ([]models.ComplaintImage, error) {
	var out []models.ComplaintImage
	for _, img := range t.st().images {
		if img.ComplaintID == complaintID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (t *memTx) ListAssignments(ctx context.Context, complaintID int64) ([]int64, error) {
	return append([]int64(nil), t.st().assignments[complaintID]...), nil
}

func (t *memTx) ListStatusHistory(ctx context.Context, complaintID int64) ([]models.ComplaintStatusHistory, error) {
	var out []models.ComplaintStatusHistory
	for _, h := range t.st().history {
		if h.ComplaintID == complaintID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *memTx) InsertUpvote(ctx context.Context, u *models.Upvote) error {
	key := fmt.Sprintf("%s|%d", u.CitizenUID, u.ComplaintID)
	if t.st().upvotes[key] {
		return models.ErrAlreadyUpvoted
	}
	t.st().upvotes[key] = true
	return nil
}

func (t *memTx) IncrementUpvotes(ctx context.Context, complaintID int64) (int, error) {
	c, ok := t.st().complaints[complaintID]
	if !ok {
		return 0, &models.NotFoundError{Entity: "complaint", ID: complaintID}
	}
	c.Upvotes++
	t.st().complaints[complaintID] = c
	return c.Upvotes, nil
}

func (t *memTx) CountAuthoritiesForCategory(ctx context.Context, categoryID int64, authorityIDs []int64) (int, error) {
	n := 0
	for _, id := range authorityIDs {
		if t.st().authorityCats[id][categoryID] {
			n++
		}
	}
	return n, nil
}

func (t *memTx) IsAssigned(ctx context.Context, complaintID, authorityID int64) (bool, error) {
	return contains(t.st().assignments[complaintID], authorityID), nil
}

func (t *memTx) EnsureCitizen(ctx context.Context, uid string) error {
	if _, ok := t.st().citizens[uid]; !ok {
		t.st().citizens[uid] = models.Citizen{UID: uid, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (t *memTx) GetCitizen(ctx context.Context, uid string) (*models.Citizen, error) {
	c, ok := t.st().citizens[uid]
	if !ok {
		return nil, &models.NotFoundError{Entity: "citizen", ID: uid}
	}
	return &c, nil
}

func (t *memTx) LockCitizen(ctx context.Context, uid string) (*models.Citizen, error) {
	return t.GetCitizen(ctx, uid)
}

func (t *memTx) IncrementStrikes(ctx context.Context, uid string) (int, error) {
	c, ok := t.st().citizens[uid]
	if !ok {
		return 0, &models.NotFoundError{Entity: "citizen", ID: uid}
	}
	c.Strikes++
	t.st().citizens[uid] = c
	return c.Strikes, nil
}

func (t *memTx) InsertStrike(ctx context.Context, s *models.Strike) error {
	if err := t.fail("InsertStrike"); err != nil {
		return err
	}
	s.ID = t.st().id()
	t.st().strikes = append(t.st().strikes, *s)
	return nil
}

func (t *memTx) ListStrikes(ctx context.Context, uid string) ([]models.Strike, error) {
	var out []models.Strike
	for _, s := range t.st().strikes {
		if s.CitizenUID == uid {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) SetBan(ctx context.Context, uid string, bannedAt *time.Time, reason *string) error {
	c, ok := t.st().citizens[uid]
	if !ok {
		return &models.NotFoundError{Entity: "citizen", ID: uid}
	}
	c.IsBanned = bannedAt != nil
	c.BannedAt = bannedAt
	c.BanReason = reason
	t.st().citizens[uid] = c
	return nil
}

func (t *memTx) ListBannedCitizens(ctx context.Context) ([]models.Citizen, error) {
	var out []models.Citizen
	for _, c := range t.st().citizens {
		if c.IsBanned {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (t *memTx) InsertReport(ctx context.Context, r *models.ComplaintReport) error {
	for _, existing := range t.st().reports {
		if existing.ReportedBy == r.ReportedBy && existing.ComplaintID != nil && r.ComplaintID != nil && *existing.ComplaintID == *r.ComplaintID {
			return models.ErrDuplicateReport
		}
	}
	r.ID = t.st().id()
	t.st().reports = append(t.st().reports, *r)
	return nil
}

func (t *memTx) LockReport(ctx context.Context, id int64) (*models.ComplaintReport, error) {
	for _, r := range t.st().reports {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "report", ID: id}
}

func (t *memTx) UpdateReport(ctx context.Context, r *models.ComplaintReport) error {
	for i := range t.st().reports {
		if t.st().reports[i].ID == r.ID {
			t.st().reports[i] = *r
			return nil
		}
	}
	return &models.NotFoundError{Entity: "report", ID: r.ID}
}

func (t *memTx) CloseOpenReports(ctx context.Context, complaintID int64, status models.ReportStatus, resolvedBy string, at time.Time) error {
	for i := range t.st().reports {
		r := &t.st().reports[i]
		if r.ComplaintID != nil && *r.ComplaintID == complaintID && r.Status.Open() {
			by := resolvedBy
			r.Status = status
			r.ResolvedBy = &by
			r.UpdatedAt = at
		}
	}
	return nil
}

func (t *memTx) ListReports(ctx context.Context, status *models.ReportStatus) ([]models.ComplaintReport, error) {
	var out []models.ComplaintReport
	for _, r := range t.st().reports {
		if status == nil || r.Status == *status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) InsertOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	if err := t.fail("InsertOutboxEvent"); err != nil {
		return err
	}
	e.ID = fmt.Sprintf("evt-%d", t.st().id())
	e.Status = models.OutboxStatusPending
	t.st().outbox = append(t.st().outbox, *e)
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// memImages records saved and removed URLs.
type memImages struct {
	mu      sync.Mutex
	n       int
	saved   []string
	removed []string
}

func (m *memImages) Save(ctx context.Context, img models.ImageUpload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	url := fmt.Sprintf("/uploads/complaints/%d-%s", m.n, img.FileName)
	m.saved = append(m.saved, url)
	return url, nil
}

func (m *memImages) Remove(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, url)
	return nil
}

func (m *memImages) removedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.removed)
}

var _ repository.Tx = (*memTx)(nil)
