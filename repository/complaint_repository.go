package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cityzen/geo"
	"cityzen/models"
)

const complaintColumns = `id, citizen_uid, category_id, title, description, latitude, longitude,
	current_status, appeal_status, pre_appeal_status, appeal_count, upvotes, rating,
	status_notes, appeal_reason, admin_remarks, forwarded_by_admin,
	last_authority_activity_at, last_bumped_at, created_at, updated_at`

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(cols, alias string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (*models.Complaint, error) {
	var (
		c                            models.Complaint
		preAppeal                    sql.NullString
		rating                       sql.NullInt64
		notes, appealReason, remarks sql.NullString
		lastActivity, lastBumped     sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.CitizenUID, &c.CategoryID, &c.Title, &c.Description, &c.Latitude, &c.Longitude,
		&c.CurrentStatus, &c.AppealStatus, &preAppeal, &c.AppealCount, &c.Upvotes, &rating,
		&notes, &appealReason, &remarks, &c.ForwardedByAdmin,
		&lastActivity, &lastBumped, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.PreAppealStatus = models.ComplaintStatus(preAppeal.String)
	if rating.Valid {
		r := int(rating.Int64)
		c.Rating = &r
	}
	c.StatusNotes = stringPtr(notes)
	c.AppealReason = stringPtr(appealReason)
	c.AdminRemarks = stringPtr(remarks)
	c.LastAuthorityActivityAt = timePtr(lastActivity)
	c.LastBumpedAt = timePtr(lastBumped)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func collectComplaints(rows *sql.Rows) ([]models.Complaint, error) {
	defer rows.Close()
	var out []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CategoryExists checks the category is live before a complaint references it
func (t *sqlTx) CategoryExists(ctx context.Context, categoryID int64) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, categoryID).Scan(&n)
	if err != nil {
		return false, dbErr("check category", err)
	}
	return n > 0, nil
}

// LockCells takes row locks on the guard rows for the given keys. Keys must be
// sorted so that concurrent callers acquire them in the same order.
func (t *sqlTx) LockCells(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		args[i] = k
		values[i] = "(?)"
	}
	insert := `INSERT IGNORE INTO complaint_cell_locks (lock_key) VALUES ` + strings.Join(values, ", ")
	if _, err := t.q.ExecContext(ctx, insert, args...); err != nil {
		return dbErr("create cell locks", err)
	}
	query := `SELECT lock_key FROM complaint_cell_locks WHERE lock_key IN (` + placeholders(len(keys)) + `) ORDER BY lock_key FOR UPDATE`
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return dbErr("lock cells", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return dbErr("lock cells", err)
	}
	return nil
}

// FindOpenComplaintsInBox returns open complaints of a category inside a lat/lon box.
// Callers apply the exact radius check.
func (t *sqlTx) FindOpenComplaintsInBox(ctx context.Context, categoryID int64, box geo.BoundingBox) ([]models.Complaint, error) {
	lonCond := `longitude BETWEEN ? AND ?`
	if box.Wraps() {
		lonCond = `(longitude >= ? OR longitude <= ?)`
	}
	query := `SELECT ` + complaintColumns + ` FROM complaints
		WHERE category_id = ?
		  AND current_status NOT IN ('resolved', 'rejected', 'completed')
		  AND latitude BETWEEN ? AND ?
		  AND ` + lonCond + `
		ORDER BY id`
	rows, err := t.q.QueryContext(ctx, query, categoryID, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, dbErr("find nearby complaints", err)
	}
	out, err := collectComplaints(rows)
	if err != nil {
		return nil, dbErr("scan nearby complaints", err)
	}
	return out, nil
}

// FindImageOwner returns the complaint an image fingerprint is already attached to.
func (t *sqlTx) FindImageOwner(ctx context.Context, fingerprint string, excludeComplaintID int64) (int64, bool, error) {
	var id int64
	err := t.q.QueryRowContext(ctx,
		`SELECT complaint_id FROM complaint_images WHERE fingerprint = ? AND complaint_id <> ? LIMIT 1`,
		fingerprint, excludeComplaintID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, dbErr("look up image fingerprint", err)
	}
	return id, true, nil
}

// CountSubmissionsSince counts complaints a citizen created after since
func (t *sqlTx) CountSubmissionsSince(ctx context.Context, citizenUID string, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM complaints WHERE citizen_uid = ? AND created_at >= ?`,
		citizenUID, since,
	).Scan(&n)
	if err != nil {
		return 0, dbErr("count recent submissions", err)
	}
	return n, nil
}

// InsertComplaint creates a new complaint and sets its ID
func (t *sqlTx) InsertComplaint(ctx context.Context, c *models.Complaint) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO complaints (
			citizen_uid, category_id, title, description, latitude, longitude,
			current_status, appeal_status, appeal_count, upvotes, forwarded_by_admin,
			last_authority_activity_at, last_bumped_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CitizenUID, c.CategoryID, c.Title, c.Description, c.Latitude, c.Longitude,
		c.CurrentStatus, c.AppealStatus, c.AppealCount, c.Upvotes, c.ForwardedByAdmin,
		c.LastAuthorityActivityAt, c.LastBumpedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return dbErr("insert complaint", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return dbErr("read complaint id", err)
	}
	c.ID = id
	return nil
}

func (t *sqlTx) InsertImage(ctx context.Context, img *models.ComplaintImage) error {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO complaint_images (complaint_id, image_type, url, fingerprint, created_at) VALUES (?, ?, ?, ?, ?)`,
		img.ComplaintID, img.ImageType, img.URL, img.Fingerprint, img.CreatedAt,
	)
	if err != nil {
		return dbErr("insert complaint image", err)
	}
	if img.ID, err = res.LastInsertId(); err != nil {
		return dbErr("read image id", err)
	}
	return nil
}

func (t *sqlTx) InsertAssignments(ctx context.Context, complaintID int64, authorityIDs []int64, at time.Time) error {
	if len(authorityIDs) == 0 {
		return nil
	}
	values := make([]string, len(authorityIDs))
	args := make([]any, 0, len(authorityIDs)*3)
	for i, id := range authorityIDs {
		values[i] = "(?, ?, ?)"
		args = append(args, complaintID, id, at)
	}
	query := `INSERT INTO complaint_assignments (complaint_id, authority_id, created_at) VALUES ` + strings.Join(values, ", ")
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return dbErr("insert complaint assignments", err)
	}
	return nil
}

// InsertStatusHistory records a status change (immutable audit row)
func (t *sqlTx) InsertStatusHistory(ctx context.Context, h *models.ComplaintStatusHistory) error {
	var old any
	if h.OldStatus != nil {
		old = string(*h.OldStatus)
	}
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO complaint_status_history (complaint_id, old_status, new_status, actor_type, actor_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ComplaintID, old, h.NewStatus, h.ActorType, h.ActorID, h.Reason, h.CreatedAt,
	)
	if err != nil {
		return dbErr("insert status history", err)
	}
	if h.ID, err = res.LastInsertId(); err != nil {
		return dbErr("read status history id", err)
	}
	return nil
}

// GetComplaint retrieves a complaint by ID
func (t *sqlTx) GetComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	c, err := scanComplaint(t.q.QueryRowContext(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("complaint", id)
	}
	if err != nil {
		return nil, dbErr("get complaint", err)
	}
	return c, nil
}

// LockComplaint reads a complaint and holds its row lock until the transaction ends.
func (t *sqlTx) LockComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	c, err := scanComplaint(t.q.QueryRowContext(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("complaint", id)
	}
	if err != nil {
		return nil, dbErr("lock complaint", err)
	}
	return c, nil
}

// UpdateComplaint writes every lifecycle-owned column of c.
func (t *sqlTx) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE complaints SET
			current_status = ?, appeal_status = ?, pre_appeal_status = ?, appeal_count = ?,
			rating = ?, status_notes = ?, appeal_reason = ?, admin_remarks = ?,
			forwarded_by_admin = ?, last_authority_activity_at = ?, last_bumped_at = ?, updated_at = ?
		WHERE id = ?`,
		c.CurrentStatus, c.AppealStatus, nullableString(string(c.PreAppealStatus)), c.AppealCount,
		c.Rating, c.StatusNotes, c.AppealReason, c.AdminRemarks,
		c.ForwardedByAdmin, c.LastAuthorityActivityAt, c.LastBumpedAt, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return dbErr("update complaint", err)
	}
	return nil
}

// DeleteComplaint removes a complaint; images, assignments, upvotes and history cascade.
func (t *sqlTx) DeleteComplaint(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, id)
	if err != nil {
		return dbErr("delete complaint", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("delete complaint", err)
	}
	if n == 0 {
		return notFound("complaint", id)
	}
	return nil
}

// ListComplaints lists complaints. With an authority filter it returns that
// authority's queue: admin-forwarded first, then recently bumped, then popular, then oldest.
func (t *sqlTx) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	var (
		where []string
		args  []any
		from  = `complaints c`
		order = `c.upvotes DESC, c.created_at DESC`
	)
	if f.AuthorityID != nil {
		from = `complaints c JOIN complaint_assignments a ON a.complaint_id = c.id`
		where = append(where, `a.authority_id = ?`)
		args = append(args, *f.AuthorityID)
		order = `c.forwarded_by_admin DESC, c.last_bumped_at IS NULL, c.last_bumped_at DESC, c.upvotes DESC, c.created_at ASC`
	}
	if f.CategoryID != nil {
		where = append(where, `c.category_id = ?`)
		args = append(args, *f.CategoryID)
	}
	if f.Status != nil {
		where = append(where, `c.current_status = ?`)
		args = append(args, *f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + prefixColumns(complaintColumns, "c") + ` FROM ` + from
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += fmt.Sprintf(` ORDER BY %s LIMIT %d OFFSET %d`, order, limit, max(f.Offset, 0))

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("list complaints", err)
	}
	out, err := collectComplaints(rows)
	if err != nil {
		return nil, dbErr("scan complaints", err)
	}
	return out, nil
}

func (t *sqlTx) ListImages(ctx context.Context, complaintID int64) ([]models.ComplaintImage, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, complaint_id, image_type, url, fingerprint, created_at FROM complaint_images WHERE complaint_id = ? ORDER BY id`,
		complaintID,
	)
	if err != nil {
		return nil, dbErr("list complaint images", err)
	}
	defer rows.Close()
	var out []models.ComplaintImage
	for rows.Next() {
		var img models.ComplaintImage
		if err := rows.Scan(&img.ID, &img.ComplaintID, &img.ImageType, &img.URL, &img.Fingerprint, &img.CreatedAt); err != nil {
			return nil, dbErr("scan complaint image", err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list complaint images", err)
	}
	return out, nil
}

func (t *sqlTx) ListAssignments(ctx context.Context, complaintID int64) ([]int64, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT authority_id FROM complaint_assignments WHERE complaint_id = ? ORDER BY authority_id`, complaintID)
	if err != nil {
		return nil, dbErr("list assignments", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr("scan assignment", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list assignments", err)
	}
	return ids, nil
}

// ListStatusHistory retrieves status history for a complaint, oldest first
func (t *sqlTx) ListStatusHistory(ctx context.Context, complaintID int64) ([]models.ComplaintStatusHistory, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, complaint_id, old_status, new_status, actor_type, actor_id, reason, created_at
		FROM complaint_status_history WHERE complaint_id = ? ORDER BY id`, complaintID)
	if err != nil {
		return nil, dbErr("list status history", err)
	}
	defer rows.Close()
	var out []models.ComplaintStatusHistory
	for rows.Next() {
		var (
			h      models.ComplaintStatusHistory
			old    sql.NullString
			reason sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.ComplaintID, &old, &h.NewStatus, &h.ActorType, &h.ActorID, &reason, &h.CreatedAt); err != nil {
			return nil, dbErr("scan status history", err)
		}
		if old.Valid {
			s := models.ComplaintStatus(old.String)
			h.OldStatus = &s
		}
		h.Reason = stringPtr(reason)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list status history", err)
	}
	return out, nil
}

// InsertUpvote fails with ErrAlreadyUpvoted on a repeat (citizen, complaint) pair.
func (t *sqlTx) InsertUpvote(ctx context.Context, u *models.Upvote) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO complaint_upvotes (citizen_uid, complaint_id, created_at) VALUES (?, ?, ?)`,
		u.CitizenUID, u.ComplaintID, u.CreatedAt,
	)
	if isDuplicateKey(err) {
		return models.ErrAlreadyUpvoted
	}
	if err != nil {
		return dbErr("insert upvote", err)
	}
	return nil
}

func (t *sqlTx) IncrementUpvotes(ctx context.Context, complaintID int64) (int, error) {
	if _, err := t.q.ExecContext(ctx, `UPDATE complaints SET upvotes = upvotes + 1 WHERE id = ?`, complaintID); err != nil {
		return 0, dbErr("increment upvotes", err)
	}
	var n int
	if err := t.q.QueryRowContext(ctx, `SELECT upvotes FROM complaints WHERE id = ?`, complaintID).Scan(&n); err != nil {
		return 0, dbErr("read upvotes", err)
	}
	return n, nil
}
