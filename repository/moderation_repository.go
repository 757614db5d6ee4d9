package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cityzen/models"
)

const citizenColumns = `uid, name, ward, strikes, is_banned, banned_at, ban_reason, created_at`

func scanCitizen(row rowScanner) (*models.Citizen, error) {
	var (
		c         models.Citizen
		ward      sql.NullString
		bannedAt  sql.NullTime
		banReason sql.NullString
	)
	if err := row.Scan(&c.UID, &c.Name, &ward, &c.Strikes, &c.IsBanned, &bannedAt, &banReason, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Ward = stringPtr(ward)
	c.BannedAt = timePtr(bannedAt)
	c.BanReason = stringPtr(banReason)
	return &c, nil
}

func (t *sqlTx) getCitizen(ctx context.Context, uid string, lock bool) (*models.Citizen, error) {
	query := `SELECT ` + citizenColumns + ` FROM citizens WHERE uid = ?`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanCitizen(t.q.QueryRowContext(ctx, query, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("citizen", uid)
	}
	if err != nil {
		return nil, dbErr("get citizen", err)
	}
	return c, nil
}

// EnsureCitizen provisions the citizen row on first contact. Identities are issued
// elsewhere, so any authenticated uid may arrive without a row; existing rows are untouched.
func (t *sqlTx) EnsureCitizen(ctx context.Context, uid string) error {
	if _, err := t.q.ExecContext(ctx, `INSERT IGNORE INTO citizens (uid) VALUES (?)`, uid); err != nil {
		return dbErr("ensure citizen", err)
	}
	return nil
}

func (t *sqlTx) GetCitizen(ctx context.Context, uid string) (*models.Citizen, error) {
	return t.getCitizen(ctx, uid, false)
}

func (t *sqlTx) LockCitizen(ctx context.Context, uid string) (*models.Citizen, error) {
	return t.getCitizen(ctx, uid, true)
}

// IncrementStrikes bumps the counter in place and returns the new value.
func (t *sqlTx) IncrementStrikes(ctx context.Context, uid string) (int, error) {
	res, err := t.q.ExecContext(ctx, `UPDATE citizens SET strikes = strikes + 1 WHERE uid = ?`, uid)
	if err != nil {
		return 0, dbErr("increment strikes", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, dbErr("increment strikes", err)
	} else if n == 0 {
		return 0, notFound("citizen", uid)
	}
	var strikes int
	if err := t.q.QueryRowContext(ctx, `SELECT strikes FROM citizens WHERE uid = ?`, uid).Scan(&strikes); err != nil {
		return 0, dbErr("read strikes", err)
	}
	return strikes, nil
}

func (t *sqlTx) InsertStrike(ctx context.Context, s *models.Strike) error {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO citizen_strikes (citizen_uid, reason, complaint_id, issued_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.CitizenUID, s.Reason, s.ComplaintID, s.IssuedBy, s.CreatedAt,
	)
	if err != nil {
		return dbErr("insert strike", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return dbErr("read strike id", err)
	}
	return nil
}

func (t *sqlTx) ListStrikes(ctx context.Context, uid string) ([]models.Strike, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, citizen_uid, reason, complaint_id, issued_by, created_at FROM citizen_strikes WHERE citizen_uid = ? ORDER BY id`, uid)
	if err != nil {
		return nil, dbErr("list strikes", err)
	}
	defer rows.Close()
	var out []models.Strike
	for rows.Next() {
		var (
			s           models.Strike
			complaintID sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.CitizenUID, &s.Reason, &complaintID, &s.IssuedBy, &s.CreatedAt); err != nil {
			return nil, dbErr("scan strike", err)
		}
		if complaintID.Valid {
			id := complaintID.Int64
			s.ComplaintID = &id
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list strikes", err)
	}
	return out, nil
}

// SetBan writes the ban fields together; a nil bannedAt clears the ban.
func (t *sqlTx) SetBan(ctx context.Context, uid string, bannedAt *time.Time, reason *string) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE citizens SET is_banned = ?, banned_at = ?, ban_reason = ? WHERE uid = ?`,
		bannedAt != nil, bannedAt, reason, uid,
	)
	if err != nil {
		return dbErr("update ban", err)
	}
	return nil
}

func (t *sqlTx) ListBannedCitizens(ctx context.Context) ([]models.Citizen, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+citizenColumns+` FROM citizens WHERE is_banned = TRUE ORDER BY banned_at DESC`)
	if err != nil {
		return nil, dbErr("list banned citizens", err)
	}
	defer rows.Close()
	var out []models.Citizen
	for rows.Next() {
		c, err := scanCitizen(rows)
		if err != nil {
			return nil, dbErr("scan citizen", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list banned citizens", err)
	}
	return out, nil
}

const reportColumns = `id, complaint_id, reported_by, reason, description, status, resolved_by, created_at, updated_at`

func scanReport(row rowScanner) (*models.ComplaintReport, error) {
	var (
		r           models.ComplaintReport
		complaintID sql.NullInt64
		description sql.NullString
		resolvedBy  sql.NullString
	)
	if err := row.Scan(&r.ID, &complaintID, &r.ReportedBy, &r.Reason, &description, &r.Status, &resolvedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if complaintID.Valid {
		id := complaintID.Int64
		r.ComplaintID = &id
	}
	r.Description = stringPtr(description)
	r.ResolvedBy = stringPtr(resolvedBy)
	return &r, nil
}

// InsertReport fails with ErrDuplicateReport when the reporter already reported the complaint.
func (t *sqlTx) InsertReport(ctx context.Context, r *models.ComplaintReport) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO complaint_reports (complaint_id, reported_by, reason, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ComplaintID, r.ReportedBy, r.Reason, r.Description, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return models.ErrDuplicateReport
	}
	if err != nil {
		return dbErr("insert report", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return dbErr("read report id", err)
	}
	return nil
}

func (t *sqlTx) LockReport(ctx context.Context, id int64) (*models.ComplaintReport, error) {
	r, err := scanReport(t.q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM complaint_reports WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("report", id)
	}
	if err != nil {
		return nil, dbErr("lock report", err)
	}
	return r, nil
}

func (t *sqlTx) UpdateReport(ctx context.Context, r *models.ComplaintReport) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE complaint_reports SET status = ?, resolved_by = ?, updated_at = ? WHERE id = ?`,
		r.Status, r.ResolvedBy, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return dbErr("update report", err)
	}
	return nil
}

// CloseOpenReports settles every still-open report against a complaint.
func (t *sqlTx) CloseOpenReports(ctx context.Context, complaintID int64, status models.ReportStatus, resolvedBy string, at time.Time) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE complaint_reports SET status = ?, resolved_by = ?, updated_at = ?
		WHERE complaint_id = ? AND status IN ('pending', 'reviewed')`,
		status, resolvedBy, at, complaintID,
	)
	if err != nil {
		return dbErr("close open reports", err)
	}
	return nil
}

func (t *sqlTx) ListReports(ctx context.Context, status *models.ReportStatus) ([]models.ComplaintReport, error) {
	query := `SELECT ` + reportColumns + ` FROM complaint_reports`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("list reports", err)
	}
	defer rows.Close()
	var out []models.ComplaintReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, dbErr("scan report", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list reports", err)
	}
	return out, nil
}
