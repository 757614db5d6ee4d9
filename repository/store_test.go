package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityzen/geo"
	"cityzen/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewStore(db)
	s.backoff = time.Millisecond
	return s, mock
}

func TestWithTxRetriesDeadlock(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := s.WithTx(context.Background(), func(Tx) error {
		calls++
		if calls == 1 {
			return &mysql.MySQLError{Number: mysqlErrDeadlock, Message: "Deadlock found"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxDoesNotRetryDomainErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := s.WithTx(context.Background(), func(Tx) error {
		calls++
		return models.ErrForbidden
	})

	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	for i := 0; i < s.maxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	lockWait := &mysql.MySQLError{Number: mysqlErrLockWait, Message: "Lock wait timeout exceeded"}

	err := s.WithTx(context.Background(), func(Tx) error { return lockWait })

	var me *mysql.MySQLError
	require.True(t, errors.As(err, &me))
	assert.EqualValues(t, mysqlErrLockWait, me.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockComplaintUsesForUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "citizen_uid", "category_id", "title", "description", "latitude", "longitude",
		"current_status", "appeal_status", "pre_appeal_status", "appeal_count", "upvotes", "rating",
		"status_notes", "appeal_reason", "admin_remarks", "forwarded_by_admin",
		"last_authority_activity_at", "last_bumped_at", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM complaints WHERE id = \? FOR UPDATE`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			7, "alice", 1, "Pothole", "Deep", 12.97, 77.59,
			"accepted", "none", nil, 0, 3, nil,
			nil, nil, nil, false,
			created, nil, created, created))
	mock.ExpectQuery(`FROM complaints WHERE id = \? FOR UPDATE`).WithArgs(int64(8)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	var got *models.Complaint
	err := s.WithTx(context.Background(), func(tx Tx) error {
		c, err := tx.LockComplaint(context.Background(), 7)
		if err != nil {
			return err
		}
		got = c
		_, err = tx.LockComplaint(context.Background(), 8)
		return err
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusAccepted, got.CurrentStatus)
	assert.Equal(t, 3, got.Upvotes)
	require.NotNil(t, got.LastAuthorityActivityAt)
	assert.Nil(t, got.LastBumpedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpenComplaintsInBoxWrapsAntimeridian(t *testing.T) {
	s, mock := newMockStore(t)
	box := geo.BoxAround(-16.8, 179.9999, 0.05)
	require.True(t, box.Wraps())

	mock.ExpectQuery(regexp.QuoteMeta(`AND (longitude >= ? OR longitude <= ?)`)).
		WithArgs(int64(1), box.MinLat, box.MaxLat, box.MinLon, box.MaxLon).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := s.View(context.Background(), func(tx Tx) error {
		_, err := tx.FindOpenComplaintsInBox(context.Background(), 1, box)
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementStrikesIsRelative(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE citizens SET strikes = strikes + 1 WHERE uid = ?`)).
		WithArgs("bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT strikes FROM citizens WHERE uid = ?`)).
		WithArgs("bob").WillReturnRows(sqlmock.NewRows([]string{"strikes"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE citizens SET strikes = strikes + 1 WHERE uid = ?`)).
		WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	var strikes int
	err := s.WithTx(context.Background(), func(tx Tx) error {
		var err error
		if strikes, err = tx.IncrementStrikes(context.Background(), "bob"); err != nil {
			return err
		}
		_, err = tx.IncrementStrikes(context.Background(), "ghost")
		return err
	})

	assert.Equal(t, 4, strikes)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCitizenIsIdempotentInsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO citizens (uid) VALUES (?)`)).
		WithArgs("dave").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO citizens (uid) VALUES (?)`)).
		WithArgs("dave").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.EnsureCitizen(context.Background(), "dave"); err != nil {
			return err
		}
		return tx.EnsureCitizen(context.Background(), "dave")
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolationsMapToDomainErrors(t *testing.T) {
	s, mock := newMockStore(t)
	dup := &mysql.MySQLError{Number: mysqlErrDuplicateEntry, Message: "Duplicate entry"}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	complaintID := int64(3)

	mock.ExpectExec(`INSERT INTO complaint_reports`).WillReturnError(dup)
	mock.ExpectExec(`INSERT INTO complaint_upvotes`).WillReturnError(dup)
	mock.ExpectExec(`INSERT INTO complaint_upvotes`).WillReturnError(errors.New("connection reset"))

	err := s.View(context.Background(), func(tx Tx) error {
		err := tx.InsertReport(context.Background(), &models.ComplaintReport{
			ComplaintID: &complaintID, ReportedBy: "bob", Reason: models.ReportReason("spam_scams"),
			Status: models.ReportPending, CreatedAt: now, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, models.ErrDuplicateReport)

		up := &models.Upvote{CitizenUID: "bob", ComplaintID: 3, CreatedAt: now}
		assert.ErrorIs(t, tx.InsertUpvote(context.Background(), up), models.ErrAlreadyUpvoted)

		var dbErr *models.DatabaseError
		assert.ErrorAs(t, tx.InsertUpvote(context.Background(), up), &dbErr)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
