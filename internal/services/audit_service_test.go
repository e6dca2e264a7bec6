package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/matchsim/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

var auditColumns = []string{"id", "actor_id", "kind", "subject_kind", "subject_id", "amount", "payload", "created_at"}

func TestAuditService_RecordTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	t.Run("entry id and timestamp filled in", func(t *testing.T) {
		recorded := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO audit_entries").
			WithArgs(1, models.AuditBidApproved, models.SubjectBid, 41, int64(5000), "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, recorded))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)

		amount := int64(5000)
		entry := &models.AuditEntry{
			ActorID:     1,
			Kind:        models.AuditBidApproved,
			SubjectKind: models.SubjectBid,
			SubjectID:   41,
			Amount:      &amount,
		}
		assert.NoError(t, service.RecordTx(tx, entry))
		assert.NoError(t, tx.Commit())

		assert.Equal(t, 9, entry.ID)
		assert.WithinDuration(t, recorded, entry.CreatedAt, time.Second)
	})

	t.Run("insert failure aborts the caller", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO audit_entries").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		tx, err := db.Begin()
		assert.NoError(t, err)
		defer tx.Rollback()

		err = service.RecordTx(tx, &models.AuditEntry{ActorID: 1, Kind: models.AuditBidCreated, SubjectKind: models.SubjectBid, SubjectID: 1})
		assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	})
}

func TestAuditService_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	t.Run("no filters orders ascending", func(t *testing.T) {
		mock.ExpectQuery("FROM audit_entries\\s+ORDER BY created_at ASC, id ASC").
			WillReturnRows(sqlmock.NewRows(auditColumns).
				AddRow(1, 7, models.AuditBidCreated, models.SubjectBid, 41, int64(5000), "158023", time.Now().Add(-time.Hour)).
				AddRow(2, 1, models.AuditBidApproved, models.SubjectBid, 41, int64(5000), "", time.Now()))

		entries, err := service.QueryAll(AuditFilter{})
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, 1, entries[0].ID)
		assert.Equal(t, models.AuditBidCreated, entries[0].Kind)
	})

	t.Run("actor and kind filters become positional args", func(t *testing.T) {
		mock.ExpectQuery("WHERE actor_id = \\$1 AND kind = \\$2 ORDER BY created_at ASC, id ASC").
			WithArgs(7, models.AuditBidCreated).
			WillReturnRows(sqlmock.NewRows(auditColumns).
				AddRow(1, 7, models.AuditBidCreated, models.SubjectBid, 41, int64(5000), "158023", time.Now()))

		entries, err := service.QueryAll(AuditFilter{ActorID: 7, Kind: models.AuditBidCreated})
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("time range and limit", func(t *testing.T) {
		from := time.Now().Add(-24 * time.Hour)
		to := time.Now()
		mock.ExpectQuery("WHERE created_at >= \\$1 AND created_at <= \\$2 ORDER BY created_at ASC, id ASC LIMIT \\$3").
			WithArgs(from, to, 10).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		entries, err := service.QueryAll(AuditFilter{From: from, To: to, Limit: 10})
		assert.NoError(t, err)
		assert.Empty(t, entries)
		assert.NotNil(t, entries)
	})

	t.Run("iterator walks lazily", func(t *testing.T) {
		mock.ExpectQuery("FROM audit_entries\\s+ORDER BY created_at ASC, id ASC").
			WillReturnRows(sqlmock.NewRows(auditColumns).
				AddRow(1, 7, models.AuditCashGranted, models.SubjectAccount, 7, int64(1000), "", time.Now()))

		it, err := service.Query(AuditFilter{})
		assert.NoError(t, err)
		defer it.Close()

		assert.True(t, it.Next())
		entry, err := it.Entry()
		assert.NoError(t, err)
		assert.Equal(t, models.AuditCashGranted, entry.Kind)
		assert.Equal(t, int64(1000), *entry.Amount)
		assert.False(t, it.Next())
		assert.NoError(t, it.Err())
	})
}

func TestAuditService_HandleQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	t.Run("default limit applied", func(t *testing.T) {
		mock.ExpectQuery("FROM audit_entries\\s+ORDER BY created_at ASC, id ASC LIMIT \\$1").
			WithArgs(200).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		req := httptest.NewRequest("GET", "/admin/audit", nil)
		w := httptest.NewRecorder()

		service.HandleQuery(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bad actorId", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/audit?actorId=abc", nil)
		w := httptest.NewRecorder()

		service.HandleQuery(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/audit?from=yesterday", nil)
		w := httptest.NewRecorder()

		service.HandleQuery(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
