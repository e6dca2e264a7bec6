package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/matchsim/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func newLedgerForTest(t *testing.T) (*LedgerService, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	audit := NewAuditService(db)
	return NewLedgerService(db, audit), mock, db
}

func TestLedgerService_Credit(t *testing.T) {
	service, mock, db := newLedgerForTest(t)
	defer db.Close()

	t.Run("successful credit writes audit entry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET cash = cash \\+ \\$1 WHERE id = \\$2").
			WithArgs(int64(50000), 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO audit_entries").
			WithArgs(1, models.AuditCashGranted, models.SubjectAccount, 7, int64(50000), "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
		mock.ExpectCommit()

		err := service.Credit(1, 7, 50000)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount rejected before touching storage", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := service.Credit(1, 7, 0)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := service.Credit(1, 7, -500)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET cash = cash \\+ \\$1 WHERE id = \\$2").
			WithArgs(int64(100), 999).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := service.Credit(1, 999, 100)
		assert.ErrorIs(t, err, models.ErrUnknownAccount)
	})
}

func TestLedgerService_Debit(t *testing.T) {
	service, mock, db := newLedgerForTest(t)
	defer db.Close()

	t.Run("successful debit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"cash"}).AddRow(100000))
		mock.ExpectExec("UPDATE accounts SET cash = cash - \\$1 WHERE id = \\$2").
			WithArgs(int64(40000), 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Debit(7, 40000)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds leaves balance untouched", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"cash"}).AddRow(1000))
		mock.ExpectRollback()

		err := service.Debit(7, 40000)
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exact balance drains to zero", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"cash"}).AddRow(40000))
		mock.ExpectExec("UPDATE accounts SET cash = cash - \\$1 WHERE id = \\$2").
			WithArgs(int64(40000), 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Debit(7, 40000)
		assert.NoError(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(999).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := service.Debit(999, 100)
		assert.ErrorIs(t, err, models.ErrUnknownAccount)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := service.Debit(7, 0)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})
}

func TestLedgerService_GrantItem(t *testing.T) {
	service, mock, db := newLedgerForTest(t)
	defer db.Close()

	t.Run("successful grant", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM accounts WHERE id = \\$1\\)").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec("INSERT INTO inventory_grants").
			WithArgs(7, "training_boost", 3).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("INSERT INTO audit_entries").
			WithArgs(1, models.AuditItemGranted, models.SubjectAccount, 7, int64(3), "training_boost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
		mock.ExpectCommit()

		err := service.GrantItem(1, 7, "training_boost", 3)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero quantity rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := service.GrantItem(1, 7, "training_boost", 0)
		assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	})

	t.Run("empty item name rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := service.GrantItem(1, 7, "", 5)
		assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM accounts WHERE id = \\$1\\)").
			WithArgs(999).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		err := service.GrantItem(1, 999, "training_boost", 1)
		assert.ErrorIs(t, err, models.ErrUnknownAccount)
	})
}

func TestLedgerService_InventoryOf(t *testing.T) {
	service, mock, db := newLedgerForTest(t)
	defer db.Close()

	t.Run("grants of the same item are summed", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM accounts WHERE id = \\$1\\)").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT item_name, SUM\\(quantity\\) FROM inventory_grants").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"item_name", "sum"}).
				AddRow("training_boost", 8).
				AddRow("stadium_banner", 1))

		inventory, err := service.InventoryOf(7)
		assert.NoError(t, err)
		assert.Equal(t, map[string]int{"training_boost": 8, "stadium_banner": 1}, inventory)
	})

	t.Run("empty inventory is an empty map", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM accounts WHERE id = \\$1\\)").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT item_name, SUM\\(quantity\\) FROM inventory_grants").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"item_name", "sum"}))

		inventory, err := service.InventoryOf(7)
		assert.NoError(t, err)
		assert.Empty(t, inventory)
		assert.NotNil(t, inventory)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM accounts WHERE id = \\$1\\)").
			WithArgs(999).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := service.InventoryOf(999)
		assert.ErrorIs(t, err, models.ErrUnknownAccount)
	})
}

func TestLedgerService_BalanceOf(t *testing.T) {
	service, mock, db := newLedgerForTest(t)
	defer db.Close()

	t.Run("returns current balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"cash"}).AddRow(123456))

		balance, err := service.BalanceOf(7)
		assert.NoError(t, err)
		assert.Equal(t, int64(123456), balance)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1").
			WithArgs(999).
			WillReturnError(sql.ErrNoRows)

		_, err := service.BalanceOf(999)
		assert.ErrorIs(t, err, models.ErrUnknownAccount)
	})
}
