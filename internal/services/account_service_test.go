package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v8"
	"github.com/matchsim/backend/internal/config"
	"github.com/matchsim/backend/internal/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func newAccountServiceForTest(t *testing.T, cfg *config.EconomyConfig) (*AccountService, sqlmock.Sqlmock, *sql.DB) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	redisClient, _ := redismock.NewClientMock()
	audit := NewAuditService(db)
	ledger := NewLedgerService(db, audit)
	if cfg == nil {
		cfg = &config.EconomyConfig{Currency: "EUR"}
	}
	return NewAccountService(db, redisClient, ledger, audit, cfg), mock, db
}

func TestAccountService_Register(t *testing.T) {
	service, mock, db := newAccountServiceForTest(t, nil)
	defer db.Close()

	t.Run("new account starts pending with zero cash", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs("redsfan", sqlmock.AnyArg(), models.RoleUser, "user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, time.Now()))

		body := `{"username":"RedsFan","password":"password123","email":"user@example.com"}`
		req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		service.Register(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, 7, response.Account.ID)
		assert.Equal(t, "redsfan", response.Account.Username)
		assert.Equal(t, models.AccountPending, response.Account.Status)
		assert.Equal(t, int64(0), response.Account.Cash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short password rejected", func(t *testing.T) {
		body := `{"username":"redsfan","password":"abc"}`
		req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		service.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate username maps to 409", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WillReturnError(assert.AnError)

		body := `{"username":"redsfan","password":"password123"}`
		req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		service.Register(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString("nope"))
		w := httptest.NewRecorder()

		service.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAccountService_Login(t *testing.T) {
	service, mock, db := newAccountServiceForTest(t, nil)
	defer db.Close()

	hashed, err := hashPassword("password123")
	assert.NoError(t, err)

	accountRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "username", "role", "email", "club_name", "cash", "status", "created_at", "password_hash"}).
			AddRow(7, "redsfan", models.RoleUser, "user@example.com", nil, int64(0), models.AccountPending, time.Now(), hashed)
	}

	t.Run("valid credentials", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts WHERE username = \\$1").
			WithArgs("redsfan").
			WillReturnRows(accountRow())

		body := `{"username":"redsfan","password":"password123"}`
		req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		service.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, 7, response.Account.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts WHERE username = \\$1").
			WithArgs("redsfan").
			WillReturnRows(accountRow())

		body := `{"username":"redsfan","password":"wrongpass"}`
		req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		service.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown username", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts WHERE username = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		body := `{"username":"ghost","password":"password123"}`
		req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		service.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccountService_SetStatus(t *testing.T) {
	pendingAccountRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "username", "role", "email", "club_name", "cash", "status", "created_at"}).
			AddRow(7, "redsfan", models.RoleUser, "", nil, int64(0), models.AccountPending, time.Now())
	}

	t.Run("approval assigns club and credits starting budget", func(t *testing.T) {
		service, mock, db := newAccountServiceForTest(t, &config.EconomyConfig{Currency: "EUR", StartingBudget: 100000000})
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(7).
			WillReturnRows(pendingAccountRow())
		mock.ExpectExec("UPDATE accounts SET status = \\$1, club_name = COALESCE\\(\\$2, club_name\\)").
			WithArgs(models.AccountApproved, "Red Star", 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO audit_entries").
			WithArgs(1, models.AuditAccountStatusChanged, models.SubjectAccount, 7, nil, models.AccountApproved).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
		mock.ExpectExec("UPDATE accounts SET cash = cash \\+ \\$1 WHERE id = \\$2").
			WithArgs(int64(100000000), 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO audit_entries").
			WithArgs(1, models.AuditCashGranted, models.SubjectAccount, 7, int64(100000000), "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, time.Now()))
		mock.ExpectCommit()

		account, err := service.SetStatus(1, 7, models.AccountApproved, "Red Star")
		assert.NoError(t, err)
		assert.Equal(t, models.AccountApproved, account.Status)
		assert.Equal(t, "Red Star", *account.ClubName)
		assert.Equal(t, int64(100000000), account.Cash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejection skips the budget credit", func(t *testing.T) {
		service, mock, db := newAccountServiceForTest(t, &config.EconomyConfig{Currency: "EUR", StartingBudget: 100000000})
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(7).
			WillReturnRows(pendingAccountRow())
		mock.ExpectExec("UPDATE accounts SET status = \\$1, club_name = COALESCE\\(\\$2, club_name\\)").
			WithArgs(models.AccountRejected, nil, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO audit_entries").
			WithArgs(1, models.AuditAccountStatusChanged, models.SubjectAccount, 7, nil, models.AccountRejected).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
		mock.ExpectCommit()

		account, err := service.SetStatus(1, 7, models.AccountRejected, "")
		assert.NoError(t, err)
		assert.Equal(t, models.AccountRejected, account.Status)
		assert.Equal(t, int64(0), account.Cash)
	})

	t.Run("resolving a non-pending account conflicts", func(t *testing.T) {
		service, mock, db := newAccountServiceForTest(t, nil)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "role", "email", "club_name", "cash", "status", "created_at"}).
				AddRow(7, "redsfan", models.RoleUser, "", "Red Star", int64(100), models.AccountApproved, time.Now()))
		mock.ExpectRollback()

		account, err := service.SetStatus(1, 7, models.AccountRejected, "")
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
		assert.NotNil(t, account)
		assert.Equal(t, models.AccountApproved, account.Status)
	})

	t.Run("invalid target status", func(t *testing.T) {
		service, _, db := newAccountServiceForTest(t, nil)
		defer db.Close()

		_, err := service.SetStatus(1, 7, "pending", "")
		assert.Error(t, err)
	})
}

func TestAccountService_HandleSetStatus(t *testing.T) {
	service, mock, db := newAccountServiceForTest(t, nil)
	defer db.Close()

	router := chi.NewRouter()
	router.Put("/admin/accounts/{accountId}/status", service.HandleSetStatus)

	asAdmin := func(r *http.Request) *http.Request {
		return r.WithContext(context.WithValue(r.Context(), "userID", 1))
	}

	t.Run("account not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(404).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		body := `{"status":"approved","clubName":"Red Star"}`
		req := asAdmin(httptest.NewRequest("PUT", "/admin/accounts/404/status", bytes.NewBufferString(body)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid status value", func(t *testing.T) {
		body := `{"status":"frozen"}`
		req := asAdmin(httptest.NewRequest("PUT", "/admin/accounts/7/status", bytes.NewBufferString(body)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAccountService_GetBalance(t *testing.T) {
	service, mock, db := newAccountServiceForTest(t, &config.EconomyConfig{Currency: "EUR"})
	defer db.Close()

	t.Run("returns balance with currency", func(t *testing.T) {
		mock.ExpectQuery("SELECT cash FROM accounts WHERE id = \\$1").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"cash"}).AddRow(250000))

		req := httptest.NewRequest("GET", "/accounts/balance", nil)
		req = req.WithContext(context.WithValue(req.Context(), "userID", 7))
		w := httptest.NewRecorder()

		service.GetBalance(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, float64(250000), response["cash"])
		assert.Equal(t, "EUR", response["currency"])
	})

	t.Run("missing auth context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/accounts/balance", nil)
		w := httptest.NewRecorder()

		service.GetBalance(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccountService_GetInventory(t *testing.T) {
	service, mock, db := newAccountServiceForTest(t, nil)
	defer db.Close()

	t.Run("returns summed inventory", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM accounts WHERE id = \\$1\\)").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT item_name, SUM\\(quantity\\) FROM inventory_grants").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"item_name", "sum"}).AddRow("training_boost", 5))

		req := httptest.NewRequest("GET", "/accounts/inventory", nil)
		req = req.WithContext(context.WithValue(req.Context(), "userID", 7))
		w := httptest.NewRecorder()

		service.GetInventory(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]int
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 5, response["training_boost"])
	})
}

func TestAccountService_ListAccounts(t *testing.T) {
	service, mock, db := newAccountServiceForTest(t, nil)
	defer db.Close()

	columns := []string{"id", "username", "role", "email", "club_name", "cash", "status", "created_at"}

	t.Run("status filter", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts WHERE status = \\$1 ORDER BY created_at ASC").
			WithArgs(models.AccountPending).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(7, "redsfan", models.RoleUser, "", nil, int64(0), models.AccountPending, time.Now()))

		req := httptest.NewRequest("GET", "/admin/accounts?status=pending", nil)
		w := httptest.NewRecorder()

		service.ListAccounts(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Accounts []models.Account `json:"accounts"`
			Count    int              `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 1, response.Count)
		assert.Equal(t, "redsfan", response.Accounts[0].Username)
	})

	t.Run("no filter lists all", func(t *testing.T) {
		mock.ExpectQuery("FROM accounts ORDER BY created_at ASC").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, "admin", models.RoleAdmin, "", nil, int64(0), models.AccountApproved, time.Now()).
				AddRow(7, "redsfan", models.RoleUser, "", nil, int64(0), models.AccountPending, time.Now()))

		req := httptest.NewRequest("GET", "/admin/accounts", nil)
		w := httptest.NewRecorder()

		service.ListAccounts(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	t.Run("round trip", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.True(t, verifyPassword("password123", hashed))
		assert.False(t, verifyPassword("wrongpass", hashed))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		h1, err := hashPassword("password123")
		assert.NoError(t, err)
		h2, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("malformed stored hash", func(t *testing.T) {
		assert.False(t, verifyPassword("password123", "not-a-hash"))
	})
}
