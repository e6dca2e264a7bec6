package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/matchsim/backend/internal/config"
	"github.com/matchsim/backend/internal/models"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AccountService handles registration, login and the admin-gated account
// lifecycle. New accounts start pending with zero cash; only an admin moves
// them to approved or rejected, and only an approved account participates in
// bids and submissions.
type AccountService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	audit     *AuditService
	cfg       *config.EconomyConfig
	validator *validator.Validate
}

func NewAccountService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, audit *AuditService, cfg *config.EconomyConfig) *AccountService {
	return &AccountService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		audit:     audit,
		cfg:       cfg,
		validator: validator.New(),
	}
}

// RegisterRequest is the registration payload
// @Description Registration request structure
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32" example:"redsfan"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
	Email    string `json:"email" validate:"omitempty,email" example:"user@example.com"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user" example:"user"`
}

// LoginRequest is the login payload
// @Description Login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required" example:"redsfan"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// AuthResponse carries the issued token and the account
// @Description Authentication response structure
type AuthResponse struct {
	Token   string         `json:"token"`
	Account models.Account `json:"account"`
}

// Register creates a pending account
// @Summary Register a new account
// @Description Create an account with status pending and zero cash, awaiting admin approval
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /auth/register [post]
func (s *AccountService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	account := models.Account{
		Username: strings.ToLower(req.Username),
		Role:     req.Role,
		Email:    req.Email,
		Status:   models.AccountPending,
	}
	err = s.db.QueryRow(`
		INSERT INTO accounts (username, password_hash, role, email, cash, status, created_at)
		VALUES ($1, $2, $3, $4, 0, 'pending', NOW())
		RETURNING id, created_at`,
		account.Username, hashedPassword, account.Role, account.Email,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Username already exists", http.StatusConflict, nil)
		return
	}

	token, err := s.issueToken(account.ID, account.Role)
	if err != nil {
		log.Printf("[AUTH] Token issue failed for account %d: %v", account.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account created - ID: %d, username: %s, status: pending", account.ID, account.Username)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: account})
}

// Login authenticates an account
// @Summary Login
// @Description Authenticate with username and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/login [post]
func (s *AccountService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var account models.Account
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, username, role, email, club_name, cash, status, created_at, password_hash
		FROM accounts WHERE username = $1`,
		strings.ToLower(req.Username),
	).Scan(&account.ID, &account.Username, &account.Role, &account.Email, &account.ClubName,
		&account.Cash, &account.Status, &account.CreatedAt, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Account not found for username: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for account: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := s.issueToken(account.ID, account.Role)
	if err != nil {
		log.Printf("[AUTH] Token issue failed for account %d: %v", account.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for account %d", account.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: account})
}

// Logout revokes the caller's token
// @Summary Logout
// @Description Blacklist the presented token until it expires
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *AccountService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // strip "Bearer "

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Get returns an account by id.
func (s *AccountService) Get(accountID int) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRow(`
		SELECT id, username, role, email, club_name, cash, status, created_at
		FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&account.ID, &account.Username, &account.Role, &account.Email, &account.ClubName,
		&account.Cash, &account.Status, &account.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// SetStatus moves a pending account to approved or rejected. Approval assigns
// the club name and, when configured, credits the starting budget through the
// ledger so it is audited like any other grant. One-directional: resolving a
// non-pending account yields ErrAlreadyResolved.
func (s *AccountService) SetStatus(adminID, accountID int, status, clubName string) (*models.Account, error) {
	if status != models.AccountApproved && status != models.AccountRejected {
		return nil, fmt.Errorf("invalid target status %q", status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var account models.Account
	err = tx.QueryRow(`
		SELECT id, username, role, email, club_name, cash, status, created_at
		FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&account.ID, &account.Username, &account.Role, &account.Email, &account.ClubName,
		&account.Cash, &account.Status, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%w: set status: %v", models.ErrStorageUnavailable, err)
	}
	if account.Status != models.AccountPending {
		return &account, fmt.Errorf("%w: account %d is %s", models.ErrAlreadyResolved, accountID, account.Status)
	}

	var club *string
	if status == models.AccountApproved && clubName != "" {
		club = &clubName
	}
	if _, err := tx.Exec(`
		UPDATE accounts SET status = $1, club_name = COALESCE($2, club_name)
		WHERE id = $3 AND status = 'pending'`,
		status, club, accountID); err != nil {
		return nil, fmt.Errorf("%w: set status: %v", models.ErrStorageUnavailable, err)
	}
	account.Status = status
	if club != nil {
		account.ClubName = club
	}

	if err := s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     adminID,
		Kind:        models.AuditAccountStatusChanged,
		SubjectKind: models.SubjectAccount,
		SubjectID:   accountID,
		Payload:     status,
	}); err != nil {
		return nil, err
	}

	if status == models.AccountApproved && s.cfg.StartingBudget > 0 {
		if err := s.ledger.CreditTx(tx, adminID, accountID, s.cfg.StartingBudget); err != nil {
			return nil, err
		}
		account.Cash += s.cfg.StartingBudget
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	log.Printf("[ACCOUNT] Account %d set to %s by admin %d", accountID, status, adminID)
	return &account, nil
}

// GetMyAccount returns the caller's account
// @Summary Get own account
// @Description Fetch the authenticated account, including balance and status
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Router /auth/account [get]
func (s *AccountService) GetMyAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := s.Get(accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Fetch failed for %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetBalance returns the caller's cash balance
// @Summary Get own balance
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{cash=int64,currency=string}
// @Router /accounts/balance [get]
func (s *AccountService) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := s.ledger.BalanceOf(accountID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownAccount) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"cash": balance, "currency": s.cfg.Currency})
}

// GetInventory returns the caller's inventory totals
// @Summary Get own inventory
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int
// @Router /accounts/inventory [get]
func (s *AccountService) GetInventory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	inventory, err := s.ledger.InventoryOf(accountID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownAccount) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch inventory", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inventory)
}

// ListAccounts lists accounts for admin review
// @Summary List accounts
// @Description List accounts, optionally filtered by status
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Account status filter"
// @Success 200 {object} object{accounts=[]models.Account,count=int}
// @Router /admin/accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	query := `
		SELECT id, username, role, email, club_name, cash, status, created_at
		FROM accounts`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[ACCOUNT] List failed: %v", err)
		SendErrorResponse(w, "Failed to list accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Role, &a.Email, &a.ClubName, &a.Cash, &a.Status, &a.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to list accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"accounts": accounts, "count": len(accounts)})
}

// HandleSetStatus approves or rejects a pending account
// @Summary Change account status
// @Description Move a pending account to approved (assigning a club, crediting the starting budget if configured) or rejected
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Param request body object{status=string,clubName=string} true "Target status"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ConflictResponse
// @Router /admin/accounts/{accountId}/status [put]
func (s *AccountService) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	adminID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		SendErrorResponse(w, "Invalid account ID", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Status   string `json:"status" validate:"required,oneof=approved rejected"`
		ClubName string `json:"clubName" validate:"max=100"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := s.SetStatus(adminID, accountID, req.Status, req.ClubName)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, models.ErrAlreadyResolved):
			SendConflictResponse(w, "Account already resolved", http.StatusConflict, account)
		default:
			log.Printf("[ACCOUNT] Status change for %d failed: %v", accountID, err)
			SendErrorResponse(w, "Failed to change account status", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (s *AccountService) issueToken(accountID int, role string) (string, error) {
	token, err := generateJWT(accountID, role)
	if err != nil {
		return "", err
	}
	if s.redis != nil {
		ctx := context.Background()
		expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		if err := s.redis.Set(ctx, "session:"+token, accountID, expiry).Err(); err != nil {
			log.Printf("[AUTH] Failed to store session: %v", err)
		}
	}
	return token, nil
}

func generateJWT(accountID int, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": accountID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
