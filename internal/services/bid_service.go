package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/matchsim/backend/internal/models"
)

// BidService owns the transfer bid lifecycle: creation in pending state, and
// admin approval/rejection. Submission never touches the ledger and holds no
// escrow; balance sufficiency is re-checked under lock at approval time only.
type BidService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	audit     *AuditService
	validator *ValidationHelper
}

func NewBidService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, audit *AuditService) *BidService {
	return &BidService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		audit:     audit,
		validator: NewValidationHelper(),
	}
}

// Submit creates a pending bid for an approved account. No funds are reserved.
func (s *BidService) Submit(accountID int, playerID string, amount int64, note string) (*models.TransferBid, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: bid amount must be positive, got %d", models.ErrInvalidAmount, amount)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM accounts WHERE id = $1`, accountID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: account %d", models.ErrUnknownAccount, accountID)
		}
		return nil, fmt.Errorf("%w: submit bid: %v", models.ErrStorageUnavailable, err)
	}
	if status != models.AccountApproved {
		return nil, fmt.Errorf("%w: account %d is %s", models.ErrAccountNotApproved, accountID, status)
	}

	var playerExists bool
	err = tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM players WHERE external_id = $1)`, playerID).Scan(&playerExists)
	if err != nil {
		return nil, fmt.Errorf("%w: submit bid: %v", models.ErrStorageUnavailable, err)
	}
	if !playerExists {
		return nil, fmt.Errorf("%w: player %s", models.ErrUnknownPlayer, playerID)
	}

	bid := &models.TransferBid{
		AccountID: accountID,
		PlayerID:  playerID,
		Amount:    amount,
		Note:      note,
		Status:    models.StatusPending,
	}
	err = tx.QueryRow(`
		INSERT INTO transfer_bids (account_id, player_id, amount, note, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
		RETURNING id, created_at`,
		accountID, playerID, amount, note,
	).Scan(&bid.ID, &bid.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: submit bid: %v", models.ErrStorageUnavailable, err)
	}

	if err := s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     accountID,
		Kind:        models.AuditBidCreated,
		SubjectKind: models.SubjectBid,
		SubjectID:   bid.ID,
		Amount:      &amount,
		Payload:     playerID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	log.Printf("[BID] Bid %d created: account=%d player=%s amount=%d", bid.ID, accountID, playerID, amount)
	return bid, nil
}

// Approve resolves a pending bid. The debit, the status flip and the audit
// entry commit as one transaction; an insufficient balance surfaces as
// ErrInsufficientFundsAtApproval and leaves the bid pending for retry or
// rejection. A lost resolution race yields ErrAlreadyResolved.
func (s *BidService) Approve(adminID, bidID int) (*models.TransferBid, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	bid, err := s.lockBid(tx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.Resolved() {
		return bid, fmt.Errorf("%w: bid %d is %s", models.ErrAlreadyResolved, bidID, bid.Status)
	}

	if err := s.ledger.DebitTx(tx, bid.AccountID, bid.Amount); err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			return bid, fmt.Errorf("%w: bid %d", models.ErrInsufficientFundsAtApproval, bidID)
		}
		return nil, err
	}

	if err := s.resolveBid(tx, bid, models.StatusApproved); err != nil {
		return nil, err
	}

	if err := s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     adminID,
		Kind:        models.AuditBidApproved,
		SubjectKind: models.SubjectBid,
		SubjectID:   bid.ID,
		Amount:      &bid.Amount,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	log.Printf("[BID] Bid %d approved by admin %d: account=%d amount=%d", bid.ID, adminID, bid.AccountID, bid.Amount)
	s.notifyResolution(bid)
	return bid, nil
}

// Reject resolves a pending bid with no ledger effect.
func (s *BidService) Reject(adminID, bidID int) (*models.TransferBid, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	bid, err := s.lockBid(tx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.Resolved() {
		return bid, fmt.Errorf("%w: bid %d is %s", models.ErrAlreadyResolved, bidID, bid.Status)
	}

	if err := s.resolveBid(tx, bid, models.StatusRejected); err != nil {
		return nil, err
	}

	if err := s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     adminID,
		Kind:        models.AuditBidRejected,
		SubjectKind: models.SubjectBid,
		SubjectID:   bid.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	log.Printf("[BID] Bid %d rejected by admin %d", bid.ID, adminID)
	s.notifyResolution(bid)
	return bid, nil
}

// lockBid reads a bid under FOR UPDATE so the pending -> terminal transition
// is serialized per record.
func (s *BidService) lockBid(tx *sql.Tx, bidID int) (*models.TransferBid, error) {
	var bid models.TransferBid
	err := tx.QueryRow(`
		SELECT id, account_id, player_id, amount, note, status, created_at, resolved_at
		FROM transfer_bids
		WHERE id = $1
		FOR UPDATE`,
		bidID,
	).Scan(&bid.ID, &bid.AccountID, &bid.PlayerID, &bid.Amount, &bid.Note, &bid.Status, &bid.CreatedAt, &bid.ResolvedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%w: lock bid: %v", models.ErrStorageUnavailable, err)
	}
	return &bid, nil
}

// resolveBid flips pending to a terminal status. The status predicate backs
// up the row lock: zero rows affected means the race was lost.
func (s *BidService) resolveBid(tx *sql.Tx, bid *models.TransferBid, status string) error {
	var resolvedAt time.Time
	err := tx.QueryRow(`
		UPDATE transfer_bids SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = 'pending'
		RETURNING resolved_at`,
		status, bid.ID,
	).Scan(&resolvedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: bid %d", models.ErrAlreadyResolved, bid.ID)
		}
		return fmt.Errorf("%w: resolve bid: %v", models.ErrStorageUnavailable, err)
	}
	bid.Status = status
	bid.ResolvedAt = &resolvedAt
	return nil
}

// Get returns a bid by id.
func (s *BidService) Get(bidID int) (*models.TransferBid, error) {
	var bid models.TransferBid
	err := s.db.QueryRow(`
		SELECT id, account_id, player_id, amount, note, status, created_at, resolved_at
		FROM transfer_bids WHERE id = $1`,
		bidID,
	).Scan(&bid.ID, &bid.AccountID, &bid.PlayerID, &bid.Amount, &bid.Note, &bid.Status, &bid.CreatedAt, &bid.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// ListByAccount returns an account's bid history, newest first.
func (s *BidService) ListByAccount(accountID int) ([]models.TransferBid, error) {
	return s.list(`WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
}

// ListByStatus returns bids in a given status, oldest first so admins work
// the queue in submission order.
func (s *BidService) ListByStatus(status string) ([]models.TransferBid, error) {
	return s.list(`WHERE status = $1 ORDER BY created_at ASC`, status)
}

func (s *BidService) list(clause string, args ...interface{}) ([]models.TransferBid, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, player_id, amount, note, status, created_at, resolved_at
		FROM transfer_bids `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list bids: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	bids := []models.TransferBid{}
	for rows.Next() {
		var bid models.TransferBid
		if err := rows.Scan(&bid.ID, &bid.AccountID, &bid.PlayerID, &bid.Amount, &bid.Note, &bid.Status, &bid.CreatedAt, &bid.ResolvedAt); err != nil {
			return nil, fmt.Errorf("%w: list bids: %v", models.ErrStorageUnavailable, err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

// notifyResolution pushes the resolved bid onto the redis resolution queue
// for the presentation layer. Best effort, after commit.
func (s *BidService) notifyResolution(bid *models.TransferBid) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(bid)
	if err != nil {
		return
	}
	if err := s.redis.RPush(context.Background(), "resolution_queue", data).Err(); err != nil {
		log.Printf("[BID] Failed to queue resolution notice for bid %d: %v", bid.ID, err)
	}
}

// HTTP handlers

// SubmitBid creates a transfer bid
// @Summary Submit a transfer bid
// @Description Create a pending transfer bid against a catalog player
// @Tags bids
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{playerId=string,amount=int64,note=string} true "Bid details"
// @Success 201 {object} models.TransferBid
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /bids [post]
func (s *BidService) SubmitBid(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PlayerID string `json:"playerId" validate:"required"`
		Amount   int64  `json:"amount" validate:"required,gt=0"`
		Note     string `json:"note" validate:"max=500"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	bid, err := s.Submit(accountID, req.PlayerID, req.Amount, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountNotApproved):
			SendErrorResponse(w, "Account not approved", http.StatusForbidden, nil)
		case errors.Is(err, models.ErrInvalidAmount):
			SendErrorResponse(w, "Bid amount must be positive", http.StatusBadRequest, nil)
		case errors.Is(err, models.ErrUnknownPlayer):
			SendErrorResponse(w, "Player not found", http.StatusNotFound, nil)
		case errors.Is(err, models.ErrUnknownAccount):
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		default:
			log.Printf("[BID] Submit failed for account %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to submit bid", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bid)
}

// ListMyBids lists the caller's bid history
// @Summary List own bids
// @Description List the authenticated account's transfer bids, newest first
// @Tags bids
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{bids=[]models.TransferBid,count=int}
// @Router /bids [get]
func (s *BidService) ListMyBids(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	bids, err := s.ListByAccount(accountID)
	if err != nil {
		log.Printf("[BID] List failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to list bids", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"bids": bids, "count": len(bids)})
}

// ListBids lists bids for admin review
// @Summary List bids by status
// @Description List transfer bids in a given status, oldest first
// @Tags bids
// @Produce json
// @Security BearerAuth
// @Param status query string false "Bid status (default pending)"
// @Success 200 {object} object{bids=[]models.TransferBid,count=int}
// @Router /admin/bids [get]
func (s *BidService) ListBids(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.StatusPending
	}

	bids, err := s.ListByStatus(status)
	if err != nil {
		log.Printf("[BID] Admin list failed: %v", err)
		SendErrorResponse(w, "Failed to list bids", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"bids": bids, "count": len(bids)})
}

// ApproveBid approves a pending bid
// @Summary Approve a bid
// @Description Debit the bidder and mark the bid approved, atomically
// @Tags bids
// @Produce json
// @Security BearerAuth
// @Param bidId path int true "Bid ID"
// @Success 200 {object} models.TransferBid
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ConflictResponse
// @Router /admin/bids/{bidId}/approve [put]
func (s *BidService) ApproveBid(w http.ResponseWriter, r *http.Request) {
	s.resolveHandler(w, r, s.Approve)
}

// RejectBid rejects a pending bid
// @Summary Reject a bid
// @Description Mark the bid rejected; no ledger effect
// @Tags bids
// @Produce json
// @Security BearerAuth
// @Param bidId path int true "Bid ID"
// @Success 200 {object} models.TransferBid
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ConflictResponse
// @Router /admin/bids/{bidId}/reject [put]
func (s *BidService) RejectBid(w http.ResponseWriter, r *http.Request) {
	s.resolveHandler(w, r, s.Reject)
}

func (s *BidService) resolveHandler(w http.ResponseWriter, r *http.Request, resolve func(int, int) (*models.TransferBid, error)) {
	adminID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	bidID, err := strconv.Atoi(chi.URLParam(r, "bidId"))
	if err != nil {
		SendErrorResponse(w, "Invalid bid ID", http.StatusBadRequest, nil)
		return
	}

	bid, err := resolve(adminID, bidID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			SendErrorResponse(w, "Bid not found", http.StatusNotFound, nil)
		case errors.Is(err, models.ErrAlreadyResolved):
			SendConflictResponse(w, "Bid already resolved", http.StatusConflict, bid)
		case errors.Is(err, models.ErrInsufficientFundsAtApproval):
			SendConflictResponse(w, "Insufficient funds at approval; bid remains pending", http.StatusConflict, bid)
		default:
			log.Printf("[BID] Resolution of bid %d failed: %v", bidID, err)
			SendErrorResponse(w, "Failed to resolve bid", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bid)
}
