package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/matchsim/backend/internal/config"
	"github.com/matchsim/backend/internal/models"
)

// DistributionService applies admin-initiated grants of cash and items to a
// set of accounts. Each account's grant is its own transaction: a failure for
// one account never rolls back grants already applied to others. This is a
// best-effort broadcast, not a settlement between two parties.
type DistributionService struct {
	db        *sql.DB
	ledger    *LedgerService
	cfg       *config.EconomyConfig
	validator *ValidationHelper
}

func NewDistributionService(db *sql.DB, ledger *LedgerService, cfg *config.EconomyConfig) *DistributionService {
	return &DistributionService{
		db:        db,
		ledger:    ledger,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// DistributionResult reports the outcome for one account in a distribution.
type DistributionResult struct {
	AccountID int    `json:"accountId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Distribute grants cash and/or items to every listed account and returns a
// per-account result list. Validation errors reject the whole call before any
// mutation; per-account failures afterwards are reported, not rolled back.
func (s *DistributionService) Distribute(adminID int, accountIDs []int, cashAmount int64, items map[string]int) ([]DistributionResult, error) {
	if cashAmount < 0 {
		return nil, models.ErrInvalidAmount
	}
	if cashAmount == 0 && len(items) == 0 {
		return nil, models.ErrInvalidAmount
	}
	for item, qty := range items {
		if qty <= 0 || item == "" {
			return nil, models.ErrInvalidQuantity
		}
	}

	results := make([]DistributionResult, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		if err := s.distributeOne(adminID, accountID, cashAmount, items); err != nil {
			results = append(results, DistributionResult{AccountID: accountID, Error: errorKind(err)})
			continue
		}
		results = append(results, DistributionResult{AccountID: accountID, Success: true})
	}
	return results, nil
}

// distributeOne applies all of one account's grants in a single transaction,
// so a half-granted account is never observable.
func (s *DistributionService) distributeOne(adminID, accountID int, cashAmount int64, items map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return models.ErrStorageUnavailable
	}
	defer tx.Rollback()

	if cashAmount > 0 {
		if err := s.ledger.CreditTx(tx, adminID, accountID, cashAmount); err != nil {
			return err
		}
	}
	for item, qty := range items {
		if err := s.ledger.GrantItemTx(tx, adminID, accountID, item, qty); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownAccount):
		return "UnknownAccount"
	case errors.Is(err, models.ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, models.ErrInvalidQuantity):
		return "InvalidQuantity"
	default:
		return "StorageUnavailable"
	}
}

// HandleDistribute grants cash/items to accounts
// @Summary Distribute cash and items
// @Description Apply immediate cash and item grants to a list of accounts; per-account results, no cross-account rollback
// @Tags distributions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{accountIds=[]int,cashAmount=int64,items=map[string]int} true "Distribution request"
// @Success 200 {object} object{batchId=string,results=[]services.DistributionResult}
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/distributions [post]
func (s *DistributionService) HandleDistribute(w http.ResponseWriter, r *http.Request) {
	adminID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		AccountIDs []int          `json:"accountIds" validate:"required,min=1,dive,gt=0"`
		CashAmount int64          `json:"cashAmount" validate:"gte=0"`
		Items      map[string]int `json:"items"`
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
	if len(req.AccountIDs) > s.cfg.MaxDistributionSize {
		SendErrorResponse(w, "Distribution size exceeds limit", http.StatusBadRequest, nil)
		return
	}

	batchID := uuid.NewString()
	log.Printf("[DISTRIBUTE] Batch %s by admin %d: %d accounts, cash=%d, items=%d",
		batchID, adminID, len(req.AccountIDs), req.CashAmount, len(req.Items))

	results, err := s.Distribute(adminID, req.AccountIDs, req.CashAmount, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidAmount):
			SendErrorResponse(w, "Nothing to distribute or negative cash amount", http.StatusBadRequest, nil)
		case errors.Is(err, models.ErrInvalidQuantity):
			SendErrorResponse(w, "Item quantities must be positive", http.StatusBadRequest, nil)
		default:
			log.Printf("[DISTRIBUTE] Batch %s failed: %v", batchID, err)
			SendErrorResponse(w, "Distribution failed", http.StatusInternalServerError, nil)
		}
		return
	}

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	log.Printf("[DISTRIBUTE] Batch %s done: %d/%d succeeded", batchID, succeeded, len(results))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"batchId": batchID,
		"results": results,
		"summary": map[string]int{
			"total":     len(results),
			"succeeded": succeeded,
			"failed":    len(results) - succeeded,
		},
	})
}
