package services

import (
	"database/sql"
	"fmt"

	"github.com/matchsim/backend/internal/models"
)

// LedgerService is the only component permitted to mutate a cash balance or
// append an inventory grant. Debits are check-and-apply atomic: the balance is
// read under a row lock inside the same transaction that applies the change,
// so two concurrent debits on one account can never both pass a stale check.
type LedgerService struct {
	db    *sql.DB
	audit *AuditService
}

func NewLedgerService(db *sql.DB, audit *AuditService) *LedgerService {
	return &LedgerService{db: db, audit: audit}
}

// Credit increases an account's balance and audits it as cash_granted.
func (s *LedgerService) Credit(actorID, accountID int, amount int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if err := s.CreditTx(tx, actorID, accountID, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// CreditTx applies a credit inside the caller's transaction.
func (s *LedgerService) CreditTx(tx *sql.Tx, actorID, accountID int, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive, got %d", models.ErrInvalidAmount, amount)
	}

	result, err := tx.Exec(`
		UPDATE accounts SET cash = cash + $1 WHERE id = $2`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("%w: credit: %v", models.ErrStorageUnavailable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: credit: %v", models.ErrStorageUnavailable, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: account %d", models.ErrUnknownAccount, accountID)
	}

	return s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     actorID,
		Kind:        models.AuditCashGranted,
		SubjectKind: models.SubjectAccount,
		SubjectID:   accountID,
		Amount:      &amount,
	})
}

// Debit decreases an account's balance, failing with ErrInsufficientFunds if
// the balance is short. The debit itself is not audited here; the operation
// that triggered it (bid approval) writes the trail entry.
func (s *LedgerService) Debit(accountID int, amount int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if err := s.DebitTx(tx, accountID, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// DebitTx applies a debit inside the caller's transaction. The FOR UPDATE
// lock serializes it with any concurrent debit or credit on the same account.
func (s *LedgerService) DebitTx(tx *sql.Tx, accountID int, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit amount must be positive, got %d", models.ErrInvalidAmount, amount)
	}

	var balance int64
	err := tx.QueryRow(`
		SELECT cash FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: account %d", models.ErrUnknownAccount, accountID)
		}
		return fmt.Errorf("%w: debit: %v", models.ErrStorageUnavailable, err)
	}

	if balance < amount {
		return fmt.Errorf("%w: balance %d < amount %d", models.ErrInsufficientFunds, balance, amount)
	}

	if _, err := tx.Exec(`
		UPDATE accounts SET cash = cash - $1 WHERE id = $2`,
		amount, accountID); err != nil {
		return fmt.Errorf("%w: debit: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// GrantItem appends an inventory grant and audits it as item_granted.
func (s *LedgerService) GrantItem(actorID, accountID int, itemName string, quantity int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if err := s.GrantItemTx(tx, actorID, accountID, itemName, quantity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// GrantItemTx appends an inventory grant inside the caller's transaction.
func (s *LedgerService) GrantItemTx(tx *sql.Tx, actorID, accountID int, itemName string, quantity int) error {
	if quantity <= 0 || itemName == "" {
		return fmt.Errorf("%w: item %q quantity %d", models.ErrInvalidQuantity, itemName, quantity)
	}

	var exists bool
	err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`,
		accountID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: grant item: %v", models.ErrStorageUnavailable, err)
	}
	if !exists {
		return fmt.Errorf("%w: account %d", models.ErrUnknownAccount, accountID)
	}

	if _, err := tx.Exec(`
		INSERT INTO inventory_grants (account_id, item_name, quantity, granted_at)
		VALUES ($1, $2, $3, NOW())`,
		accountID, itemName, quantity); err != nil {
		return fmt.Errorf("%w: grant item: %v", models.ErrStorageUnavailable, err)
	}

	qty := int64(quantity)
	return s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     actorID,
		Kind:        models.AuditItemGranted,
		SubjectKind: models.SubjectAccount,
		SubjectID:   accountID,
		Amount:      &qty,
		Payload:     itemName,
	})
}

// BalanceOf returns the account's current cash balance.
func (s *LedgerService) BalanceOf(accountID int) (int64, error) {
	var balance int64
	err := s.db.QueryRow(`
		SELECT cash FROM accounts WHERE id = $1`,
		accountID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("%w: account %d", models.ErrUnknownAccount, accountID)
		}
		return 0, fmt.Errorf("%w: balance: %v", models.ErrStorageUnavailable, err)
	}
	return balance, nil
}

// InventoryOf returns the item -> total quantity mapping for an account,
// summed over all grants of each item.
func (s *LedgerService) InventoryOf(accountID int) (map[string]int, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`,
		accountID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: inventory: %v", models.ErrStorageUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: account %d", models.ErrUnknownAccount, accountID)
	}

	rows, err := s.db.Query(`
		SELECT item_name, SUM(quantity) FROM inventory_grants
		WHERE account_id = $1
		GROUP BY item_name`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: inventory: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	inventory := map[string]int{}
	for rows.Next() {
		var item string
		var total int
		if err := rows.Scan(&item, &total); err != nil {
			return nil, fmt.Errorf("%w: inventory: %v", models.ErrStorageUnavailable, err)
		}
		inventory[item] = total
	}
	return inventory, rows.Err()
}
