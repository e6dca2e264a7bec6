package models

import "time"

// InventoryGrant rows are append-only; the displayed quantity of an item is
// the sum over all grants of that item to the account.
type InventoryGrant struct {
	ID        int       `json:"id" db:"id"`
	AccountID int       `json:"accountId" db:"account_id"`
	ItemName  string    `json:"itemName" db:"item_name"`
	Quantity  int       `json:"quantity" db:"quantity"`
	GrantedAt time.Time `json:"grantedAt" db:"granted_at"`
}
