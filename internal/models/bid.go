package models

import "time"

// Resolution states shared by transfer bids and squad submissions.
// pending is initial; approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type TransferBid struct {
	ID         int        `json:"id" db:"id"`
	AccountID  int        `json:"accountId" db:"account_id"`
	PlayerID   string     `json:"playerId" db:"player_id"`
	Amount     int64      `json:"amount" db:"amount"` // in cents
	Note       string     `json:"note,omitempty" db:"note"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
}

func (b *TransferBid) Resolved() bool {
	return b.Status != StatusPending
}
