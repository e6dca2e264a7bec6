package models

import "time"

// SquadSubmission is a user-uploaded squad image pending admin review.
// Approval has no ledger effect; the record itself is the evidence.
type SquadSubmission struct {
	ID          int        `json:"id" db:"id"`
	AccountID   int        `json:"accountId" db:"account_id"`
	ImageRef    string     `json:"imageRef" db:"image_ref"` // opaque blob store reference
	Description string     `json:"description,omitempty" db:"description"`
	Status      string     `json:"status" db:"status"`
	UploadedAt  time.Time  `json:"uploadedAt" db:"uploaded_at"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
}

func (s *SquadSubmission) Resolved() bool {
	return s.Status != StatusPending
}
