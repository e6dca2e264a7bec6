package models

import "time"

// Audit action kinds.
const (
	AuditBidCreated           = "bid_created"
	AuditBidApproved          = "bid_approved"
	AuditBidRejected          = "bid_rejected"
	AuditSubmissionCreated    = "submission_created"
	AuditSubmissionApproved   = "submission_approved"
	AuditSubmissionRejected   = "submission_rejected"
	AuditCashGranted          = "cash_granted"
	AuditItemGranted          = "item_granted"
	AuditAccountStatusChanged = "account_status_changed"
)

// Audit subject kinds.
const (
	SubjectBid        = "bid"
	SubjectSubmission = "submission"
	SubjectAccount    = "account"
)

// AuditEntry is an immutable record of one state-changing action.
// Rows are append-only, never updated or deleted.
type AuditEntry struct {
	ID          int       `json:"id" db:"id"`
	ActorID     int       `json:"actorId" db:"actor_id"`
	Kind        string    `json:"kind" db:"kind"`
	SubjectKind string    `json:"subjectKind" db:"subject_kind"`
	SubjectID   int       `json:"subjectId" db:"subject_id"`
	Amount      *int64    `json:"amount,omitempty" db:"amount"` // in cents
	Payload     string    `json:"payload,omitempty" db:"payload"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
