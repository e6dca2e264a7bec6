package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/matchsim/backend/internal/models"
)

// SubmissionService owns squad-image moderation. Same two-state machine as
// bids but with no ledger effect: approving a submission only flips its
// status, as evidence for out-of-band roster bookkeeping.
type SubmissionService struct {
	db    *sql.DB
	audit *AuditService
}

func NewSubmissionService(db *sql.DB, audit *AuditService) *SubmissionService {
	return &SubmissionService{db: db, audit: audit}
}

// Upload records a pending submission for an already-stored image blob.
func (s *SubmissionService) Upload(accountID int, imageRef, description string) (*models.SquadSubmission, error) {
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
		return nil, fmt.Errorf("%w: upload submission: %v", models.ErrStorageUnavailable, err)
	}
	if status != models.AccountApproved {
		return nil, fmt.Errorf("%w: account %d is %s", models.ErrAccountNotApproved, accountID, status)
	}

	sub := &models.SquadSubmission{
		AccountID:   accountID,
		ImageRef:    imageRef,
		Description: description,
		Status:      models.StatusPending,
	}
	err = tx.QueryRow(`
		INSERT INTO squad_submissions (account_id, image_ref, description, status, uploaded_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		RETURNING id, uploaded_at`,
		accountID, imageRef, description,
	).Scan(&sub.ID, &sub.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: upload submission: %v", models.ErrStorageUnavailable, err)
	}

	if err := s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     accountID,
		Kind:        models.AuditSubmissionCreated,
		SubjectKind: models.SubjectSubmission,
		SubjectID:   sub.ID,
		Payload:     imageRef,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	log.Printf("[SQUAD] Submission %d uploaded by account %d (ref %s)", sub.ID, accountID, imageRef)
	return sub, nil
}

// Approve resolves a pending submission. Only the status changes.
func (s *SubmissionService) Approve(adminID, submissionID int) (*models.SquadSubmission, error) {
	return s.resolve(adminID, submissionID, models.StatusApproved, models.AuditSubmissionApproved)
}

// Reject resolves a pending submission.
func (s *SubmissionService) Reject(adminID, submissionID int) (*models.SquadSubmission, error) {
	return s.resolve(adminID, submissionID, models.StatusRejected, models.AuditSubmissionRejected)
}

func (s *SubmissionService) resolve(adminID, submissionID int, status, auditKind string) (*models.SquadSubmission, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var sub models.SquadSubmission
	err = tx.QueryRow(`
		SELECT id, account_id, image_ref, description, status, uploaded_at, resolved_at
		FROM squad_submissions
		WHERE id = $1
		FOR UPDATE`,
		submissionID,
	).Scan(&sub.ID, &sub.AccountID, &sub.ImageRef, &sub.Description, &sub.Status, &sub.UploadedAt, &sub.ResolvedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%w: lock submission: %v", models.ErrStorageUnavailable, err)
	}
	if sub.Resolved() {
		return &sub, fmt.Errorf("%w: submission %d is %s", models.ErrAlreadyResolved, submissionID, sub.Status)
	}

	var resolvedAt time.Time
	err = tx.QueryRow(`
		UPDATE squad_submissions SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = 'pending'
		RETURNING resolved_at`,
		status, submissionID,
	).Scan(&resolvedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &sub, fmt.Errorf("%w: submission %d", models.ErrAlreadyResolved, submissionID)
		}
		return nil, fmt.Errorf("%w: resolve submission: %v", models.ErrStorageUnavailable, err)
	}
	sub.Status = status
	sub.ResolvedAt = &resolvedAt

	if err := s.audit.RecordTx(tx, &models.AuditEntry{
		ActorID:     adminID,
		Kind:        auditKind,
		SubjectKind: models.SubjectSubmission,
		SubjectID:   sub.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	log.Printf("[SQUAD] Submission %d %s by admin %d", sub.ID, status, adminID)
	return &sub, nil
}

// ListByAccount returns an account's submissions, newest first.
func (s *SubmissionService) ListByAccount(accountID int) ([]models.SquadSubmission, error) {
	return s.list(`WHERE account_id = $1 ORDER BY uploaded_at DESC`, accountID)
}

// ListByStatus returns submissions in a given status, oldest first.
func (s *SubmissionService) ListByStatus(status string) ([]models.SquadSubmission, error) {
	return s.list(`WHERE status = $1 ORDER BY uploaded_at ASC`, status)
}

func (s *SubmissionService) list(clause string, args ...interface{}) ([]models.SquadSubmission, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, image_ref, description, status, uploaded_at, resolved_at
		FROM squad_submissions `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list submissions: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	subs := []models.SquadSubmission{}
	for rows.Next() {
		var sub models.SquadSubmission
		if err := rows.Scan(&sub.ID, &sub.AccountID, &sub.ImageRef, &sub.Description, &sub.Status, &sub.UploadedAt, &sub.ResolvedAt); err != nil {
			return nil, fmt.Errorf("%w: list submissions: %v", models.ErrStorageUnavailable, err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
