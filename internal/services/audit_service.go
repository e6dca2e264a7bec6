package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matchsim/backend/internal/models"
)

// AuditService owns the append-only audit trail. Every state-changing
// operation appends exactly one entry inside its own transaction; an insert
// failure aborts the triggering operation.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// RecordTx appends an audit entry within the caller's transaction.
func (s *AuditService) RecordTx(tx *sql.Tx, entry *models.AuditEntry) error {
	err := tx.QueryRow(`
		INSERT INTO audit_entries (actor_id, kind, subject_kind, subject_id, amount, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		entry.ActorID, entry.Kind, entry.SubjectKind, entry.SubjectID, entry.Amount, entry.Payload,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: audit insert: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// AuditFilter narrows a trail query. Zero values mean "no filter".
type AuditFilter struct {
	ActorID int
	Kind    string
	From    time.Time
	To      time.Time
	Limit   int
}

// AuditIterator walks query results lazily in (created_at, id) ascending
// order. Re-running the same query yields identical results barring new
// writes, since entries are append-only.
type AuditIterator struct {
	rows *sql.Rows
}

func (it *AuditIterator) Next() bool { return it.rows.Next() }

func (it *AuditIterator) Entry() (*models.AuditEntry, error) {
	var e models.AuditEntry
	err := it.rows.Scan(&e.ID, &e.ActorID, &e.Kind, &e.SubjectKind, &e.SubjectID, &e.Amount, &e.Payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (it *AuditIterator) Close() error { return it.rows.Close() }

func (it *AuditIterator) Err() error { return it.rows.Err() }

// Query returns a lazy iterator over matching entries.
func (s *AuditService) Query(filter AuditFilter) (*AuditIterator, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	baseQuery := `
		SELECT id, actor_id, kind, subject_kind, subject_id, amount, payload, created_at
		FROM audit_entries
	`

	if filter.ActorID != 0 {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argIndex))
		args = append(args, filter.ActorID)
		argIndex++
	}

	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIndex))
		args = append(args, filter.Kind)
		argIndex++
	}

	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, filter.From)
		argIndex++
	}

	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, filter.To)
		argIndex++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: audit query: %v", models.ErrStorageUnavailable, err)
	}
	return &AuditIterator{rows: rows}, nil
}

// QueryAll materializes a filtered query; convenience for the HTTP layer.
func (s *AuditService) QueryAll(filter AuditFilter) ([]models.AuditEntry, error) {
	it, err := s.Query(filter)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	entries := []models.AuditEntry{}
	for it.Next() {
		e, err := it.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, it.Err()
}

// HandleQuery lists audit entries with optional filters
// @Summary Query the audit trail
// @Description List audit entries filtered by actor, action kind and time range, ascending by timestamp
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param actorId query int false "Filter by actor account ID"
// @Param kind query string false "Filter by action kind"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param limit query int false "Max entries (default 200, max 1000)"
// @Success 200 {object} object{entries=[]models.AuditEntry,count=int}
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/audit [get]
func (s *AuditService) HandleQuery(w http.ResponseWriter, r *http.Request) {
	filter := AuditFilter{Limit: 200}

	if v := r.URL.Query().Get("actorId"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			SendErrorResponse(w, "Invalid actorId", http.StatusBadRequest, nil)
			return
		}
		filter.ActorID = id
	}

	filter.Kind = r.URL.Query().Get("kind")

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			SendErrorResponse(w, "Invalid from timestamp", http.StatusBadRequest, nil)
			return
		}
		filter.From = t
	}

	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			SendErrorResponse(w, "Invalid to timestamp", http.StatusBadRequest, nil)
			return
		}
		filter.To = t
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 1000 {
			filter.Limit = l
		}
	}

	entries, err := s.QueryAll(filter)
	if err != nil {
		log.Printf("[AUDIT] Query failed: %v", err)
		SendErrorResponse(w, "Failed to query audit trail", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
