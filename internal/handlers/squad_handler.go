package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/matchsim/backend/internal/models"
	"github.com/matchsim/backend/internal/services"
	"github.com/matchsim/backend/internal/storage"
)

const maxImageBytes = 10 << 20 // 10 MB

// SquadHandler exposes squad submission moderation over HTTP. It owns the
// multipart handling and hands the stored blob reference to the service.
type SquadHandler struct {
	service *services.SubmissionService
	blobs   storage.BlobStore
}

func NewSquadHandler(service *services.SubmissionService, blobs storage.BlobStore) *SquadHandler {
	return &SquadHandler{service: service, blobs: blobs}
}

// Upload accepts a squad image for review
// @Summary Upload a squad image
// @Description Store the image and create a pending submission for admin review
// @Tags squads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Squad image"
// @Param description formData string false "Free-text description"
// @Success 201 {object} models.SquadSubmission
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /squads [post]
func (h *SquadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		services.SendErrorResponse(w, "Invalid multipart form", http.StatusBadRequest, nil)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		services.SendErrorResponse(w, "Image file is required", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	ref, err := h.blobs.Put(file, header.Header.Get("Content-Type"))
	if err != nil {
		log.Printf("[SQUAD] Blob store failed for account %d: %v", accountID, err)
		services.SendErrorResponse(w, "Failed to store image", http.StatusInternalServerError, nil)
		return
	}

	sub, err := h.service.Upload(accountID, ref, r.FormValue("description"))
	if err != nil {
		// the submission row never existed; don't leave the blob orphaned
		if delErr := h.blobs.Delete(ref); delErr != nil {
			log.Printf("[SQUAD] Failed to delete orphaned blob %s: %v", ref, delErr)
		}
		switch {
		case errors.Is(err, models.ErrAccountNotApproved):
			services.SendErrorResponse(w, "Account not approved", http.StatusForbidden, nil)
		case errors.Is(err, models.ErrUnknownAccount):
			services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		default:
			log.Printf("[SQUAD] Upload failed for account %d: %v", accountID, err)
			services.SendErrorResponse(w, "Failed to create submission", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

// ListMine lists the caller's submissions
// @Summary List own squad submissions
// @Tags squads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{submissions=[]models.SquadSubmission,count=int}
// @Router /squads [get]
func (h *SquadHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(int)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	subs, err := h.service.ListByAccount(accountID)
	if err != nil {
		log.Printf("[SQUAD] List failed for account %d: %v", accountID, err)
		services.SendErrorResponse(w, "Failed to list submissions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"submissions": subs, "count": len(subs)})
}

// List lists submissions for admin review
// @Summary List squad submissions by status
// @Tags squads
// @Produce json
// @Security BearerAuth
// @Param status query string false "Submission status (default pending)"
// @Success 200 {object} object{submissions=[]models.SquadSubmission,count=int}
// @Router /admin/squads [get]
func (h *SquadHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.StatusPending
	}

	subs, err := h.service.ListByStatus(status)
	if err != nil {
		log.Printf("[SQUAD] Admin list failed: %v", err)
		services.SendErrorResponse(w, "Failed to list submissions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"submissions": subs, "count": len(subs)})
}

// Approve approves a pending submission
// @Summary Approve a squad submission
// @Tags squads
// @Produce json
// @Security BearerAuth
// @Param submissionId path int true "Submission ID"
// @Success 200 {object} models.SquadSubmission
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ConflictResponse
// @Router /admin/squads/{submissionId}/approve [put]
func (h *SquadHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Approve)
}

// Reject rejects a pending submission
// @Summary Reject a squad submission
// @Tags squads
// @Produce json
// @Security BearerAuth
// @Param submissionId path int true "Submission ID"
// @Success 200 {object} models.SquadSubmission
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ConflictResponse
// @Router /admin/squads/{submissionId}/reject [put]
func (h *SquadHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Reject)
}

func (h *SquadHandler) resolve(w http.ResponseWriter, r *http.Request, resolve func(int, int) (*models.SquadSubmission, error)) {
	adminID, ok := r.Context().Value("userID").(int)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	submissionID, err := strconv.Atoi(chi.URLParam(r, "submissionId"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid submission ID", http.StatusBadRequest, nil)
		return
	}

	sub, err := resolve(adminID, submissionID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			services.SendErrorResponse(w, "Submission not found", http.StatusNotFound, nil)
		case errors.Is(err, models.ErrAlreadyResolved):
			services.SendConflictResponse(w, "Submission already resolved", http.StatusConflict, sub)
		default:
			log.Printf("[SQUAD] Resolution of submission %d failed: %v", submissionID, err)
			services.SendErrorResponse(w, "Failed to resolve submission", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
