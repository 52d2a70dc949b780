package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/api/shared"
	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/service"
)

// ImageHandler handles generated-image management requests.
type ImageHandler struct {
	service *service.JobService
	logger  *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(svc *service.JobService, log *slog.Logger) *ImageHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ImageHandler")
	}

	return &ImageHandler{
		service: svc,
		logger:  log.With(slog.String("component", "image_handler")),
	}
}

// UpdateQC handles PATCH /images/{id}/qc requests.
func (h *ImageHandler) UpdateQC(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateQCStatusRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	err := h.service.UpdateQCStatus(r.Context(), id, domain.QCStatus(req.Status), req.Reason)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Approve handles POST /images/{id}/approve requests, overriding the QC
// verdict to approved.
func (h *ImageHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ManualApprove(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /images/{id} requests.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteImage(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkDelete handles POST /images/delete requests. Deletions run in request
// order and stop at the first failure; the response reports how many landed.
func (h *ImageHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ImageIDs))
	for _, raw := range req.ImageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid identifier format")
			return
		}
		ids = append(ids, id)
	}

	deleted, err := h.service.BulkDelete(r.Context(), ids)
	if err != nil {
		// Partial progress still matters to the caller; report it in the
		// log, map the failure for the response.
		h.logger.Warn("bulk delete stopped early",
			slog.Int("deleted", deleted),
			slog.Int("requested", len(ids)))
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BulkDeleteResponse{Deleted: deleted})
}
