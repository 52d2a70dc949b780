package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/easel-api/internal/api/shared"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/service"
)

// MaintenanceHandler handles migration, backup and restore requests.
type MaintenanceHandler struct {
	service *service.JobService
	logger  *slog.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(svc *service.JobService, log *slog.Logger) *MaintenanceHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for MaintenanceHandler")
	}

	return &MaintenanceHandler{
		service: svc,
		logger:  log.With(slog.String("component", "maintenance_handler")),
	}
}

// Migrate handles POST /maintenance/migrate requests. Re-running with no
// pending migrations is a no-op.
func (h *MaintenanceHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RunMigrations(r.Context()); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Migration failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Backup handles POST /maintenance/backup requests.
func (h *MaintenanceHandler) Backup(w http.ResponseWriter, r *http.Request) {
	ref, err := h.service.Backup(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Backup failed", err)
		return
	}

	logger.FromContext(r.Context()).Info("backup created", slog.String("ref", ref))
	shared.RespondWithJSON(w, r, http.StatusCreated, BackupResponse{Ref: ref})
}

// ListBackups handles GET /maintenance/backups requests.
func (h *MaintenanceHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	refs, err := h.service.ListBackups(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to list backups", err)
		return
	}
	if refs == nil {
		refs = []string{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BackupListResponse{Backups: refs})
}

// Restore handles POST /maintenance/restore requests. Restoring while a job
// runs is rejected.
func (h *MaintenanceHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	if err := h.service.Restore(r.Context(), req.Ref); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	logger.FromContext(r.Context()).Info("backup restored", slog.String("ref", req.Ref))
	w.WriteHeader(http.StatusNoContent)
}
