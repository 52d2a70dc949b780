package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/api/shared"
	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/redact"
	"github.com/phrazzld/easel-api/internal/service"
)

// JobHandler handles job control and query requests.
type JobHandler struct {
	service *service.JobService
	logger  *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc *service.JobService, log *slog.Logger) *JobHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}

	return &JobHandler{
		service: svc,
		logger:  log.With(slog.String("component", "job_handler")),
	}
}

// Start handles POST /jobs/start requests.
func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req StartJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	configID, err := uuid.Parse(req.ConfigurationID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid identifier format")
		return
	}

	execID, err := h.service.Start(r.Context(), configID, req.Label)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, StartJobResponse{ExecutionID: execID.String()})
}

// Stop handles POST /jobs/stop requests. Stopping is cooperative; the
// response only acknowledges the request.
func (h *JobHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.service.Stop(r.Context())
	shared.RespondWithJSON(w, r, http.StatusAccepted, h.statusResponse())
}

// ForceStop handles POST /jobs/force-stop requests.
func (h *JobHandler) ForceStop(w http.ResponseWriter, r *http.Request) {
	h.service.ForceStop(r.Context())
	shared.RespondWithJSON(w, r, http.StatusAccepted, h.statusResponse())
}

// Status handles GET /jobs/status requests.
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.statusResponse())
}

func (h *JobHandler) statusResponse() StatusResponse {
	status := h.service.GetStatus()
	resp := StatusResponse{State: string(status.State)}
	if status.ExecutionID != nil {
		resp.ExecutionID = status.ExecutionID.String()
	}
	return resp
}

// Rerun handles POST /jobs/{id}/rerun requests.
func (h *JobHandler) Rerun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RerunRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	var overrides *domain.ConfigurationOverrides
	if req.Overrides != nil {
		overrides = &domain.ConfigurationOverrides{
			Model:          req.Overrides.Model,
			PromptTemplate: req.Overrides.PromptTemplate,
			Width:          req.Overrides.Width,
			Height:         req.Overrides.Height,
			VariationCount: req.Overrides.VariationCount,
		}
	}

	execID, err := h.service.Rerun(r.Context(), id, overrides, req.Label)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, StartJobResponse{ExecutionID: execID.String()})
}

// BulkRerun handles POST /jobs/rerun requests. Reruns are strictly
// sequential; the response lists the executions started before any failure.
func (h *JobHandler) BulkRerun(w http.ResponseWriter, r *http.Request) {
	var req BulkRerunRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ExecutionIDs))
	for _, raw := range req.ExecutionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid identifier format")
			return
		}
		ids = append(ids, id)
	}

	started, err := h.service.BulkRerun(r.Context(), ids)
	resp := BulkRerunResponse{Started: make([]string, 0, len(started))}
	for _, id := range started {
		resp.Started = append(resp.Started, id.String())
	}
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// History handles GET /jobs/history requests. Supports optional status and
// limit query parameters.
func (h *JobHandler) History(w http.ResponseWriter, r *http.Request) {
	filter := service.HistoryFilter{}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.ExecutionStatus(raw)
		switch status {
		case domain.ExecutionStatusRunning, domain.ExecutionStatusCompleted,
			domain.ExecutionStatusFailed, domain.ExecutionStatusStopped:
			filter.Status = &status
		default:
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	execs, err := h.service.GetHistory(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]ExecutionResponse, 0, len(execs))
	for _, exec := range execs {
		responses = append(responses, executionToResponse(exec))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// Get handles GET /jobs/{id} requests, returning the execution with its
// images.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.service.GetExecution(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, detailToResponse(detail))
}

// Delete handles DELETE /jobs/{id} requests.
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteExecution(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Statistics handles GET /jobs/statistics requests.
func (h *JobHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStatistics(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatisticsResponse{
		TotalJobs:   stats.TotalJobs,
		Completed:   stats.Completed,
		Failed:      stats.Failed,
		Stopped:     stats.Stopped,
		SuccessRate: stats.SuccessRate,
	})
}
