// Package api provides HTTP handlers for the API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/api/shared"
	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/redact"
	"github.com/phrazzld/easel-api/internal/service"
)

// ConfigurationHandler handles configuration CRUD requests.
type ConfigurationHandler struct {
	service *service.JobService
	logger  *slog.Logger
}

// NewConfigurationHandler creates a new ConfigurationHandler.
func NewConfigurationHandler(svc *service.JobService, log *slog.Logger) *ConfigurationHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ConfigurationHandler")
	}

	return &ConfigurationHandler{
		service: svc,
		logger:  log.With(slog.String("component", "configuration_handler")),
	}
}

// Create handles POST /configurations requests.
func (h *ConfigurationHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateConfigurationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	cfg, err := domain.NewJobConfiguration(
		req.Name, req.Model, req.PromptTemplate,
		req.Width, req.Height, req.VariationCount)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid configuration", err)
		return
	}
	cfg.Processing = processingFromModel(req.Processing)
	cfg.QualityCheck = req.QualityCheck
	cfg.GenerateMetadata = req.GenerateMetadata
	if err := cfg.Validate(); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid configuration", err)
		return
	}

	if err := h.service.CreateConfiguration(r.Context(), cfg); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("configuration created",
		slog.String("configuration_id", cfg.ID.String()),
		slog.String("name", cfg.Name))
	shared.RespondWithJSON(w, r, http.StatusCreated, configurationToResponse(cfg))
}

// List handles GET /configurations requests.
func (h *ConfigurationHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.ListConfigurations(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]ConfigurationResponse, 0, len(configs))
	for _, cfg := range configs {
		responses = append(responses, configurationToResponse(cfg))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// Get handles GET /configurations/{id} requests.
func (h *ConfigurationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	cfg, err := h.service.GetConfiguration(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, configurationToResponse(cfg))
}

// Update handles PUT /configurations/{id} requests.
func (h *ConfigurationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateConfigurationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	cfg, err := h.service.GetConfiguration(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	cfg.Name = req.Name
	cfg.Model = req.Model
	cfg.PromptTemplate = req.PromptTemplate
	cfg.Width = req.Width
	cfg.Height = req.Height
	cfg.VariationCount = req.VariationCount
	cfg.Processing = processingFromModel(req.Processing)
	cfg.QualityCheck = req.QualityCheck
	cfg.GenerateMetadata = req.GenerateMetadata
	if err := cfg.Validate(); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid configuration", err)
		return
	}

	if err := h.service.UpdateConfiguration(r.Context(), cfg); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, configurationToResponse(cfg))
}

// Delete handles DELETE /configurations/{id} requests.
func (h *ConfigurationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteConfiguration(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses a UUID URL parameter, writing a 400 response when it is
// missing or malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing identifier")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid identifier format")
		return uuid.Nil, false
	}
	return id, true
}
