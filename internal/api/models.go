package api

import (
	"time"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/service"
)

// ProcessingSettingsModel mirrors domain.ProcessingSettings on the wire.
type ProcessingSettingsModel struct {
	RemoveBackground bool   `json:"remove_background"`
	ConvertFormat    bool   `json:"convert_format"`
	TargetFormat     string `json:"target_format,omitempty" validate:"omitempty,oneof=png jpeg"`
	Enhance          bool   `json:"enhance"`
}

// CreateConfigurationRequest is the request body for creating a
// configuration.
type CreateConfigurationRequest struct {
	Name             string                  `json:"name"            validate:"required,min=1,max=120"`
	Model            string                  `json:"model"           validate:"required"`
	PromptTemplate   string                  `json:"prompt_template" validate:"required"`
	Width            int                     `json:"width"           validate:"required,gt=0"`
	Height           int                     `json:"height"          validate:"required,gt=0"`
	VariationCount   int                     `json:"variation_count" validate:"required,gte=1"`
	Processing       ProcessingSettingsModel `json:"processing"`
	QualityCheck     bool                    `json:"quality_check"`
	GenerateMetadata bool                    `json:"generate_metadata"`
}

// UpdateConfigurationRequest is the request body for updating a
// configuration. The name in the URL identifies the configuration; all
// fields are replaced.
type UpdateConfigurationRequest = CreateConfigurationRequest

// ConfigurationResponse represents a configuration on the wire.
type ConfigurationResponse struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Model            string                  `json:"model"`
	PromptTemplate   string                  `json:"prompt_template"`
	Width            int                     `json:"width"`
	Height           int                     `json:"height"`
	VariationCount   int                     `json:"variation_count"`
	Processing       ProcessingSettingsModel `json:"processing"`
	QualityCheck     bool                    `json:"quality_check"`
	GenerateMetadata bool                    `json:"generate_metadata"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// StartJobRequest is the request body for starting a job.
type StartJobRequest struct {
	ConfigurationID string `json:"configuration_id" validate:"required,uuid"`
	Label           string `json:"label"            validate:"max=200"`
}

// StartJobResponse reports the execution a start or rerun produced.
type StartJobResponse struct {
	ExecutionID string `json:"execution_id"`
}

// RerunRequest is the request body for rerunning a past execution.
type RerunRequest struct {
	Overrides *OverridesModel `json:"overrides,omitempty"`
	Label     string          `json:"label" validate:"max=200"`
}

// OverridesModel carries optional per-rerun adjustments. Zero-valued fields
// leave the parent's snapshot untouched.
type OverridesModel struct {
	Model          string `json:"model,omitempty"`
	PromptTemplate string `json:"prompt_template,omitempty"`
	Width          int    `json:"width,omitempty"           validate:"omitempty,gt=0"`
	Height         int    `json:"height,omitempty"          validate:"omitempty,gt=0"`
	VariationCount int    `json:"variation_count,omitempty" validate:"omitempty,gte=1"`
}

// BulkRerunRequest is the request body for rerunning several executions.
type BulkRerunRequest struct {
	ExecutionIDs []string `json:"execution_ids" validate:"required,min=1,dive,uuid"`
}

// BulkRerunResponse reports which reruns were started before any failure.
type BulkRerunResponse struct {
	Started []string `json:"started"`
}

// StatusResponse reports the runner's current state.
type StatusResponse struct {
	State       string `json:"state"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// ExecutionResponse represents a job execution on the wire.
type ExecutionResponse struct {
	ID             string                `json:"id"`
	Label          string                `json:"label,omitempty"`
	Status         string                `json:"status"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty"`
	ConfigSnapshot ConfigurationResponse `json:"config_snapshot"`
	RequestedCount int                   `json:"requested_count"`
	SucceededCount int                   `json:"succeeded_count"`
	FailedCount    int                   `json:"failed_count"`
	ParentID       string                `json:"parent_id,omitempty"`
}

// ExecutionDetailResponse is an execution together with its images.
type ExecutionDetailResponse struct {
	Execution ExecutionResponse `json:"execution"`
	Images    []ImageResponse   `json:"images"`
}

// ImageResponse represents a generated image on the wire.
type ImageResponse struct {
	ID          string                  `json:"id"`
	MappingID   string                  `json:"mapping_id"`
	ExecutionID string                  `json:"execution_id"`
	Prompt      string                  `json:"prompt"`
	Seed        int64                   `json:"seed"`
	QCStatus    string                  `json:"qc_status"`
	QCReason    string                  `json:"qc_reason,omitempty"`
	FinalPath   string                  `json:"final_path,omitempty"`
	Metadata    domain.ImageMetadata    `json:"metadata"`
	Settings    ProcessingSettingsModel `json:"settings"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// StatisticsResponse aggregates execution outcomes.
type StatisticsResponse struct {
	TotalJobs   int     `json:"total_jobs"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Stopped     int     `json:"stopped"`
	SuccessRate float64 `json:"success_rate"`
}

// UpdateQCStatusRequest is the request body for setting an image's QC
// verdict.
type UpdateQCStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved failed retry_failed"`
	Reason string `json:"reason" validate:"max=500"`
}

// BulkDeleteRequest is the request body for deleting several images.
type BulkDeleteRequest struct {
	ImageIDs []string `json:"image_ids" validate:"required,min=1,dive,uuid"`
}

// BulkDeleteResponse reports how many deletions landed.
type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// BackupResponse reports a snapshot reference.
type BackupResponse struct {
	Ref string `json:"ref"`
}

// BackupListResponse lists available snapshots, newest first.
type BackupListResponse struct {
	Backups []string `json:"backups"`
}

// RestoreRequest is the request body for restoring a snapshot.
type RestoreRequest struct {
	Ref string `json:"ref" validate:"required"`
}

// --- converters ---

func processingToModel(s domain.ProcessingSettings) ProcessingSettingsModel {
	return ProcessingSettingsModel{
		RemoveBackground: s.RemoveBackground,
		ConvertFormat:    s.ConvertFormat,
		TargetFormat:     string(s.TargetFormat),
		Enhance:          s.Enhance,
	}
}

func processingFromModel(m ProcessingSettingsModel) domain.ProcessingSettings {
	return domain.ProcessingSettings{
		RemoveBackground: m.RemoveBackground,
		ConvertFormat:    m.ConvertFormat,
		TargetFormat:     domain.OutputFormat(m.TargetFormat),
		Enhance:          m.Enhance,
	}
}

func configurationToResponse(cfg *domain.JobConfiguration) ConfigurationResponse {
	return ConfigurationResponse{
		ID:               cfg.ID.String(),
		Name:             cfg.Name,
		Model:            cfg.Model,
		PromptTemplate:   cfg.PromptTemplate,
		Width:            cfg.Width,
		Height:           cfg.Height,
		VariationCount:   cfg.VariationCount,
		Processing:       processingToModel(cfg.Processing),
		QualityCheck:     cfg.QualityCheck,
		GenerateMetadata: cfg.GenerateMetadata,
		CreatedAt:        cfg.CreatedAt,
		UpdatedAt:        cfg.UpdatedAt,
	}
}

func executionToResponse(exec *domain.JobExecution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:             exec.ID.String(),
		Label:          exec.Label,
		Status:         string(exec.Status),
		StartedAt:      exec.StartedAt,
		FinishedAt:     exec.FinishedAt,
		ConfigSnapshot: configurationToResponse(&exec.ConfigSnapshot),
		RequestedCount: exec.RequestedCount,
		SucceededCount: exec.SucceededCount,
		FailedCount:    exec.FailedCount,
	}
	if exec.ParentID != nil {
		resp.ParentID = exec.ParentID.String()
	}
	return resp
}

func imageToResponse(img *domain.GeneratedImage) ImageResponse {
	return ImageResponse{
		ID:          img.ID.String(),
		MappingID:   img.MappingID,
		ExecutionID: img.ExecutionID.String(),
		Prompt:      img.Prompt,
		Seed:        img.Seed,
		QCStatus:    string(img.QCStatus),
		QCReason:    img.QCReason,
		FinalPath:   img.FinalPath,
		Metadata:    img.Metadata,
		Settings:    processingToModel(img.Settings),
		CreatedAt:   img.CreatedAt,
		UpdatedAt:   img.UpdatedAt,
	}
}

func detailToResponse(detail *service.ExecutionDetail) ExecutionDetailResponse {
	images := make([]ImageResponse, 0, len(detail.Images))
	for _, img := range detail.Images {
		images = append(images, imageToResponse(img))
	}
	return ExecutionDetailResponse{
		Execution: executionToResponse(detail.Execution),
		Images:    images,
	}
}
