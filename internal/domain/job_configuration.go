package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for JobConfiguration
var (
	ErrEmptyConfigurationID   = errors.New("configuration ID cannot be empty")
	ErrEmptyConfigurationName = errors.New("configuration name cannot be empty")
	ErrEmptyPromptTemplate    = errors.New("prompt template cannot be empty")
	ErrEmptyModel             = errors.New("provider model cannot be empty")
	ErrInvalidDimensions      = errors.New("image dimensions must be positive")
	ErrInvalidVariationCount  = errors.New("variation count must be at least 1")
	ErrInvalidOutputFormat    = errors.New("invalid output format")
)

// OutputFormat is the on-disk format of a finished artifact.
type OutputFormat string

// Supported output formats
const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
)

// ProcessingSettings are the per-image post-processing toggles. They are
// snapshotted onto each GeneratedImage so a retry reproduces the exact
// processing of the original attempt.
type ProcessingSettings struct {
	RemoveBackground bool         `json:"remove_background"`
	ConvertFormat    bool         `json:"convert_format"`
	TargetFormat     OutputFormat `json:"target_format,omitempty"`
	Enhance          bool         `json:"enhance"`
}

// JobConfiguration is a named, reusable parameter set for a pipeline run.
// Executions record a snapshot of the configuration they ran with, so a
// configuration can be edited freely without rewriting history.
type JobConfiguration struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Model          string    `json:"model"`
	PromptTemplate string    `json:"prompt_template"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	VariationCount int       `json:"variation_count"`

	Processing ProcessingSettings `json:"processing"`

	// AI-feature toggles
	QualityCheck     bool `json:"quality_check"`
	GenerateMetadata bool `json:"generate_metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJobConfiguration creates a named configuration with validated fields.
func NewJobConfiguration(name, model, promptTemplate string, width, height, variations int) (*JobConfiguration, error) {
	cfg := &JobConfiguration{
		ID:             uuid.New(),
		Name:           name,
		Model:          model,
		PromptTemplate: promptTemplate,
		Width:          width,
		Height:         height,
		VariationCount: variations,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the JobConfiguration has valid data.
// Returns an error if any field fails validation.
func (c *JobConfiguration) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyConfigurationID
	}

	if c.Name == "" {
		return ErrEmptyConfigurationName
	}

	if c.Model == "" {
		return ErrEmptyModel
	}

	if c.PromptTemplate == "" {
		return ErrEmptyPromptTemplate
	}

	if c.Width <= 0 || c.Height <= 0 {
		return ErrInvalidDimensions
	}

	if c.VariationCount < 1 {
		return ErrInvalidVariationCount
	}

	if c.Processing.ConvertFormat {
		switch c.Processing.TargetFormat {
		case FormatPNG, FormatJPEG:
		default:
			return ErrInvalidOutputFormat
		}
	}

	return nil
}

// OutputFormat returns the on-disk format of a finished artifact: the
// conversion target when conversion is enabled, PNG otherwise.
func (c *JobConfiguration) OutputFormat() OutputFormat {
	if c.Processing.ConvertFormat && c.Processing.TargetFormat != "" {
		return c.Processing.TargetFormat
	}
	return FormatPNG
}

// Clone returns a deep copy of the configuration. Reruns clone the parent's
// snapshot so the new execution never aliases live configuration state.
func (c *JobConfiguration) Clone() *JobConfiguration {
	clone := *c
	return &clone
}

// ConfigurationOverrides carries optional per-rerun adjustments. Zero-valued
// fields leave the cloned snapshot untouched.
type ConfigurationOverrides struct {
	Model          string `json:"model,omitempty"`
	PromptTemplate string `json:"prompt_template,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	VariationCount int    `json:"variation_count,omitempty"`
}

// Apply merges the overrides onto the configuration in place.
func (o ConfigurationOverrides) Apply(c *JobConfiguration) {
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.PromptTemplate != "" {
		c.PromptTemplate = o.PromptTemplate
	}
	if o.Width > 0 {
		c.Width = o.Width
	}
	if o.Height > 0 {
		c.Height = o.Height
	}
	if o.VariationCount > 0 {
		c.VariationCount = o.VariationCount
	}
}
