package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// QCStatus is the quality-check verdict for a generated image.
type QCStatus string

// Possible QC status values
const (
	QCStatusPending     QCStatus = "pending"
	QCStatusApproved    QCStatus = "approved"
	QCStatusFailed      QCStatus = "failed"
	QCStatusRetryFailed QCStatus = "retry_failed"
)

// Common validation errors for GeneratedImage
var (
	ErrEmptyImageID          = errors.New("image ID cannot be empty")
	ErrEmptyMappingID        = errors.New("image mapping ID cannot be empty")
	ErrEmptyImageExecutionID = errors.New("image execution ID cannot be empty")
	ErrEmptyImagePrompt      = errors.New("image prompt cannot be empty")
	ErrInvalidQCStatus       = errors.New("invalid QC status")
)

// ImageMetadata is the optional AI-generated descriptive metadata.
type ImageMetadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// GeneratedImage is one produced artifact. The MappingID is stable across
// retries of the same logical image, so a retried unit replaces its
// predecessor rather than appearing as a new image.
type GeneratedImage struct {
	ID          uuid.UUID `json:"id"`
	MappingID   string    `json:"mapping_id"`
	ExecutionID uuid.UUID `json:"execution_id"`

	Prompt string `json:"prompt"`
	Seed   int64  `json:"seed"`

	QCStatus QCStatus `json:"qc_status"`
	QCReason string   `json:"qc_reason,omitempty"`

	TempPath  string `json:"temp_path,omitempty"`
	FinalPath string `json:"final_path,omitempty"`

	Metadata ImageMetadata      `json:"metadata"`
	Settings ProcessingSettings `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGeneratedImage creates an image record for the given execution with
// QC status pending and the processing settings snapshotted.
func NewGeneratedImage(executionID uuid.UUID, mappingID, prompt string, seed int64, settings ProcessingSettings) (*GeneratedImage, error) {
	img := &GeneratedImage{
		ID:          uuid.New(),
		MappingID:   mappingID,
		ExecutionID: executionID,
		Prompt:      prompt,
		Seed:        seed,
		QCStatus:    QCStatusPending,
		Settings:    settings,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}

	return img, nil
}

// Validate checks if the GeneratedImage has valid data.
func (g *GeneratedImage) Validate() error {
	if g.ID == uuid.Nil {
		return ErrEmptyImageID
	}

	if g.MappingID == "" {
		return ErrEmptyMappingID
	}

	if g.ExecutionID == uuid.Nil {
		return ErrEmptyImageExecutionID
	}

	if g.Prompt == "" {
		return ErrEmptyImagePrompt
	}

	if !isValidQCStatus(g.QCStatus) {
		return ErrInvalidQCStatus
	}

	return nil
}

// UpdateQCStatus sets the QC verdict and reason, stamping the update time.
// Returns an error if the new status is invalid.
func (g *GeneratedImage) UpdateQCStatus(status QCStatus, reason string) error {
	if !isValidQCStatus(status) {
		return ErrInvalidQCStatus
	}

	g.QCStatus = status
	g.QCReason = reason
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// isValidQCStatus checks if the given status is a valid QCStatus.
func isValidQCStatus(status QCStatus) bool {
	switch status {
	case QCStatusPending, QCStatusApproved, QCStatusFailed, QCStatusRetryFailed:
		return true
	default:
		return false
	}
}
