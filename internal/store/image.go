package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
)

// ImageStore defines the persistence interface for generated images.
type ImageStore interface {
	// Create saves a new image row. A row with the same mapping ID within
	// the same execution replaces the previous attempt's row.
	Create(ctx context.Context, img *domain.GeneratedImage) error

	// GetByID retrieves an image by its unique ID.
	// Returns ErrImageNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GeneratedImage, error)

	// ListByExecution returns all images of one execution in creation order.
	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]*domain.GeneratedImage, error)

	// Update saves changes to an existing image (QC verdict, paths,
	// metadata). Returns ErrImageNotFound if it does not exist.
	Update(ctx context.Context, img *domain.GeneratedImage) error

	// UpdateQCStatus sets the QC verdict and reason for one image.
	// Returns ErrImageNotFound if it does not exist.
	UpdateQCStatus(ctx context.Context, id uuid.UUID, status domain.QCStatus, reason string) error

	// Delete removes an image. Returns ErrImageNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new store instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ImageStore
}
