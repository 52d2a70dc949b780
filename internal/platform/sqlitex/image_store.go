package sqlitex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/platform/sqlite"
	"github.com/phrazzld/easel-api/internal/store"
)

// imageRow mirrors the generated_images table.
type imageRow struct {
	ID          string    `db:"id"`
	MappingID   string    `db:"mapping_id"`
	ExecutionID string    `db:"execution_id"`
	Prompt      string    `db:"prompt"`
	Seed        int64     `db:"seed"`
	QCStatus    string    `db:"qc_status"`
	QCReason    string    `db:"qc_reason"`
	TempPath    string    `db:"temp_path"`
	FinalPath   string    `db:"final_path"`
	Metadata    string    `db:"metadata"`
	Settings    string    `db:"settings"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *imageRow) toDomain() (*domain.GeneratedImage, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid image id %q: %w", r.ID, err)
	}
	execID, err := uuid.Parse(r.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("invalid execution id %q: %w", r.ExecutionID, err)
	}

	img := &domain.GeneratedImage{
		ID:          id,
		MappingID:   r.MappingID,
		ExecutionID: execID,
		Prompt:      r.Prompt,
		Seed:        r.Seed,
		QCStatus:    domain.QCStatus(r.QCStatus),
		QCReason:    r.QCReason,
		TempPath:    r.TempPath,
		FinalPath:   r.FinalPath,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if err := json.Unmarshal([]byte(r.Metadata), &img.Metadata); err != nil {
		return nil, fmt.Errorf("invalid image metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Settings), &img.Settings); err != nil {
		return nil, fmt.Errorf("invalid processing settings: %w", err)
	}

	return img, nil
}

// ImageStore implements store.ImageStore on sqlx.
type ImageStore struct {
	db sqlx.ExtContext
}

// NewImageStore creates a modular ImageStore.
func NewImageStore(db *sqlx.DB) *ImageStore {
	return &ImageStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *ImageStore) WithTx(tx *sql.Tx) store.ImageStore {
	return &ImageStore{db: &sqlx.Tx{Tx: tx, Mapper: txMapper}}
}

// Create saves a new image row, replacing an earlier attempt with the same
// execution and mapping ID.
func (s *ImageStore) Create(ctx context.Context, img *domain.GeneratedImage) error {
	log := logger.FromContext(ctx)

	if err := img.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(img.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal image metadata: %w", err)
	}
	settings, err := json.Marshal(img.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal processing settings: %w", err)
	}

	query := `
		INSERT INTO generated_images
			(id, mapping_id, execution_id, prompt, seed, qc_status, qc_reason,
			 temp_path, final_path, metadata, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, mapping_id) DO UPDATE SET
			id = excluded.id,
			prompt = excluded.prompt,
			seed = excluded.seed,
			qc_status = excluded.qc_status,
			qc_reason = excluded.qc_reason,
			temp_path = excluded.temp_path,
			final_path = excluded.final_path,
			metadata = excluded.metadata,
			settings = excluded.settings,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		img.ID.String(),
		img.MappingID,
		img.ExecutionID.String(),
		img.Prompt,
		img.Seed,
		img.QCStatus,
		img.QCReason,
		img.TempPath,
		img.FinalPath,
		string(metadata),
		string(settings),
		img.CreatedAt,
		img.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create image",
			"image_id", img.ID,
			"execution_id", img.ExecutionID,
			"error", err)
		return store.NewStoreError("image", "create", "failed to insert row", sqlite.MapError(err))
	}

	return nil
}

// GetByID retrieves an image by its unique ID.
func (s *ImageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GeneratedImage, error) {
	var row imageRow
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT * FROM generated_images WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrImageNotFound
		}
		logger.FromContext(ctx).Error("failed to get image",
			"image_id", id,
			"error", err)
		return nil, store.NewStoreError("image", "get", "query failed", sqlite.MapError(err))
	}
	return row.toDomain()
}

// ListByExecution returns all images of one execution in creation order.
func (s *ImageStore) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]*domain.GeneratedImage, error) {
	var rows []imageRow
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT * FROM generated_images WHERE execution_id = ? ORDER BY created_at ASC, mapping_id ASC`,
		executionID.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to list images",
			"execution_id", executionID,
			"error", err)
		return nil, store.NewStoreError("image", "list", "query failed", sqlite.MapError(err))
	}

	images := make([]*domain.GeneratedImage, 0, len(rows))
	for i := range rows {
		img, err := rows[i].toDomain()
		if err != nil {
			return nil, store.NewStoreError("image", "list", "scan failed", err)
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, nil
	}
	return images, nil
}

// Update saves changes to an existing image.
func (s *ImageStore) Update(ctx context.Context, img *domain.GeneratedImage) error {
	metadata, err := json.Marshal(img.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal image metadata: %w", err)
	}
	settings, err := json.Marshal(img.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal processing settings: %w", err)
	}

	query := `
		UPDATE generated_images
		SET prompt = ?, seed = ?, qc_status = ?, qc_reason = ?, temp_path = ?,
			final_path = ?, metadata = ?, settings = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		img.Prompt,
		img.Seed,
		img.QCStatus,
		img.QCReason,
		img.TempPath,
		img.FinalPath,
		string(metadata),
		string(settings),
		time.Now().UTC(),
		img.ID.String(),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to update image",
			"image_id", img.ID,
			"error", err)
		return store.NewStoreError("image", "update", "failed to update row", sqlite.MapError(err))
	}

	return requireRowAffected(result, "image", "update", store.ErrImageNotFound)
}

// UpdateQCStatus sets the QC verdict and reason for one image.
func (s *ImageStore) UpdateQCStatus(ctx context.Context, id uuid.UUID, status domain.QCStatus, reason string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE generated_images SET qc_status = ?, qc_reason = ?, updated_at = ? WHERE id = ?`,
		status, reason, time.Now().UTC(), id.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to update image QC status",
			"image_id", id,
			"qc_status", status,
			"error", err)
		return store.NewStoreError("image", "update_qc_status", "failed to update row", sqlite.MapError(err))
	}

	return requireRowAffected(result, "image", "update_qc_status", store.ErrImageNotFound)
}

// Delete removes an image.
func (s *ImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM generated_images WHERE id = ?`, id.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete image",
			"image_id", id,
			"error", err)
		return store.NewStoreError("image", "delete", "failed to delete row", sqlite.MapError(err))
	}

	return requireRowAffected(result, "image", "delete", store.ErrImageNotFound)
}
