package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/store"
)

// ImageStore implements store.ImageStore using sqlite.
type ImageStore struct {
	db store.DBTX
}

// NewImageStore creates a new ImageStore.
func NewImageStore(db store.DBTX) *ImageStore {
	return &ImageStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *ImageStore) WithTx(tx *sql.Tx) store.ImageStore {
	return NewImageStore(tx)
}

// Create saves a new image row. A retry of the same logical image (same
// execution and mapping ID) replaces the previous attempt's row.
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
		return store.NewStoreError("image", "create", "failed to insert row", MapError(err))
	}

	return nil
}

// GetByID retrieves an image by its unique ID.
func (s *ImageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GeneratedImage, error) {
	row := s.db.QueryRowContext(ctx, selectImage+` WHERE id = ?`, id.String())

	img, err := scanImageRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrImageNotFound
		}
		logger.FromContext(ctx).Error("failed to scan image",
			"image_id", id,
			"error", err)
		return nil, store.NewStoreError("image", "get", "scan failed", MapError(err))
	}

	return img, nil
}

// ListByExecution returns all images of one execution in creation order.
func (s *ImageStore) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]*domain.GeneratedImage, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		selectImage+` WHERE execution_id = ? ORDER BY created_at ASC, mapping_id ASC`,
		executionID.String())
	if err != nil {
		log.Error("failed to query images",
			"execution_id", executionID,
			"error", err)
		return nil, store.NewStoreError("image", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var images []*domain.GeneratedImage
	for rows.Next() {
		img, err := scanImageRow(rows)
		if err != nil {
			log.Error("failed to scan image row", "error", err)
			return nil, store.NewStoreError("image", "list", "scan failed", err)
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("image", "list", "row iteration failed", MapError(err))
	}

	return images, nil
}

// Update saves changes to an existing image.
func (s *ImageStore) Update(ctx context.Context, img *domain.GeneratedImage) error {
	log := logger.FromContext(ctx)

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
		log.Error("failed to update image",
			"image_id", img.ID,
			"error", err)
		return store.NewStoreError("image", "update", "failed to update row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("image", "update", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrImageNotFound
	}

	return nil
}

// UpdateQCStatus sets the QC verdict and reason for one image.
func (s *ImageStore) UpdateQCStatus(ctx context.Context, id uuid.UUID, status domain.QCStatus, reason string) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx,
		`UPDATE generated_images SET qc_status = ?, qc_reason = ?, updated_at = ? WHERE id = ?`,
		status, reason, time.Now().UTC(), id.String())
	if err != nil {
		log.Error("failed to update image QC status",
			"image_id", id,
			"qc_status", status,
			"error", err)
		return store.NewStoreError("image", "update_qc_status", "failed to update row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("image", "update_qc_status", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrImageNotFound
	}

	return nil
}

// Delete removes an image.
func (s *ImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM generated_images WHERE id = ?`, id.String())
	if err != nil {
		log.Error("failed to delete image",
			"image_id", id,
			"error", err)
		return store.NewStoreError("image", "delete", "failed to delete row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("image", "delete", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrImageNotFound
	}

	return nil
}

const selectImage = `
	SELECT id, mapping_id, execution_id, prompt, seed, qc_status, qc_reason,
		   temp_path, final_path, metadata, settings, created_at, updated_at
	FROM generated_images`

func scanImageRow(row rowScanner) (*domain.GeneratedImage, error) {
	var (
		idStr    string
		execStr  string
		metadata string
		settings string
		img      domain.GeneratedImage
	)

	if err := row.Scan(
		&idStr,
		&img.MappingID,
		&execStr,
		&img.Prompt,
		&img.Seed,
		&img.QCStatus,
		&img.QCReason,
		&img.TempPath,
		&img.FinalPath,
		&metadata,
		&settings,
		&img.CreatedAt,
		&img.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid image id %q: %w", idStr, err)
	}
	img.ID = id

	execID, err := uuid.Parse(execStr)
	if err != nil {
		return nil, fmt.Errorf("invalid execution id %q: %w", execStr, err)
	}
	img.ExecutionID = execID

	if err := json.Unmarshal([]byte(metadata), &img.Metadata); err != nil {
		return nil, fmt.Errorf("invalid image metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &img.Settings); err != nil {
		return nil, fmt.Errorf("invalid processing settings: %w", err)
	}

	return &img, nil
}
