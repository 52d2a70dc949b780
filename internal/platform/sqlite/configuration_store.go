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

// ConfigurationStore implements store.ConfigurationStore using sqlite.
type ConfigurationStore struct {
	db store.DBTX
}

// NewConfigurationStore creates a new ConfigurationStore.
func NewConfigurationStore(db store.DBTX) *ConfigurationStore {
	return &ConfigurationStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *ConfigurationStore) WithTx(tx *sql.Tx) store.ConfigurationStore {
	return NewConfigurationStore(tx)
}

// Create saves a new configuration to the database.
func (s *ConfigurationStore) Create(ctx context.Context, cfg *domain.JobConfiguration) error {
	log := logger.FromContext(ctx)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	processing, err := json.Marshal(cfg.Processing)
	if err != nil {
		return fmt.Errorf("failed to marshal processing settings: %w", err)
	}

	query := `
		INSERT INTO job_configurations
			(id, name, model, prompt_template, width, height, variation_count,
			 processing, quality_check, generate_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		cfg.ID.String(),
		cfg.Name,
		cfg.Model,
		cfg.PromptTemplate,
		cfg.Width,
		cfg.Height,
		cfg.VariationCount,
		string(processing),
		cfg.QualityCheck,
		cfg.GenerateMetadata,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrConfigurationNameExists
		}
		log.Error("failed to create configuration",
			"configuration_id", cfg.ID,
			"error", err)
		return store.NewStoreError("configuration", "create", "failed to insert row", MapError(err))
	}

	return nil
}

// GetByID retrieves a configuration by its unique ID.
func (s *ConfigurationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobConfiguration, error) {
	row := s.db.QueryRowContext(ctx, selectConfiguration+` WHERE id = ?`, id.String())
	return s.scanConfiguration(ctx, row)
}

// GetByName retrieves a configuration by its unique name.
func (s *ConfigurationStore) GetByName(ctx context.Context, name string) (*domain.JobConfiguration, error) {
	row := s.db.QueryRowContext(ctx, selectConfiguration+` WHERE name = ?`, name)
	return s.scanConfiguration(ctx, row)
}

// List returns all configurations ordered by creation time.
func (s *ConfigurationStore) List(ctx context.Context) ([]*domain.JobConfiguration, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, selectConfiguration+` ORDER BY created_at ASC`)
	if err != nil {
		log.Error("failed to query configurations", "error", err)
		return nil, store.NewStoreError("configuration", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var configs []*domain.JobConfiguration
	for rows.Next() {
		cfg, err := scanConfigurationRow(rows)
		if err != nil {
			log.Error("failed to scan configuration row", "error", err)
			return nil, store.NewStoreError("configuration", "list", "scan failed", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("configuration", "list", "row iteration failed", MapError(err))
	}

	return configs, nil
}

// Update saves changes to an existing configuration.
func (s *ConfigurationStore) Update(ctx context.Context, cfg *domain.JobConfiguration) error {
	log := logger.FromContext(ctx)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	processing, err := json.Marshal(cfg.Processing)
	if err != nil {
		return fmt.Errorf("failed to marshal processing settings: %w", err)
	}

	query := `
		UPDATE job_configurations
		SET name = ?, model = ?, prompt_template = ?, width = ?, height = ?,
			variation_count = ?, processing = ?, quality_check = ?,
			generate_metadata = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Model,
		cfg.PromptTemplate,
		cfg.Width,
		cfg.Height,
		cfg.VariationCount,
		string(processing),
		cfg.QualityCheck,
		cfg.GenerateMetadata,
		time.Now().UTC(),
		cfg.ID.String(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrConfigurationNameExists
		}
		log.Error("failed to update configuration",
			"configuration_id", cfg.ID,
			"error", err)
		return store.NewStoreError("configuration", "update", "failed to update row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("configuration", "update", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrConfigurationNotFound
	}

	return nil
}

// Delete removes a configuration.
func (s *ConfigurationStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM job_configurations WHERE id = ?`, id.String())
	if err != nil {
		log.Error("failed to delete configuration",
			"configuration_id", id,
			"error", err)
		return store.NewStoreError("configuration", "delete", "failed to delete row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("configuration", "delete", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrConfigurationNotFound
	}

	return nil
}

const selectConfiguration = `
	SELECT id, name, model, prompt_template, width, height, variation_count,
		   processing, quality_check, generate_metadata, created_at, updated_at
	FROM job_configurations`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ConfigurationStore) scanConfiguration(ctx context.Context, row *sql.Row) (*domain.JobConfiguration, error) {
	cfg, err := scanConfigurationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConfigurationNotFound
		}
		logger.FromContext(ctx).Error("failed to scan configuration", "error", err)
		return nil, store.NewStoreError("configuration", "get", "scan failed", MapError(err))
	}
	return cfg, nil
}

func scanConfigurationRow(row rowScanner) (*domain.JobConfiguration, error) {
	var (
		idStr      string
		processing string
		cfg        domain.JobConfiguration
	)

	if err := row.Scan(
		&idStr,
		&cfg.Name,
		&cfg.Model,
		&cfg.PromptTemplate,
		&cfg.Width,
		&cfg.Height,
		&cfg.VariationCount,
		&processing,
		&cfg.QualityCheck,
		&cfg.GenerateMetadata,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration id %q: %w", idStr, err)
	}
	cfg.ID = id

	if err := json.Unmarshal([]byte(processing), &cfg.Processing); err != nil {
		return nil, fmt.Errorf("invalid processing settings: %w", err)
	}

	return &cfg, nil
}
