// Package sqlitex is the modular rewrite of the persistence layer. It covers
// the same tables as the legacy stores in internal/platform/sqlite but scans
// rows through sqlx into tagged row structs instead of hand-written Scan
// calls. The store bridges in internal/store route traffic here when the
// matching feature flag is on, falling back to the legacy stores on
// infrastructure errors, so both implementations must keep identical
// observable behavior.
package sqlitex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/platform/sqlite"
	"github.com/phrazzld/easel-api/internal/store"
)

// txMapper is the field mapper for transactions rebuilt from a plain
// *sql.Tx. sqlx.Tx values constructed by hand carry no mapper, and struct
// scans need one; this mirrors the default sqlx.DB mapper over db tags.
var txMapper = reflectx.NewMapperFunc("db", strings.ToLower)

// configurationRow mirrors the job_configurations table.
type configurationRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Model            string    `db:"model"`
	PromptTemplate   string    `db:"prompt_template"`
	Width            int       `db:"width"`
	Height           int       `db:"height"`
	VariationCount   int       `db:"variation_count"`
	Processing       string    `db:"processing"`
	QualityCheck     bool      `db:"quality_check"`
	GenerateMetadata bool      `db:"generate_metadata"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *configurationRow) toDomain() (*domain.JobConfiguration, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration id %q: %w", r.ID, err)
	}

	cfg := &domain.JobConfiguration{
		ID:               id,
		Name:             r.Name,
		Model:            r.Model,
		PromptTemplate:   r.PromptTemplate,
		Width:            r.Width,
		Height:           r.Height,
		VariationCount:   r.VariationCount,
		QualityCheck:     r.QualityCheck,
		GenerateMetadata: r.GenerateMetadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	if err := json.Unmarshal([]byte(r.Processing), &cfg.Processing); err != nil {
		return nil, fmt.Errorf("invalid processing settings: %w", err)
	}

	return cfg, nil
}

// ConfigurationStore implements store.ConfigurationStore on sqlx.
type ConfigurationStore struct {
	db sqlx.ExtContext
}

// NewConfigurationStore creates a modular ConfigurationStore.
func NewConfigurationStore(db *sqlx.DB) *ConfigurationStore {
	return &ConfigurationStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *ConfigurationStore) WithTx(tx *sql.Tx) store.ConfigurationStore {
	return &ConfigurationStore{db: &sqlx.Tx{Tx: tx, Mapper: txMapper}}
}

// Create saves a new configuration.
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
		if sqlite.IsUniqueViolation(err) {
			return store.ErrConfigurationNameExists
		}
		log.Error("failed to create configuration",
			"configuration_id", cfg.ID,
			"error", err)
		return store.NewStoreError("configuration", "create", "failed to insert row", sqlite.MapError(err))
	}

	return nil
}

// GetByID retrieves a configuration by its unique ID.
func (s *ConfigurationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobConfiguration, error) {
	return s.getWhere(ctx, `id = ?`, id.String())
}

// GetByName retrieves a configuration by its unique name.
func (s *ConfigurationStore) GetByName(ctx context.Context, name string) (*domain.JobConfiguration, error) {
	return s.getWhere(ctx, `name = ?`, name)
}

func (s *ConfigurationStore) getWhere(ctx context.Context, clause string, arg any) (*domain.JobConfiguration, error) {
	var row configurationRow
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT * FROM job_configurations WHERE `+clause, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConfigurationNotFound
		}
		logger.FromContext(ctx).Error("failed to get configuration", "error", err)
		return nil, store.NewStoreError("configuration", "get", "query failed", sqlite.MapError(err))
	}
	return row.toDomain()
}

// List returns all configurations ordered by creation time.
func (s *ConfigurationStore) List(ctx context.Context) ([]*domain.JobConfiguration, error) {
	var rows []configurationRow
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT * FROM job_configurations ORDER BY created_at ASC`)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list configurations", "error", err)
		return nil, store.NewStoreError("configuration", "list", "query failed", sqlite.MapError(err))
	}

	configs := make([]*domain.JobConfiguration, 0, len(rows))
	for i := range rows {
		cfg, err := rows[i].toDomain()
		if err != nil {
			return nil, store.NewStoreError("configuration", "list", "scan failed", err)
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		return nil, nil
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
		if sqlite.IsUniqueViolation(err) {
			return store.ErrConfigurationNameExists
		}
		log.Error("failed to update configuration",
			"configuration_id", cfg.ID,
			"error", err)
		return store.NewStoreError("configuration", "update", "failed to update row", sqlite.MapError(err))
	}

	return requireRowAffected(result, "configuration", "update", store.ErrConfigurationNotFound)
}

// Delete removes a configuration.
func (s *ConfigurationStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM job_configurations WHERE id = ?`, id.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete configuration",
			"configuration_id", id,
			"error", err)
		return store.NewStoreError("configuration", "delete", "failed to delete row", sqlite.MapError(err))
	}

	return requireRowAffected(result, "configuration", "delete", store.ErrConfigurationNotFound)
}

// requireRowAffected translates a zero-row write into the entity's not-found
// sentinel.
func requireRowAffected(result sql.Result, entity, operation string, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError(entity, operation, "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
