package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
)

// ConfigurationStore defines the persistence interface for named job
// configurations.
type ConfigurationStore interface {
	// Create saves a new configuration. Returns ErrConfigurationNameExists
	// if the name is already taken.
	Create(ctx context.Context, cfg *domain.JobConfiguration) error

	// GetByID retrieves a configuration by its unique ID.
	// Returns ErrConfigurationNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobConfiguration, error)

	// GetByName retrieves a configuration by its unique name.
	// Returns ErrConfigurationNotFound if it does not exist.
	GetByName(ctx context.Context, name string) (*domain.JobConfiguration, error)

	// List returns all configurations ordered by creation time.
	List(ctx context.Context) ([]*domain.JobConfiguration, error)

	// Update saves changes to an existing configuration.
	// Returns ErrConfigurationNotFound if it does not exist.
	Update(ctx context.Context, cfg *domain.JobConfiguration) error

	// Delete removes a configuration.
	// Returns ErrConfigurationNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new store instance that uses the provided transaction.
	// The transaction is created and managed by the caller, typically via
	// RunInTransaction.
	WithTx(tx *sql.Tx) ConfigurationStore
}
