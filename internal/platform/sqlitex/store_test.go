package sqlitex

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/maintenance"
	"github.com/phrazzld/easel-api/internal/platform/sqlite"
	"github.com/phrazzld/easel-api/internal/store"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "easel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, maintenance.NewMigrator(db, slog.Default()).Up(context.Background()))
	return sqlx.NewDb(db, "sqlite")
}

func makeConfiguration(t *testing.T, name string) *domain.JobConfiguration {
	t.Helper()

	cfg, err := domain.NewJobConfiguration(name, "imagen-3", "a {subject} at dawn", 512, 512, 2)
	require.NoError(t, err)
	cfg.Processing = domain.ProcessingSettings{RemoveBackground: true}
	cfg.GenerateMetadata = true
	return cfg
}

func makeExecution(t *testing.T, db *sqlx.DB) *domain.JobExecution {
	t.Helper()

	exec, err := domain.NewJobExecution(makeConfiguration(t, "exec-"+uuid.NewString()), "", nil)
	require.NoError(t, err)
	require.NoError(t, sqlite.NewExecutionStore(db.DB).Create(context.Background(), exec))
	return exec
}

func TestConfigurationStore_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	s := NewConfigurationStore(db)
	ctx := context.Background()

	cfg := makeConfiguration(t, "daily-batch")
	require.NoError(t, s.Create(ctx, cfg))

	got, err := s.GetByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, got.Name)
	assert.Equal(t, cfg.Processing, got.Processing)
	assert.True(t, got.GenerateMetadata)

	byName, err := s.GetByName(ctx, "daily-batch")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, byName.ID)
}

func TestConfigurationStore_SentinelParityWithLegacy(t *testing.T) {
	db := newTestDB(t)
	modular := NewConfigurationStore(db)
	legacy := sqlite.NewConfigurationStore(db.DB)
	ctx := context.Background()

	// The bridge treats these sentinels as authoritative, so both
	// implementations must return the same ones for the same inputs.
	missing := uuid.New()
	_, modularErr := modular.GetByID(ctx, missing)
	_, legacyErr := legacy.GetByID(ctx, missing)
	assert.ErrorIs(t, modularErr, store.ErrConfigurationNotFound)
	assert.ErrorIs(t, legacyErr, store.ErrConfigurationNotFound)

	require.NoError(t, modular.Create(ctx, makeConfiguration(t, "taken")))
	modularErr = modular.Create(ctx, makeConfiguration(t, "taken"))
	legacyErr = legacy.Create(ctx, makeConfiguration(t, "taken"))
	assert.ErrorIs(t, modularErr, store.ErrConfigurationNameExists)
	assert.ErrorIs(t, legacyErr, store.ErrConfigurationNameExists)

	assert.ErrorIs(t, modular.Delete(ctx, missing), store.ErrConfigurationNotFound)
	assert.ErrorIs(t, modular.Update(ctx, makeConfiguration(t, "ghost")), store.ErrConfigurationNotFound)
}

func TestConfigurationStore_ReadsLegacyWrites(t *testing.T) {
	db := newTestDB(t)
	modular := NewConfigurationStore(db)
	legacy := sqlite.NewConfigurationStore(db.DB)
	ctx := context.Background()

	cfg := makeConfiguration(t, "written-by-legacy")
	require.NoError(t, legacy.Create(ctx, cfg))

	fromModular, err := modular.GetByID(ctx, cfg.ID)
	require.NoError(t, err)
	fromLegacy, err := legacy.GetByID(ctx, cfg.ID)
	require.NoError(t, err)

	assert.Equal(t, fromLegacy, fromModular)
}

func TestConfigurationStore_ListAndUpdate(t *testing.T) {
	db := newTestDB(t)
	s := NewConfigurationStore(db)
	ctx := context.Background()

	empty, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	cfg := makeConfiguration(t, "daily-batch")
	require.NoError(t, s.Create(ctx, cfg))

	cfg.Model = "imagen-3-fast"
	require.NoError(t, s.Update(ctx, cfg))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "imagen-3-fast", all[0].Model)

	require.NoError(t, s.Delete(ctx, cfg.ID))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImageStore_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a heron in fog", 7, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, img))

	got, err := s.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "0001", got.MappingID)
	assert.Equal(t, exec.ID, got.ExecutionID)
	assert.Equal(t, domain.QCStatusPending, got.QCStatus)

	require.NoError(t, s.UpdateQCStatus(ctx, img.ID, domain.QCStatusApproved, ""))
	got, err = s.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QCStatusApproved, got.QCStatus)
}

func TestImageStore_RetryReplacesSameMapping(t *testing.T) {
	db := newTestDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db)

	first, err := domain.NewGeneratedImage(exec.ID, "0001", "first attempt", 1, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, first))

	retry, err := domain.NewGeneratedImage(exec.ID, "0001", "second attempt", 2, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, retry))

	listed, err := s.ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, retry.ID, listed[0].ID)
}

func TestImageStore_ParityWithLegacy(t *testing.T) {
	db := newTestDB(t)
	modular := NewImageStore(db)
	legacy := sqlite.NewImageStore(db.DB)
	ctx := context.Background()

	exec := makeExecution(t, db)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a heron in fog", 7, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, legacy.Create(ctx, img))

	fromModular, err := modular.GetByID(ctx, img.ID)
	require.NoError(t, err)
	fromLegacy, err := legacy.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, fromLegacy, fromModular)

	missing := uuid.New()
	_, modularErr := modular.GetByID(ctx, missing)
	_, legacyErr := legacy.GetByID(ctx, missing)
	assert.ErrorIs(t, modularErr, store.ErrImageNotFound)
	assert.ErrorIs(t, legacyErr, store.ErrImageNotFound)
}

func TestWithTx_ReadsInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	configs := NewConfigurationStore(db)
	images := NewImageStore(db)
	ctx := context.Background()

	cfg := makeConfiguration(t, "tx-reads")
	require.NoError(t, configs.Create(ctx, cfg))

	exec := makeExecution(t, db)
	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a heron in fog", 7, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, images.Create(ctx, img))

	// Struct-scanning reads must work through a store rebuilt from a plain
	// *sql.Tx, not only through the root *sqlx.DB.
	err = store.RunInTransaction(ctx, db.DB, func(ctx context.Context, tx *sql.Tx) error {
		txConfigs := configs.WithTx(tx)

		got, err := txConfigs.GetByID(ctx, cfg.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, cfg.Name, got.Name)

		byName, err := txConfigs.GetByName(ctx, "tx-reads")
		if err != nil {
			return err
		}
		assert.Equal(t, cfg.ID, byName.ID)

		txImages := images.WithTx(tx)

		fromTx, err := txImages.GetByID(ctx, img.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, img.MappingID, fromTx.MappingID)

		listed, err := txImages.ListByExecution(ctx, exec.ID)
		if err != nil {
			return err
		}
		require.Len(t, listed, 1)
		assert.Equal(t, img.ID, listed[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestImageStore_WithTxRollsBack(t *testing.T) {
	db := newTestDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "doomed", 1, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)

	rollback := assert.AnError
	err = store.RunInTransaction(ctx, db.DB, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.WithTx(tx).Create(ctx, img); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	_, err = s.GetByID(ctx, img.ID)
	assert.ErrorIs(t, err, store.ErrImageNotFound)
}
