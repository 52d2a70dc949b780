package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/maintenance"
	"github.com/phrazzld/easel-api/internal/store"
)

func newStoreDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "easel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, maintenance.NewMigrator(db, slog.Default()).Up(context.Background()))
	return db
}

func makeConfiguration(t *testing.T, name string) *domain.JobConfiguration {
	t.Helper()

	cfg, err := domain.NewJobConfiguration(name, "imagen-3", "a {subject} at golden hour", 1024, 768, 4)
	require.NoError(t, err)

	cfg.Processing = domain.ProcessingSettings{
		RemoveBackground: true,
		ConvertFormat:    true,
		TargetFormat:     domain.FormatJPEG,
	}
	cfg.QualityCheck = true
	return cfg
}

func makeExecution(t *testing.T, db *sql.DB, status domain.ExecutionStatus) *domain.JobExecution {
	t.Helper()

	exec, err := domain.NewJobExecution(makeConfiguration(t, "exec-"+uuid.NewString()), "", nil)
	require.NoError(t, err)
	if status != domain.ExecutionStatusRunning {
		require.NoError(t, exec.Finish(status))
	}

	require.NoError(t, NewExecutionStore(db).Create(context.Background(), exec))
	return exec
}

func TestConfigurationStore_CreateAndGet(t *testing.T) {
	db := newStoreDB(t)
	s := NewConfigurationStore(db)
	ctx := context.Background()

	cfg := makeConfiguration(t, "product-shots")
	require.NoError(t, s.Create(ctx, cfg))

	byID, err := s.GetByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, byID.Name)
	assert.Equal(t, cfg.Model, byID.Model)
	assert.Equal(t, cfg.PromptTemplate, byID.PromptTemplate)
	assert.Equal(t, cfg.Processing, byID.Processing)
	assert.True(t, byID.QualityCheck)
	assert.False(t, byID.GenerateMetadata)

	byName, err := s.GetByName(ctx, "product-shots")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, byName.ID)
}

func TestConfigurationStore_DuplicateName(t *testing.T) {
	db := newStoreDB(t)
	s := NewConfigurationStore(db)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, makeConfiguration(t, "product-shots")))

	err := s.Create(ctx, makeConfiguration(t, "product-shots"))
	require.ErrorIs(t, err, store.ErrConfigurationNameExists)
	assert.True(t, store.IsDuplicateError(err))
}

func TestConfigurationStore_NotFound(t *testing.T) {
	db := newStoreDB(t)
	s := NewConfigurationStore(db)
	ctx := context.Background()

	_, err := s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrConfigurationNotFound)

	_, err = s.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrConfigurationNotFound)

	missing := makeConfiguration(t, "missing")
	assert.ErrorIs(t, s.Update(ctx, missing), store.ErrConfigurationNotFound)
	assert.ErrorIs(t, s.Delete(ctx, uuid.New()), store.ErrConfigurationNotFound)
}

func TestConfigurationStore_UpdateAndList(t *testing.T) {
	db := newStoreDB(t)
	s := NewConfigurationStore(db)
	ctx := context.Background()

	first := makeConfiguration(t, "first")
	second := makeConfiguration(t, "second")
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	first.PromptTemplate = "a {subject} in soft light"
	first.VariationCount = 8
	require.NoError(t, s.Update(ctx, first))

	got, err := s.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a {subject} in soft light", got.PromptTemplate)
	assert.Equal(t, 8, got.VariationCount)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, second.ID))
	all, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID)
}

func TestExecutionStore_CreateAndGet(t *testing.T) {
	db := newStoreDB(t)
	s := NewExecutionStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusRunning)

	got, err := s.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusRunning, got.Status)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, exec.ConfigSnapshot.Name, got.ConfigSnapshot.Name)
	assert.Equal(t, exec.RequestedCount, got.RequestedCount)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrExecutionNotFound)
}

func TestExecutionStore_ParentReference(t *testing.T) {
	db := newStoreDB(t)
	s := NewExecutionStore(db)
	ctx := context.Background()

	parent := makeExecution(t, db, domain.ExecutionStatusCompleted)

	rerun, err := domain.NewJobExecution(&parent.ConfigSnapshot, "rerun", &parent.ID)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, rerun))

	got, err := s.GetByID(ctx, rerun.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)
}

func TestExecutionStore_UpdateCountersAndFinish(t *testing.T) {
	db := newStoreDB(t)
	s := NewExecutionStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusRunning)

	exec.RecordSuccess()
	exec.RecordSuccess()
	exec.RecordFailure()
	require.NoError(t, exec.Finish(domain.ExecutionStatusCompleted))
	require.NoError(t, s.Update(ctx, exec))

	got, err := s.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, 2, got.SucceededCount)
	assert.Equal(t, 1, got.FailedCount)
	require.NotNil(t, got.FinishedAt)
}

func TestExecutionStore_ListFilterAndLimit(t *testing.T) {
	db := newStoreDB(t)
	s := NewExecutionStore(db)
	ctx := context.Background()

	makeExecution(t, db, domain.ExecutionStatusCompleted)
	makeExecution(t, db, domain.ExecutionStatusCompleted)
	makeExecution(t, db, domain.ExecutionStatusFailed)
	makeExecution(t, db, domain.ExecutionStatusRunning)

	all, err := s.List(ctx, store.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	completed := domain.ExecutionStatusCompleted
	filtered, err := s.List(ctx, store.ExecutionFilter{Status: &completed})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, exec := range filtered {
		assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	}

	limited, err := s.List(ctx, store.ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestExecutionStore_CountNonTerminal(t *testing.T) {
	db := newStoreDB(t)
	s := NewExecutionStore(db)
	ctx := context.Background()

	count, err := s.CountNonTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	makeExecution(t, db, domain.ExecutionStatusRunning)
	makeExecution(t, db, domain.ExecutionStatusCompleted)

	count, err = s.CountNonTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExecutionStore_Statistics(t *testing.T) {
	db := newStoreDB(t)
	s := NewExecutionStore(db)
	ctx := context.Background()

	empty, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalJobs)
	assert.Zero(t, empty.SuccessRate)

	makeExecution(t, db, domain.ExecutionStatusCompleted)
	makeExecution(t, db, domain.ExecutionStatusCompleted)
	makeExecution(t, db, domain.ExecutionStatusCompleted)
	makeExecution(t, db, domain.ExecutionStatusFailed)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalJobs)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Stopped)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
}

func TestExecutionStore_DeleteCascadesImages(t *testing.T) {
	db := newStoreDB(t)
	execs := NewExecutionStore(db)
	images := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusCompleted)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a fox at golden hour", 42, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, images.Create(ctx, img))

	require.NoError(t, execs.Delete(ctx, exec.ID))

	_, err = images.GetByID(ctx, img.ID)
	assert.ErrorIs(t, err, store.ErrImageNotFound)
}

func TestImageStore_CreateAndGet(t *testing.T) {
	db := newStoreDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusRunning)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a fox at golden hour", 42, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	img.Metadata = domain.ImageMetadata{Title: "Fox", Tags: []string{"wildlife", "sunset"}}
	require.NoError(t, s.Create(ctx, img))

	got, err := s.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "0001", got.MappingID)
	assert.Equal(t, exec.ID, got.ExecutionID)
	assert.Equal(t, domain.QCStatusPending, got.QCStatus)
	assert.Equal(t, img.Metadata, got.Metadata)
	assert.Equal(t, exec.ConfigSnapshot.Processing, got.Settings)
}

func TestImageStore_RetryReplacesSameMapping(t *testing.T) {
	db := newStoreDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusRunning)

	first, err := domain.NewGeneratedImage(exec.ID, "0001", "first attempt", 1, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, first))

	// A retried unit keeps its mapping ID; persisting it must replace the
	// earlier attempt instead of adding a second row.
	retry, err := domain.NewGeneratedImage(exec.ID, "0001", "second attempt", 2, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, retry))

	listed, err := s.ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, retry.ID, listed[0].ID)
	assert.Equal(t, "second attempt", listed[0].Prompt)

	_, err = s.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, store.ErrImageNotFound)
}

func TestImageStore_CreateRejectsUnknownExecution(t *testing.T) {
	db := newStoreDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	img, err := domain.NewGeneratedImage(uuid.New(), "0001", "orphan", 1, domain.ProcessingSettings{})
	require.NoError(t, err)

	err = s.Create(ctx, img)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestImageStore_UpdateQCStatus(t *testing.T) {
	db := newStoreDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusRunning)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a fox", 1, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, img))

	require.NoError(t, s.UpdateQCStatus(ctx, img.ID, domain.QCStatusFailed, "subject out of frame"))

	got, err := s.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QCStatusFailed, got.QCStatus)
	assert.Equal(t, "subject out of frame", got.QCReason)

	assert.ErrorIs(t, s.UpdateQCStatus(ctx, uuid.New(), domain.QCStatusApproved, ""), store.ErrImageNotFound)
}

func TestImageStore_UpdateAndDelete(t *testing.T) {
	db := newStoreDB(t)
	s := NewImageStore(db)
	ctx := context.Background()

	exec := makeExecution(t, db, domain.ExecutionStatusRunning)

	img, err := domain.NewGeneratedImage(exec.ID, "0001", "a fox", 1, exec.ConfigSnapshot.Processing)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, img))

	img.FinalPath = "/output/fox-0001.jpg"
	img.Metadata = domain.ImageMetadata{Title: "Fox at dusk"}
	require.NoError(t, s.Update(ctx, img))

	got, err := s.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "/output/fox-0001.jpg", got.FinalPath)
	assert.Equal(t, "Fox at dusk", got.Metadata.Title)

	require.NoError(t, s.Delete(ctx, img.ID))
	assert.ErrorIs(t, s.Delete(ctx, img.ID), store.ErrImageNotFound)
}

func TestStores_WithTxSharesTransaction(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	cfg := makeConfiguration(t, "tx-config")
	exec, err := domain.NewJobExecution(cfg, "", nil)
	require.NoError(t, err)

	err = store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		if err := NewConfigurationStore(db).WithTx(tx).Create(ctx, cfg); err != nil {
			return err
		}
		return NewExecutionStore(db).WithTx(tx).Create(ctx, exec)
	})
	require.NoError(t, err)

	_, err = NewConfigurationStore(db).GetByID(ctx, cfg.ID)
	assert.NoError(t, err)
	_, err = NewExecutionStore(db).GetByID(ctx, exec.ID)
	assert.NoError(t, err)
}
