package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/job"
	"github.com/phrazzld/easel-api/internal/maintenance"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/store"
)

// HistoryFilter narrows GetHistory results.
type HistoryFilter struct {
	Status *domain.ExecutionStatus
	Limit  int
}

// ExecutionDetail is an execution together with its images.
type ExecutionDetail struct {
	Execution *domain.JobExecution    `json:"execution"`
	Images    []*domain.GeneratedImage `json:"images"`
}

// JobService orchestrates everything the external surface can do. All
// store access goes through the bridged repositories handed in at
// construction.
type JobService struct {
	runner         *job.Runner
	configurations store.ConfigurationStore
	executions     store.ExecutionStore
	images         store.ImageStore
	migrator       *maintenance.Migrator
	backups        *maintenance.BackupManager
	logger         *slog.Logger
}

// NewJobService creates a JobService.
func NewJobService(
	runner *job.Runner,
	configurations store.ConfigurationStore,
	executions store.ExecutionStore,
	images store.ImageStore,
	migrator *maintenance.Migrator,
	backups *maintenance.BackupManager,
	log *slog.Logger,
) *JobService {
	if log == nil {
		log = slog.Default()
	}
	return &JobService{
		runner:         runner,
		configurations: configurations,
		executions:     executions,
		images:         images,
		migrator:       migrator,
		backups:        backups,
		logger:         log.With("component", "job_service"),
	}
}

// --- configuration management ---

// CreateConfiguration validates and stores a new named configuration.
func (s *JobService) CreateConfiguration(ctx context.Context, cfg *domain.JobConfiguration) error {
	if err := s.configurations.Create(ctx, cfg); err != nil {
		return s.mapConfigurationError("create_configuration", err)
	}
	return nil
}

// GetConfiguration returns one configuration by ID.
func (s *JobService) GetConfiguration(ctx context.Context, id uuid.UUID) (*domain.JobConfiguration, error) {
	cfg, err := s.configurations.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapConfigurationError("get_configuration", err)
	}
	return cfg, nil
}

// GetConfigurationByName returns one configuration by its unique name.
func (s *JobService) GetConfigurationByName(ctx context.Context, name string) (*domain.JobConfiguration, error) {
	cfg, err := s.configurations.GetByName(ctx, name)
	if err != nil {
		return nil, s.mapConfigurationError("get_configuration", err)
	}
	return cfg, nil
}

// ListConfigurations returns all configurations.
func (s *JobService) ListConfigurations(ctx context.Context) ([]*domain.JobConfiguration, error) {
	configs, err := s.configurations.List(ctx)
	if err != nil {
		return nil, NewJobServiceError("list_configurations", "store query failed", err)
	}
	return configs, nil
}

// UpdateConfiguration saves changes to an existing configuration.
func (s *JobService) UpdateConfiguration(ctx context.Context, cfg *domain.JobConfiguration) error {
	if err := s.configurations.Update(ctx, cfg); err != nil {
		return s.mapConfigurationError("update_configuration", err)
	}
	return nil
}

// DeleteConfiguration removes a configuration. Past executions keep their
// snapshots, so history is unaffected.
func (s *JobService) DeleteConfiguration(ctx context.Context, id uuid.UUID) error {
	if err := s.configurations.Delete(ctx, id); err != nil {
		return s.mapConfigurationError("delete_configuration", err)
	}
	return nil
}

// --- job control ---

// Start begins a run of the named configuration.
func (s *JobService) Start(ctx context.Context, configurationID uuid.UUID, label string) (uuid.UUID, error) {
	cfg, err := s.configurations.GetByID(ctx, configurationID)
	if err != nil {
		return uuid.Nil, s.mapConfigurationError("start", err)
	}

	execID, err := s.runner.Start(ctx, cfg, label)
	if err != nil {
		return uuid.Nil, s.mapRunnerError("start", err)
	}

	logger.FromContext(ctx).Info("job started",
		"execution_id", execID,
		"configuration_id", configurationID)
	return execID, nil
}

// Stop requests a cooperative stop of the active run.
func (s *JobService) Stop(ctx context.Context) {
	s.runner.Stop()
}

// ForceStop cancels the active run immediately.
func (s *JobService) ForceStop(ctx context.Context) {
	s.runner.ForceStop()
}

// Rerun starts a new run from a past execution's snapshot.
func (s *JobService) Rerun(ctx context.Context, executionID uuid.UUID, overrides *domain.ConfigurationOverrides, label string) (uuid.UUID, error) {
	execID, err := s.runner.Rerun(ctx, executionID, overrides, label)
	if err != nil {
		return uuid.Nil, s.mapRunnerError("rerun", err)
	}
	return execID, nil
}

// BulkRerun reruns several executions sequentially.
func (s *JobService) BulkRerun(ctx context.Context, executionIDs []uuid.UUID) ([]uuid.UUID, error) {
	started, err := s.runner.BulkRerun(ctx, executionIDs)
	if err != nil {
		return started, s.mapRunnerError("bulk_rerun", err)
	}
	return started, nil
}

// GetStatus returns the runner's current state.
func (s *JobService) GetStatus() job.Status {
	return s.runner.Status()
}

// --- history and statistics ---

// GetHistory lists past executions, most recent first.
func (s *JobService) GetHistory(ctx context.Context, filter HistoryFilter) ([]*domain.JobExecution, error) {
	execs, err := s.executions.List(ctx, store.ExecutionFilter{
		Status: filter.Status,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, NewJobServiceError("get_history", "store query failed", err)
	}
	return execs, nil
}

// GetExecution returns one execution with its images.
func (s *JobService) GetExecution(ctx context.Context, id uuid.UUID) (*ExecutionDetail, error) {
	exec, err := s.executions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, NewJobServiceError("get_execution", "store query failed", err)
	}

	images, err := s.images.ListByExecution(ctx, id)
	if err != nil {
		return nil, NewJobServiceError("get_execution", "failed to load images", err)
	}

	return &ExecutionDetail{Execution: exec, Images: images}, nil
}

// DeleteExecution removes an execution and, through the schema cascade, its
// images.
func (s *JobService) DeleteExecution(ctx context.Context, id uuid.UUID) error {
	if err := s.executions.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			return ErrJobNotFound
		}
		return NewJobServiceError("delete_execution", "store delete failed", err)
	}
	return nil
}

// GetStatistics aggregates execution outcomes.
func (s *JobService) GetStatistics(ctx context.Context) (*store.ExecutionStatistics, error) {
	stats, err := s.executions.Statistics(ctx)
	if err != nil {
		return nil, NewJobServiceError("get_statistics", "store query failed", err)
	}
	return stats, nil
}

// --- image management ---

// UpdateQCStatus sets an image's quality-control verdict.
func (s *JobService) UpdateQCStatus(ctx context.Context, imageID uuid.UUID, status domain.QCStatus, reason string) error {
	switch status {
	case domain.QCStatusPending, domain.QCStatusApproved, domain.QCStatusFailed, domain.QCStatusRetryFailed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidQCStatus, status)
	}

	if err := s.images.UpdateQCStatus(ctx, imageID, status, reason); err != nil {
		if errors.Is(err, store.ErrImageNotFound) {
			return ErrImageNotFound
		}
		return NewJobServiceError("update_qc_status", "store update failed", err)
	}
	return nil
}

// ManualApprove overrides an image's QC verdict to approved.
func (s *JobService) ManualApprove(ctx context.Context, imageID uuid.UUID) error {
	return s.UpdateQCStatus(ctx, imageID, domain.QCStatusApproved, "manually approved")
}

// DeleteImage removes one image row and best-effort removes its artifact
// from disk.
func (s *JobService) DeleteImage(ctx context.Context, imageID uuid.UUID) error {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, store.ErrImageNotFound) {
			return ErrImageNotFound
		}
		return NewJobServiceError("delete_image", "store query failed", err)
	}

	if err := s.images.Delete(ctx, imageID); err != nil {
		if errors.Is(err, store.ErrImageNotFound) {
			return ErrImageNotFound
		}
		return NewJobServiceError("delete_image", "store delete failed", err)
	}

	// The row is the source of truth; a leftover file is only logged.
	if img.FinalPath != "" {
		if err := os.Remove(img.FinalPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove image artifact",
				"image_id", imageID,
				"path", img.FinalPath,
				"error", err)
		}
	}

	return nil
}

// BulkDelete removes several images in the given order, never in parallel.
// It stops at the first failure and reports how many deletions landed.
func (s *JobService) BulkDelete(ctx context.Context, imageIDs []uuid.UUID) (int, error) {
	for i, id := range imageIDs {
		if err := s.DeleteImage(ctx, id); err != nil {
			return i, fmt.Errorf("bulk delete stopped at image %s: %w", id, err)
		}
	}
	return len(imageIDs), nil
}

// --- maintenance ---

// RunMigrations applies pending schema migrations.
func (s *JobService) RunMigrations(ctx context.Context) error {
	if err := s.migrator.Up(ctx); err != nil {
		return NewJobServiceError("run_migrations", "migration failed", err)
	}
	return nil
}

// Backup snapshots the store and returns the snapshot reference.
func (s *JobService) Backup(ctx context.Context) (string, error) {
	ref, err := s.backups.Snapshot(ctx)
	if err != nil {
		return "", NewJobServiceError("backup", "snapshot failed", err)
	}
	return ref, nil
}

// Restore replaces the store's contents with a snapshot. Restoring while a
// job runs is rejected.
func (s *JobService) Restore(ctx context.Context, ref string) error {
	if status := s.runner.Status(); status.State == job.StateRunning ||
		status.State == job.StateStarting || status.State == job.StateStopping {
		return ErrAlreadyRunning
	}

	if err := s.backups.Restore(ctx, ref); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, ref)
		}
		return NewJobServiceError("restore", "restore failed", err)
	}
	return nil
}

// ListBackups returns available snapshot references, newest first.
func (s *JobService) ListBackups(ctx context.Context) ([]string, error) {
	refs, err := s.backups.List()
	if err != nil {
		return nil, NewJobServiceError("list_backups", "failed to read backups", err)
	}
	return refs, nil
}

// --- error mapping ---

func (s *JobService) mapConfigurationError(operation string, err error) error {
	switch {
	case errors.Is(err, store.ErrConfigurationNotFound):
		return ErrConfigurationNotFound
	case errors.Is(err, store.ErrConfigurationNameExists):
		return ErrConfigurationNameTaken
	case errors.Is(err, store.ErrInvalidEntity):
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	default:
		return NewJobServiceError(operation, "store operation failed", err)
	}
}

func (s *JobService) mapRunnerError(operation string, err error) error {
	switch {
	case errors.Is(err, job.ErrAlreadyRunning):
		return ErrAlreadyRunning
	case errors.Is(err, job.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, job.ErrInvalidConfiguration):
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	default:
		return NewJobServiceError(operation, "runner operation failed", err)
	}
}
