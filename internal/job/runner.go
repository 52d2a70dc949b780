// Package job contains the orchestrator that drives one execution of the
// image pipeline at a time. The Runner owns the run state machine, enforces
// single-flight at Start, pushes provider calls through the retry executor,
// persists progress through the store bridges inside transactions, and emits
// progress events at pipeline checkpoints.
package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/events"
	"github.com/phrazzld/easel-api/internal/pipeline"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/provider"
	"github.com/phrazzld/easel-api/internal/retry"
	"github.com/phrazzld/easel-api/internal/store"
)

// State is the in-memory run state. It is a superset of the persisted
// execution status: starting, stopping, and force-stopped exist only here.
type State string

// Runner states
const (
	StateIdle         State = "idle"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateForceStopped State = "force_stopped"
)

// terminal reports whether s allows a new run to start.
func terminal(s State) bool {
	switch s {
	case StateIdle, StateStopped, StateCompleted, StateFailed, StateForceStopped:
		return true
	default:
		return false
	}
}

// Runner errors
var (
	ErrAlreadyRunning       = errors.New("a job is already running")
	ErrJobNotFound          = errors.New("job execution not found")
	ErrInvalidConfiguration = errors.New("invalid job configuration")
)

// Providers bundles the external services one run needs.
type Providers struct {
	Generator provider.ImageGenerator
	QC        provider.QualityChecker
	Metadata  provider.MetadataGenerator
}

// Config tunes the runner.
type Config struct {
	// PollInterval is the wait between provider status polls.
	PollInterval time.Duration
}

// Status is a point-in-time view of the runner.
type Status struct {
	State       State      `json:"state"`
	ExecutionID *uuid.UUID `json:"execution_id,omitempty"`
}

// Runner orchestrates executions. At most one run is active at a time;
// Start enforces that, everything else observes it.
type Runner struct {
	db         *sql.DB
	executions store.ExecutionStore
	images     store.ImageStore
	processor  *pipeline.Processor
	files      *pipeline.Files
	providers  Providers
	retrier    *retry.Executor
	emitter    events.Emitter
	cfg        Config
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	current    *domain.JobExecution
	hardCancel context.CancelFunc
	done       chan struct{}

	stopRequested atomic.Bool
	forceStopped  atomic.Bool

	rng *rand.Rand
}

// NewRunner creates a Runner in the idle state.
func NewRunner(
	db *sql.DB,
	executions store.ExecutionStore,
	images store.ImageStore,
	processor *pipeline.Processor,
	files *pipeline.Files,
	providers Providers,
	retrier *retry.Executor,
	emitter events.Emitter,
	cfg Config,
	log *slog.Logger,
) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		db:         db,
		executions: executions,
		images:     images,
		processor:  processor,
		files:      files,
		providers:  providers,
		retrier:    retrier,
		emitter:    emitter,
		cfg:        cfg,
		logger:     log.With("component", "job_runner"),
		state:      StateIdle,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Status returns the current state and, if a run is active or just
// finished, its execution ID.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{State: r.state}
	if r.current != nil {
		id := r.current.ID
		s.ExecutionID = &id
	}
	return s
}

// Start begins a new execution of the given configuration. It fails with
// ErrAlreadyRunning if a run is active and ErrInvalidConfiguration if the
// configuration does not validate. The returned ID identifies the created
// execution; the run itself proceeds in the background.
func (r *Runner) Start(ctx context.Context, cfg *domain.JobConfiguration, label string) (uuid.UUID, error) {
	return r.start(ctx, cfg, label, nil)
}

func (r *Runner) start(ctx context.Context, cfg *domain.JobConfiguration, label string, parentID *uuid.UUID) (uuid.UUID, error) {
	if cfg == nil {
		return uuid.Nil, ErrInvalidConfiguration
	}
	if err := cfg.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	exec, err := domain.NewJobExecution(cfg, label, parentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	r.mu.Lock()
	if !terminal(r.state) {
		r.mu.Unlock()
		return uuid.Nil, ErrAlreadyRunning
	}
	r.state = StateStarting
	r.current = exec
	r.stopRequested.Store(false)
	r.forceStopped.Store(false)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	if err := r.executions.Create(ctx, exec); err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.current = nil
		r.mu.Unlock()
		close(done)
		return uuid.Nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	// The run outlives the request that started it, so it gets a fresh
	// context. ForceStop cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = logger.WithContext(runCtx, r.logger.With("execution_id", exec.ID))

	r.mu.Lock()
	r.state = StateRunning
	r.hardCancel = cancel
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		r.run(runCtx, exec)
	}()

	return exec.ID, nil
}

// Stop requests a cooperative stop. The in-flight unit finishes up to its
// next checkpoint, then the run transitions to stopped. Calling Stop while
// already stopping, or with no run active, is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateStarting, StateRunning:
		r.stopRequested.Store(true)
		r.state = StateStopping
		r.logger.Info("stop requested", "execution_id", r.currentID())
	case StateStopping:
		// Already stopping.
	default:
		// Nothing to stop.
	}
}

// ForceStop abandons the cooperative checkpoint and cancels the run's
// context immediately, killing any in-flight provider call. The execution
// is marked stopped in storage with whatever partial results exist.
func (r *Runner) ForceStop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if terminal(r.state) {
		return
	}

	r.forceStopped.Store(true)
	r.stopRequested.Store(true)
	if r.hardCancel != nil {
		r.hardCancel()
	}
	r.logger.Warn("force stop", "execution_id", r.currentID())
}

// Wait blocks until the active run finishes or ctx is cancelled.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rerun starts a new execution from the configuration snapshot of a past
// one, optionally merged with overrides, with the original as parent.
func (r *Runner) Rerun(ctx context.Context, executionID uuid.UUID, overrides *domain.ConfigurationOverrides, label string) (uuid.UUID, error) {
	parent, err := r.executions.GetByID(ctx, executionID)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrJobNotFound, executionID)
		}
		return uuid.Nil, fmt.Errorf("failed to load execution: %w", err)
	}

	snapshot := parent.ConfigSnapshot.Clone()
	if overrides != nil {
		overrides.Apply(snapshot)
	}

	return r.start(ctx, snapshot, label, &parent.ID)
}

// BulkRerun reruns several past executions sequentially, waiting for each to
// finish before starting the next. It is rejected outright while a run is
// active. The returned IDs parallel the input; processing stops at the first
// rerun that fails to start.
func (r *Runner) BulkRerun(ctx context.Context, executionIDs []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	if !terminal(r.state) {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.mu.Unlock()

	started := make([]uuid.UUID, 0, len(executionIDs))
	for _, id := range executionIDs {
		newID, err := r.Rerun(ctx, id, nil, "")
		if err != nil {
			return started, fmt.Errorf("rerun of %s failed: %w", id, err)
		}
		started = append(started, newID)

		if err := r.Wait(ctx); err != nil {
			return started, err
		}
	}

	return started, nil
}

// RepairInterrupted marks executions left in running status by a crash as
// stopped. Called once at startup, before the runner accepts work; it
// restores the single-flight invariant the persisted state would otherwise
// violate.
func (r *Runner) RepairInterrupted(ctx context.Context) error {
	count, err := r.executions.CountNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("failed to count interrupted executions: %w", err)
	}
	if count == 0 {
		return nil
	}

	running := domain.ExecutionStatusRunning
	interrupted, err := r.executions.List(ctx, store.ExecutionFilter{Status: &running})
	if err != nil {
		return fmt.Errorf("failed to list interrupted executions: %w", err)
	}

	for _, exec := range interrupted {
		if err := exec.Finish(domain.ExecutionStatusStopped); err != nil {
			return err
		}
		if err := r.executions.Update(ctx, exec); err != nil {
			return fmt.Errorf("failed to repair execution %s: %w", exec.ID, err)
		}
		r.logger.Warn("marked interrupted execution as stopped",
			"execution_id", exec.ID)
	}

	return nil
}

func (r *Runner) currentID() uuid.UUID {
	if r.current == nil {
		return uuid.Nil
	}
	return r.current.ID
}

// run is the per-execution loop. It owns exec exclusively until it returns.
func (r *Runner) run(ctx context.Context, exec *domain.JobExecution) {
	log := logger.FromContext(ctx)
	log.Info("execution started",
		"requested_count", exec.RequestedCount,
		"configuration", exec.ConfigSnapshot.Name)

	var authFailure error

	for unit := 1; unit <= exec.RequestedCount; unit++ {
		// Checkpoint between iterations.
		if r.stopRequested.Load() || ctx.Err() != nil {
			break
		}

		if err := r.runUnit(ctx, exec, unit); err != nil {
			// A unit abandoned by Stop or ForceStop is not a failure.
			if errors.Is(err, context.Canceled) && r.stopRequested.Load() {
				break
			}

			exec.RecordFailure()
			log.Error("unit failed",
				"unit", unit,
				"total", exec.RequestedCount,
				"error", err)

			if provider.IsAuth(err) {
				// Credentials are broken for every remaining unit too.
				authFailure = err
				break
			}
			continue
		}

		exec.RecordSuccess()
	}

	status := r.finalStatus(exec, authFailure)
	if err := exec.Finish(status); err != nil {
		log.Error("failed to finalize execution", "error", err)
	}

	// The run context may already be cancelled by ForceStop; the final
	// write must still land.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.executions.Update(persistCtx, exec); err != nil {
		log.Error("failed to persist final execution state", "error", err)
	}

	r.mu.Lock()
	switch {
	case r.forceStopped.Load():
		r.state = StateForceStopped
	case status == domain.ExecutionStatusStopped:
		r.state = StateStopped
	case status == domain.ExecutionStatusFailed:
		r.state = StateFailed
	default:
		r.state = StateCompleted
	}
	r.hardCancel = nil
	r.mu.Unlock()

	log.Info("execution finished",
		"status", status,
		"succeeded", exec.SucceededCount,
		"failed", exec.FailedCount)
}

// finalStatus decides the persisted terminal status of a finished loop.
func (r *Runner) finalStatus(exec *domain.JobExecution, authFailure error) domain.ExecutionStatus {
	switch {
	case r.stopRequested.Load():
		return domain.ExecutionStatusStopped
	case authFailure != nil:
		return domain.ExecutionStatusFailed
	case exec.SucceededCount == 0 && exec.RequestedCount > 0:
		return domain.ExecutionStatusFailed
	default:
		return domain.ExecutionStatusCompleted
	}
}

// runUnit produces, post-processes, judges, and persists one image.
func (r *Runner) runUnit(ctx context.Context, exec *domain.JobExecution, unit int) error {
	snapshot := &exec.ConfigSnapshot
	mappingID := fmt.Sprintf("%04d", unit)
	prompt := assemblePrompt(snapshot.PromptTemplate, unit, exec.RequestedCount)
	seed := r.rng.Int63()

	image, err := r.generate(ctx, provider.GenerationRequest{
		Prompt: prompt,
		Model:  snapshot.Model,
		Width:  snapshot.Width,
		Height: snapshot.Height,
		Seed:   seed,
	})
	if err != nil {
		return err
	}
	r.emitProgress(ctx, exec, unit, "generation", "")

	// Checkpoint between generation and post-processing.
	if r.stopRequested.Load() {
		return context.Canceled
	}

	image, err = r.processor.Process(ctx, image, snapshot.Processing, func(stage pipeline.Stage) {
		r.emitProgress(ctx, exec, unit, string(stage), "")
	})
	if err != nil {
		return err
	}

	img, err := domain.NewGeneratedImage(exec.ID, mappingID, prompt, seed, snapshot.Processing)
	if err != nil {
		return err
	}

	if snapshot.QualityCheck {
		if r.stopRequested.Load() {
			return context.Canceled
		}

		verdict, qcErr := r.providers.QC.Check(ctx, image, prompt)
		switch {
		case qcErr != nil && provider.IsAuth(qcErr):
			return qcErr
		case qcErr != nil:
			// A broken QC provider should not discard a generated image.
			logger.FromContext(ctx).Warn("quality check unavailable, leaving verdict pending",
				"unit", unit,
				"error", qcErr)
		case verdict.Passed:
			img.QCStatus = domain.QCStatusApproved
		default:
			img.QCStatus = domain.QCStatusFailed
			img.QCReason = verdict.Reason
		}
		r.emitProgress(ctx, exec, unit, "quality_check", string(img.QCStatus))
	}

	if snapshot.GenerateMetadata {
		if r.stopRequested.Load() {
			return context.Canceled
		}

		metadata, metaErr := r.providers.Metadata.Generate(ctx, image, prompt)
		switch {
		case metaErr != nil && provider.IsAuth(metaErr):
			return metaErr
		case metaErr != nil:
			logger.FromContext(ctx).Warn("metadata generation unavailable",
				"unit", unit,
				"error", metaErr)
		default:
			img.Metadata = *metadata
		}
		r.emitProgress(ctx, exec, unit, "metadata", "")
	}

	format := snapshot.OutputFormat()
	tempPath, err := r.files.WriteTemp(exec.ID, mappingID, format, image)
	if err != nil {
		return err
	}
	img.TempPath = tempPath

	finalPath, err := r.files.Promote(tempPath)
	if err != nil {
		return err
	}
	img.FinalPath = finalPath

	err = store.RunInTransaction(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := r.images.WithTx(tx).Create(ctx, img); err != nil {
			return err
		}
		snapshotExec := *exec
		snapshotExec.SucceededCount++
		return r.executions.WithTx(tx).Update(ctx, &snapshotExec)
	})
	if err != nil {
		return fmt.Errorf("failed to persist image: %w", err)
	}

	r.emitProgress(ctx, exec, unit, "persisted", "")
	return nil
}

// generate submits, polls, and fetches one image through the retry
// executor. Each attempt resubmits from scratch.
func (r *Runner) generate(ctx context.Context, req provider.GenerationRequest) ([]byte, error) {
	var image []byte

	err := r.retrier.Do(ctx, "generate", provider.IsRetryable, func(ctx context.Context) error {
		jobID, err := r.providers.Generator.Submit(ctx, req)
		if err != nil {
			return err
		}

		status, err := r.awaitCompletion(ctx, jobID)
		if err != nil {
			return err
		}

		image, err = r.providers.Generator.Fetch(ctx, status.ImageURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	return image, nil
}

// awaitCompletion polls the provider until the job reaches a final state.
func (r *Runner) awaitCompletion(ctx context.Context, jobID string) (*provider.JobStatus, error) {
	for {
		status, err := r.providers.Generator.Poll(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch status.State {
		case provider.JobStateSucceeded:
			return status, nil
		case provider.JobStateFailed:
			return nil, provider.NewError("render", "poll", provider.KindFatal,
				fmt.Errorf("generation failed: %s", status.Reason))
		}

		select {
		case <-time.After(r.cfg.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// emitProgress publishes one checkpoint event. Emission failures are logged,
// never surfaced: observers must not break the run.
func (r *Runner) emitProgress(ctx context.Context, exec *domain.JobExecution, unit int, stage, message string) {
	if r.emitter == nil {
		return
	}

	event := events.NewProgressEvent(exec.ID, unit, exec.RequestedCount, stage, message)
	if err := r.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("failed to emit progress event",
			"stage", stage,
			"error", err)
	}
}

// assemblePrompt expands the per-unit placeholders in a prompt template.
// {index} is the 1-based unit number, {count} the total.
func assemblePrompt(template string, index, count int) string {
	prompt := strings.ReplaceAll(template, "{index}", strconv.Itoa(index))
	prompt = strings.ReplaceAll(prompt, "{count}", strconv.Itoa(count))
	return prompt
}
