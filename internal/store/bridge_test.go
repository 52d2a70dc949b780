package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/easel-api/internal/domain"
)

// memImageStore is a minimal in-memory ImageStore used as the baseline side
// of the bridge in tests.
type memImageStore struct {
	images map[uuid.UUID]*domain.GeneratedImage
	calls  int
}

func newMemImageStore() *memImageStore {
	return &memImageStore{images: make(map[uuid.UUID]*domain.GeneratedImage)}
}

func (s *memImageStore) Create(_ context.Context, img *domain.GeneratedImage) error {
	s.calls++
	copied := *img
	s.images[img.ID] = &copied
	return nil
}

func (s *memImageStore) GetByID(_ context.Context, id uuid.UUID) (*domain.GeneratedImage, error) {
	s.calls++
	img, ok := s.images[id]
	if !ok {
		return nil, ErrImageNotFound
	}
	copied := *img
	return &copied, nil
}

func (s *memImageStore) ListByExecution(_ context.Context, executionID uuid.UUID) ([]*domain.GeneratedImage, error) {
	s.calls++
	var out []*domain.GeneratedImage
	for _, img := range s.images {
		if img.ExecutionID == executionID {
			copied := *img
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memImageStore) Update(_ context.Context, img *domain.GeneratedImage) error {
	s.calls++
	if _, ok := s.images[img.ID]; !ok {
		return ErrImageNotFound
	}
	copied := *img
	s.images[img.ID] = &copied
	return nil
}

func (s *memImageStore) UpdateQCStatus(_ context.Context, id uuid.UUID, status domain.QCStatus, reason string) error {
	s.calls++
	img, ok := s.images[id]
	if !ok {
		return ErrImageNotFound
	}
	img.QCStatus = status
	img.QCReason = reason
	return nil
}

func (s *memImageStore) Delete(_ context.Context, id uuid.UUID) error {
	s.calls++
	if _, ok := s.images[id]; !ok {
		return ErrImageNotFound
	}
	delete(s.images, id)
	return nil
}

func (s *memImageStore) WithTx(_ *sql.Tx) ImageStore { return s }

// failingImageStore fails every call with an infrastructure-shaped error.
type failingImageStore struct {
	calls int
	err   error
}

func (s *failingImageStore) fail() error {
	s.calls++
	return s.err
}

func (s *failingImageStore) Create(context.Context, *domain.GeneratedImage) error { return s.fail() }
func (s *failingImageStore) GetByID(context.Context, uuid.UUID) (*domain.GeneratedImage, error) {
	return nil, s.fail()
}

func (s *failingImageStore) ListByExecution(context.Context, uuid.UUID) ([]*domain.GeneratedImage, error) {
	return nil, s.fail()
}
func (s *failingImageStore) Update(context.Context, *domain.GeneratedImage) error { return s.fail() }
func (s *failingImageStore) UpdateQCStatus(context.Context, uuid.UUID, domain.QCStatus, string) error {
	return s.fail()
}
func (s *failingImageStore) Delete(context.Context, uuid.UUID) error { return s.fail() }
func (s *failingImageStore) WithTx(_ *sql.Tx) ImageStore             { return s }

func testImage(t *testing.T) *domain.GeneratedImage {
	t.Helper()
	img, err := domain.NewGeneratedImage(uuid.New(), "unit-0", "a red chair", 7, domain.ProcessingSettings{})
	require.NoError(t, err)
	return img
}

func TestImageStoreBridge_FlagOffNeverTouchesModular(t *testing.T) {
	modular := &failingImageStore{err: errors.New("connection refused")}
	legacy := newMemImageStore()
	bridge := NewImageStoreBridge(modular, legacy, false)

	img := testImage(t)
	require.NoError(t, bridge.Create(context.Background(), img))

	assert.Zero(t, modular.calls)
	assert.Equal(t, 1, legacy.calls)
}

func TestImageStoreBridge_FallbackIsTransparent(t *testing.T) {
	// With the modular store failing on every call and the flag enabled,
	// every public method must return the same result as the legacy-only
	// path for identical inputs.
	ctx := context.Background()
	img := testImage(t)

	modular := &failingImageStore{err: errors.New("i/o timeout")}
	legacy := newMemImageStore()
	bridged := NewImageStoreBridge(modular, legacy, true)

	reference := newMemImageStore()

	require.NoError(t, bridged.Create(ctx, img))
	require.NoError(t, reference.Create(ctx, img))

	got, err := bridged.GetByID(ctx, img.ID)
	require.NoError(t, err)
	want, err := reference.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, bridged.UpdateQCStatus(ctx, img.ID, domain.QCStatusApproved, "looks fine"))
	require.NoError(t, reference.UpdateQCStatus(ctx, img.ID, domain.QCStatusApproved, "looks fine"))

	gotList, err := bridged.ListByExecution(ctx, img.ExecutionID)
	require.NoError(t, err)
	wantList, err := reference.ListByExecution(ctx, img.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, wantList, gotList)

	require.NoError(t, bridged.Delete(ctx, img.ID))
	require.NoError(t, reference.Delete(ctx, img.ID))

	assert.ErrorIs(t, bridged.Delete(ctx, img.ID), ErrImageNotFound)
	assert.ErrorIs(t, reference.Delete(ctx, img.ID), ErrImageNotFound)

	assert.Positive(t, modular.calls, "modular store must have been attempted first")
}

func TestImageStoreBridge_ResultErrorsDoNotFallBack(t *testing.T) {
	// A not-found answer from the modular store is an authoritative result;
	// re-asking the legacy store would only mask rollout discrepancies.
	modular := &failingImageStore{err: ErrImageNotFound}
	legacy := newMemImageStore()
	bridge := NewImageStoreBridge(modular, legacy, true)

	_, err := bridge.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.Zero(t, legacy.calls)
}

func TestImageStoreBridge_NilModularBehavesAsFlagOff(t *testing.T) {
	legacy := newMemImageStore()
	bridge := NewImageStoreBridge(nil, legacy, true)

	img := testImage(t)
	require.NoError(t, bridge.Create(context.Background(), img))
	assert.Equal(t, 1, legacy.calls)
}

// memConfigStore covers the configuration bridge with the same approach.
type memConfigStore struct {
	configs map[uuid.UUID]*domain.JobConfiguration
	calls   int
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{configs: make(map[uuid.UUID]*domain.JobConfiguration)}
}

func (s *memConfigStore) Create(_ context.Context, cfg *domain.JobConfiguration) error {
	s.calls++
	for _, existing := range s.configs {
		if existing.Name == cfg.Name {
			return ErrConfigurationNameExists
		}
	}
	copied := *cfg
	s.configs[cfg.ID] = &copied
	return nil
}

func (s *memConfigStore) GetByID(_ context.Context, id uuid.UUID) (*domain.JobConfiguration, error) {
	s.calls++
	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrConfigurationNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (s *memConfigStore) GetByName(_ context.Context, name string) (*domain.JobConfiguration, error) {
	s.calls++
	for _, cfg := range s.configs {
		if cfg.Name == name {
			copied := *cfg
			return &copied, nil
		}
	}
	return nil, ErrConfigurationNotFound
}

func (s *memConfigStore) List(_ context.Context) ([]*domain.JobConfiguration, error) {
	s.calls++
	out := make([]*domain.JobConfiguration, 0, len(s.configs))
	for _, cfg := range s.configs {
		copied := *cfg
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memConfigStore) Update(_ context.Context, cfg *domain.JobConfiguration) error {
	s.calls++
	if _, ok := s.configs[cfg.ID]; !ok {
		return ErrConfigurationNotFound
	}
	copied := *cfg
	s.configs[cfg.ID] = &copied
	return nil
}

func (s *memConfigStore) Delete(_ context.Context, id uuid.UUID) error {
	s.calls++
	if _, ok := s.configs[id]; !ok {
		return ErrConfigurationNotFound
	}
	delete(s.configs, id)
	return nil
}

func (s *memConfigStore) WithTx(_ *sql.Tx) ConfigurationStore { return s }

type failingConfigStore struct {
	calls int
	err   error
}

func (s *failingConfigStore) fail() error {
	s.calls++
	return s.err
}

func (s *failingConfigStore) Create(context.Context, *domain.JobConfiguration) error {
	return s.fail()
}

func (s *failingConfigStore) GetByID(context.Context, uuid.UUID) (*domain.JobConfiguration, error) {
	return nil, s.fail()
}

func (s *failingConfigStore) GetByName(context.Context, string) (*domain.JobConfiguration, error) {
	return nil, s.fail()
}

func (s *failingConfigStore) List(context.Context) ([]*domain.JobConfiguration, error) {
	return nil, s.fail()
}

func (s *failingConfigStore) Update(context.Context, *domain.JobConfiguration) error {
	return s.fail()
}
func (s *failingConfigStore) Delete(context.Context, uuid.UUID) error { return s.fail() }
func (s *failingConfigStore) WithTx(_ *sql.Tx) ConfigurationStore     { return s }

func TestConfigurationStoreBridge_FallbackIsTransparent(t *testing.T) {
	ctx := context.Background()

	cfg, err := domain.NewJobConfiguration("portraits", "render-xl", "a portrait of {{.Subject}}", 512, 512, 1)
	require.NoError(t, err)

	modular := &failingConfigStore{err: errors.New("disk full")}
	legacy := newMemConfigStore()
	bridge := NewConfigurationStoreBridge(modular, legacy, true)

	require.NoError(t, bridge.Create(ctx, cfg))

	got, err := bridge.GetByName(ctx, "portraits")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)

	require.NoError(t, bridge.Delete(ctx, cfg.ID))
	assert.ErrorIs(t, bridge.Delete(ctx, cfg.ID), ErrConfigurationNotFound)
	assert.Positive(t, modular.calls)
}

func TestConfigurationStoreBridge_DuplicateFromModularIsAuthoritative(t *testing.T) {
	modular := &failingConfigStore{err: ErrConfigurationNameExists}
	legacy := newMemConfigStore()
	bridge := NewConfigurationStoreBridge(modular, legacy, true)

	cfg, err := domain.NewJobConfiguration("portraits", "render-xl", "p", 512, 512, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, bridge.Create(context.Background(), cfg), ErrConfigurationNameExists)
	assert.Zero(t, legacy.calls)
}
