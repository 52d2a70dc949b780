package store

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
)

// The bridges route repository calls between the modular (sqlx-based)
// store implementations and the proven baseline implementations. When the
// feature flag is on, every call is first attempted against the modular
// store; if it fails with an infrastructure error, the same call is
// re-attempted against the baseline store and that result is returned, so
// callers never observe the intermediate failure. Result-shaped errors
// (not found, duplicate, invalid entity) are authoritative answers, not
// failures, and do not trigger fallback.
//
// The fallback happens synchronously in the same call stack; there is no
// background retry queue. Both implementations are behaviorally identical
// for the same inputs (verified by the parity tests), so the bridge's only
// job is routing.

// ImageStoreBridge routes ImageStore calls between a modular and a
// baseline implementation.
type ImageStoreBridge struct {
	modular ImageStore // may be nil when the flag is off
	legacy  ImageStore
	enabled bool
}

// NewImageStoreBridge creates a bridge. The legacy store is required;
// modular may be nil, in which case the flag is treated as off.
func NewImageStoreBridge(modular, legacy ImageStore, enabled bool) *ImageStoreBridge {
	return &ImageStoreBridge{modular: modular, legacy: legacy, enabled: enabled && modular != nil}
}

func (b *ImageStoreBridge) fallback(ctx context.Context, operation string, err error) {
	logFallback(ctx, "image", operation, err)
}

func (b *ImageStoreBridge) Create(ctx context.Context, img *domain.GeneratedImage) error {
	if b.enabled {
		err := b.modular.Create(ctx, img)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "create", err)
	}
	return b.legacy.Create(ctx, img)
}

func (b *ImageStoreBridge) GetByID(ctx context.Context, id uuid.UUID) (*domain.GeneratedImage, error) {
	if b.enabled {
		img, err := b.modular.GetByID(ctx, id)
		if err == nil || IsResultError(err) {
			return img, err
		}
		b.fallback(ctx, "get_by_id", err)
	}
	return b.legacy.GetByID(ctx, id)
}

func (b *ImageStoreBridge) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]*domain.GeneratedImage, error) {
	if b.enabled {
		imgs, err := b.modular.ListByExecution(ctx, executionID)
		if err == nil || IsResultError(err) {
			return imgs, err
		}
		b.fallback(ctx, "list_by_execution", err)
	}
	return b.legacy.ListByExecution(ctx, executionID)
}

func (b *ImageStoreBridge) Update(ctx context.Context, img *domain.GeneratedImage) error {
	if b.enabled {
		err := b.modular.Update(ctx, img)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "update", err)
	}
	return b.legacy.Update(ctx, img)
}

func (b *ImageStoreBridge) UpdateQCStatus(ctx context.Context, id uuid.UUID, status domain.QCStatus, reason string) error {
	if b.enabled {
		err := b.modular.UpdateQCStatus(ctx, id, status, reason)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "update_qc_status", err)
	}
	return b.legacy.UpdateQCStatus(ctx, id, status, reason)
}

func (b *ImageStoreBridge) Delete(ctx context.Context, id uuid.UUID) error {
	if b.enabled {
		err := b.modular.Delete(ctx, id)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "delete", err)
	}
	return b.legacy.Delete(ctx, id)
}

// WithTx returns a bridge whose both sides run inside the given transaction.
func (b *ImageStoreBridge) WithTx(tx *sql.Tx) ImageStore {
	bridged := &ImageStoreBridge{legacy: b.legacy.WithTx(tx), enabled: b.enabled}
	if b.modular != nil {
		bridged.modular = b.modular.WithTx(tx)
	}
	return bridged
}

// ConfigurationStoreBridge routes ConfigurationStore calls between a
// modular and a baseline implementation.
type ConfigurationStoreBridge struct {
	modular ConfigurationStore
	legacy  ConfigurationStore
	enabled bool
}

// NewConfigurationStoreBridge creates a bridge. The legacy store is
// required; modular may be nil, in which case the flag is treated as off.
func NewConfigurationStoreBridge(modular, legacy ConfigurationStore, enabled bool) *ConfigurationStoreBridge {
	return &ConfigurationStoreBridge{modular: modular, legacy: legacy, enabled: enabled && modular != nil}
}

func (b *ConfigurationStoreBridge) fallback(ctx context.Context, operation string, err error) {
	logFallback(ctx, "configuration", operation, err)
}

func (b *ConfigurationStoreBridge) Create(ctx context.Context, cfg *domain.JobConfiguration) error {
	if b.enabled {
		err := b.modular.Create(ctx, cfg)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "create", err)
	}
	return b.legacy.Create(ctx, cfg)
}

func (b *ConfigurationStoreBridge) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobConfiguration, error) {
	if b.enabled {
		cfg, err := b.modular.GetByID(ctx, id)
		if err == nil || IsResultError(err) {
			return cfg, err
		}
		b.fallback(ctx, "get_by_id", err)
	}
	return b.legacy.GetByID(ctx, id)
}

func (b *ConfigurationStoreBridge) GetByName(ctx context.Context, name string) (*domain.JobConfiguration, error) {
	if b.enabled {
		cfg, err := b.modular.GetByName(ctx, name)
		if err == nil || IsResultError(err) {
			return cfg, err
		}
		b.fallback(ctx, "get_by_name", err)
	}
	return b.legacy.GetByName(ctx, name)
}

func (b *ConfigurationStoreBridge) List(ctx context.Context) ([]*domain.JobConfiguration, error) {
	if b.enabled {
		cfgs, err := b.modular.List(ctx)
		if err == nil || IsResultError(err) {
			return cfgs, err
		}
		b.fallback(ctx, "list", err)
	}
	return b.legacy.List(ctx)
}

func (b *ConfigurationStoreBridge) Update(ctx context.Context, cfg *domain.JobConfiguration) error {
	if b.enabled {
		err := b.modular.Update(ctx, cfg)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "update", err)
	}
	return b.legacy.Update(ctx, cfg)
}

func (b *ConfigurationStoreBridge) Delete(ctx context.Context, id uuid.UUID) error {
	if b.enabled {
		err := b.modular.Delete(ctx, id)
		if err == nil || IsResultError(err) {
			return err
		}
		b.fallback(ctx, "delete", err)
	}
	return b.legacy.Delete(ctx, id)
}

// WithTx returns a bridge whose both sides run inside the given transaction.
func (b *ConfigurationStoreBridge) WithTx(tx *sql.Tx) ConfigurationStore {
	bridged := &ConfigurationStoreBridge{legacy: b.legacy.WithTx(tx), enabled: b.enabled}
	if b.modular != nil {
		bridged.modular = b.modular.WithTx(tx)
	}
	return bridged
}

// logFallback records a modular-store failure that was absorbed by the
// bridge. These are the discrepancies to watch during the rollout.
func logFallback(ctx context.Context, entity, operation string, err error) {
	logger.FromContext(ctx).Warn("modular store failed, falling back to baseline",
		slog.String("entity", entity),
		slog.String("operation", operation),
		slog.String("error", err.Error()))
}
