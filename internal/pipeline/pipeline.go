// Package pipeline runs the post-processing chain over a generated image:
// background removal, format conversion, then enhancement, each gated by the
// execution's processing settings. Stage boundaries are the cooperative
// cancellation checkpoints, so the processor checks the context and notifies
// the observer between stages.
package pipeline

import (
	"context"
	"fmt"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/provider"
)

// Stage names one step of the post-processing chain.
type Stage string

// Post-processing stages, in execution order
const (
	StageBackgroundRemoval Stage = "background_removal"
	StageConversion        Stage = "conversion"
	StageEnhancement       Stage = "enhancement"
)

// StageObserver is notified after each completed stage. A nil observer is
// allowed.
type StageObserver func(stage Stage)

// Processor applies the enabled post-processing stages in a fixed order.
type Processor struct {
	remover  provider.BackgroundRemover
	enhancer provider.Enhancer
}

// NewProcessor creates a Processor. The remover and enhancer may be nil when
// the matching stages are never enabled.
func NewProcessor(remover provider.BackgroundRemover, enhancer provider.Enhancer) *Processor {
	return &Processor{remover: remover, enhancer: enhancer}
}

// Process runs the enabled stages over image and returns the final bytes.
// The order is fixed: background removal, conversion, enhancement. Between
// stages it observes context cancellation so a cooperative stop lands on a
// stage boundary instead of mid-upload.
func (p *Processor) Process(ctx context.Context, image []byte, settings domain.ProcessingSettings, observe StageObserver) ([]byte, error) {
	log := logger.FromContext(ctx)

	if settings.RemoveBackground {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.remover == nil {
			return nil, fmt.Errorf("background removal enabled but no remover configured")
		}

		processed, err := p.remover.RemoveBackground(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("background removal failed: %w", err)
		}
		image = processed
		notify(observe, StageBackgroundRemoval)
		log.Debug("background removal complete", "bytes", len(image))
	}

	if settings.ConvertFormat {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		converted, err := Convert(image, settings.TargetFormat)
		if err != nil {
			return nil, fmt.Errorf("format conversion failed: %w", err)
		}
		image = converted
		notify(observe, StageConversion)
		log.Debug("format conversion complete",
			"target_format", settings.TargetFormat,
			"bytes", len(image))
	}

	if settings.Enhance {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.enhancer == nil {
			return nil, fmt.Errorf("enhancement enabled but no enhancer configured")
		}

		enhanced, err := p.enhancer.Enhance(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("enhancement failed: %w", err)
		}
		image = enhanced
		notify(observe, StageEnhancement)
		log.Debug("enhancement complete", "bytes", len(image))
	}

	return image, nil
}

func notify(observe StageObserver, stage Stage) {
	if observe != nil {
		observe(stage)
	}
}
