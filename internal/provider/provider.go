// Package provider defines the interfaces the job pipeline consumes for
// image generation, post-processing, quality control, and metadata, together
// with the error taxonomy that drives retry classification. Concrete
// implementations live under internal/platform.
package provider

import (
	"context"

	"github.com/phrazzld/easel-api/internal/domain"
)

// JobState is the remote provider's view of a submitted generation job.
type JobState string

// Remote job states
const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateSucceeded  JobState = "succeeded"
	JobStateFailed     JobState = "failed"
)

// GenerationRequest carries everything the remote provider needs for one
// image. Prompt is the fully assembled prompt, not the template.
type GenerationRequest struct {
	Prompt string
	Model  string
	Width  int
	Height int
	Seed   int64
}

// JobStatus is a poll result. ImageURL is set once State is succeeded;
// Reason carries the provider's failure explanation otherwise.
type JobStatus struct {
	State    JobState
	ImageURL string
	Reason   string
}

// ImageGenerator submits generation jobs to a remote provider and retrieves
// their results. Submit returns a provider-side job ID to poll with.
type ImageGenerator interface {
	Submit(ctx context.Context, req GenerationRequest) (string, error)
	Poll(ctx context.Context, jobID string) (*JobStatus, error)
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// BackgroundRemover strips the background from an image.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, image []byte) ([]byte, error)
}

// Enhancer runs the provider's enhancement pass over an image.
type Enhancer interface {
	Enhance(ctx context.Context, image []byte) ([]byte, error)
}

// QCResult is a quality-control verdict for one image.
type QCResult struct {
	Passed bool
	Reason string
}

// QualityChecker judges whether a generated image matches its prompt well
// enough to keep.
type QualityChecker interface {
	Check(ctx context.Context, image []byte, prompt string) (*QCResult, error)
}

// MetadataGenerator produces title, description, and tags for an image.
type MetadataGenerator interface {
	Generate(ctx context.Context, image []byte, prompt string) (*domain.ImageMetadata, error)
}
