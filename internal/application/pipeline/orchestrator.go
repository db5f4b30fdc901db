// Package pipeline sequences the fetch, transform and persist stages that
// turn an inbound media attachment into a durable background-removed image.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MaxMediaBytes is the upper bound on an inbound asset's size
const MaxMediaBytes int64 = 25 << 20 // 25 MiB

// FailureReason classifies where a pipeline run failed
type FailureReason string

const (
	ReasonTooLarge               FailureReason = "TOO_LARGE"
	ReasonFetchFailed            FailureReason = "FETCH_FAILED"
	ReasonTransformFailed        FailureReason = "TRANSFORM_FAILED"
	ReasonUnexpectedOutputFormat FailureReason = "UNEXPECTED_OUTPUT_FORMAT"
	ReasonPersistFailed          FailureReason = "PERSIST_FAILED"
)

// StageError is a classified pipeline failure. Each stage fails fast and is
// mapped to a reason here rather than propagated opaquely.
type StageError struct {
	Reason FailureReason
	Detail string // upstream error detail, when the service provided one
	Err    error
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("pipeline %s: %s", e.Reason, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("pipeline %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pipeline %s", e.Reason)
}

// Unwrap exposes the underlying cause
func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrMediaTooLarge is returned by fetchers when the asset exceeds the size
// cap. The orchestrator maps it to ReasonTooLarge.
var ErrMediaTooLarge = errors.New("media exceeds maximum allowed size")

// TransformError carries the transform service's own error detail so the
// user-facing failure reply can include it.
type TransformError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface
func (e *TransformError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transform service error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("transform service error (status %d)", e.StatusCode)
}

// MediaFetcher retrieves the original asset bytes from the messaging
// platform's authenticated media endpoint.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string, maxBytes int64) ([]byte, error)
}

// BackgroundRemover submits image bytes to the removal service and returns
// the transformed raster output.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, image []byte) ([]byte, error)
}

// ObjectStorage uploads the validated output under a storage key and
// returns a publicly fetchable URL.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Artifact is the durable result of a successful run
type Artifact struct {
	URL  string
	Key  string
	Size int
}

// pngSignature is the fixed 8-byte header every PNG starts with
var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// Orchestrator executes fetch, transform, persist for a single media event.
// It performs no retries and holds no shared mutable state; retry policy and
// quota protection belong to the caller.
type Orchestrator struct {
	fetcher  MediaFetcher
	remover  BackgroundRemover
	storage  ObjectStorage
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

// OrchestratorOption is a functional option for configuring Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithMaxMediaBytes overrides the inbound size cap
func WithMaxMediaBytes(n int64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxBytes = n
	}
}

// WithClock overrides the time source used for artifact keys (tests)
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates a new pipeline Orchestrator
func NewOrchestrator(
	fetcher MediaFetcher,
	remover BackgroundRemover,
	storage ObjectStorage,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		fetcher:  fetcher,
		remover:  remover,
		storage:  storage,
		maxBytes: MaxMediaBytes,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the three stages for one media event. On failure the returned
// error is always a *StageError; the run aborts at the failing stage.
func (o *Orchestrator) Run(ctx context.Context, mediaURL, phone string) (*Artifact, error) {
	start := o.now()

	// Stage 1: fetch the original asset
	original, err := o.fetcher.FetchMedia(ctx, mediaURL, o.maxBytes)
	if err != nil {
		if errors.Is(err, ErrMediaTooLarge) {
			return nil, &StageError{Reason: ReasonTooLarge, Err: err}
		}
		return nil, &StageError{Reason: ReasonFetchFailed, Err: err}
	}
	if int64(len(original)) > o.maxBytes {
		return nil, &StageError{Reason: ReasonTooLarge, Err: ErrMediaTooLarge}
	}

	// Stage 2: remove the background
	output, err := o.remover.RemoveBackground(ctx, original)
	if err != nil {
		var terr *TransformError
		if errors.As(err, &terr) {
			return nil, &StageError{Reason: ReasonTransformFailed, Detail: terr.Detail, Err: err}
		}
		return nil, &StageError{Reason: ReasonTransformFailed, Err: err}
	}
	// The service's Content-Type header is not trusted: an error document or
	// wrong encoding disguised as a success must be caught here.
	if !bytes.HasPrefix(output, pngSignature) {
		return nil, &StageError{
			Reason: ReasonUnexpectedOutputFormat,
			Err:    errors.New("transform output does not carry the PNG signature"),
		}
	}

	// Stage 3: persist under a per-phone, per-run unique key
	key := artifactKey(phone, start)
	url, err := o.storage.Upload(ctx, key, output, "image/png")
	if err != nil {
		return nil, &StageError{Reason: ReasonPersistFailed, Err: err}
	}

	o.logger.Info("Pipeline run completed",
		zap.String("phone", phone),
		zap.String("key", key),
		zap.Int("input_bytes", len(original)),
		zap.Int("output_bytes", len(output)),
		zap.Duration("elapsed", o.now().Sub(start)))

	return &Artifact{URL: url, Key: key, Size: len(output)}, nil
}

// artifactKey derives the storage key from the identity and the run's
// creation time, so repeated runs for the same phone never collide.
func artifactKey(phone string, start time.Time) string {
	digits := phone
	if len(digits) > 0 && digits[0] == '+' {
		digits = digits[1:]
	}
	return fmt.Sprintf("cutouts/%s/%d.png", digits, start.UnixNano())
}
