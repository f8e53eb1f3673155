// Package apperr defines the error taxonomy shared across services. Callers
// classify failures with errors.Is and wrap with fmt.Errorf("...: %w", err)
// to add context.
package apperr

import "errors"

var (
	// ErrNotFound: unknown event or image.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput: bad metric or algorithm name, out-of-range top-k and
	// other caller mistakes.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidImage: bytes that do not decode as an image. Raised before
	// any detection work runs.
	ErrInvalidImage = errors.New("invalid image data")

	// ErrStorageFailure: transient object-store failure. Retryable by the
	// caller; never retried internally.
	ErrStorageFailure = errors.New("object storage failure")

	// ErrExtractionFailure: face detection failed or timed out. The image
	// stays at face count zero.
	ErrExtractionFailure = errors.New("face extraction failure")

	// ErrNoFaceDetected / ErrAmbiguousFace: similarity-query validation.
	ErrNoFaceDetected = errors.New("no face detected")
	ErrAmbiguousFace  = errors.New("multiple faces detected")

	// ErrClusteringFailure: a clustering run degraded or failed for one
	// event. Other events are unaffected.
	ErrClusteringFailure = errors.New("clustering failure")

	// ErrClusterRunActive: a clustering run for the event is already in
	// flight.
	ErrClusterRunActive = errors.New("clustering already running for event")

	// ErrQueueFull: the extraction queue is at capacity; callers should back
	// off and retry.
	ErrQueueFull = errors.New("extraction queue full")
)
