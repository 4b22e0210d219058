package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownModelType is returned for model type keys outside the supported set
	ErrUnknownModelType = errors.New("unknown model type")

	// ErrTrainingInProgress is returned when the training guard is already held
	ErrTrainingInProgress = errors.New("training already in progress")

	// ErrVersionNotFound is returned when a rollback target does not exist or
	// holds no checkpoint
	ErrVersionNotFound = errors.New("version not found")

	// ErrModelNotLoaded is returned by predict when no backend is available
	ErrModelNotLoaded = errors.New("model not loaded, training required")
)

// InsufficientSamplesError is returned when the corpus holds fewer normal
// samples than the configured minimum for a training run.
type InsufficientSamplesError struct {
	Required int
	Found    int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("need at least %d ok images (found %d)", e.Required, e.Found)
}

// TrainingFailedError wraps a failure raised by the fit step. The staging
// workspace is already cleaned up by the time it is returned.
type TrainingFailedError struct {
	Cause error
}

func (e *TrainingFailedError) Error() string {
	return fmt.Sprintf("training failed: %v", e.Cause)
}

func (e *TrainingFailedError) Unwrap() error { return e.Cause }

// InferenceError is returned when a loaded backend produced output the router
// cannot interpret, or the input image could not be decoded. The backend
// itself stays loaded.
type InferenceError struct {
	Reason string
	Cause  error
}

func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("inference failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("inference failed: %s", e.Reason)
}

func (e *InferenceError) Unwrap() error { return e.Cause }
