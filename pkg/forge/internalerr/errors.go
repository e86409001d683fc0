package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidConfig           = errors.New("invalid configuration")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrLicenseDenied           = errors.New("license denied")
)

// StageError reports a failure of a single stage while processing a single
// document. It is recovered at the orchestrator boundary: the document is
// marked failed and the run continues.
type StageError struct {
	Stage   string
	Ordinal int64
	Cause   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed for document %d: %v", e.Stage, e.Ordinal, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// NewStageError wraps a per-document stage failure.
func NewStageError(stage string, ordinal int64, cause error) *StageError {
	return &StageError{Stage: stage, Ordinal: ordinal, Cause: cause}
}

// ConfigError reports an invalid configuration value. It always wraps
// ErrInvalidConfig so callers can test with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
