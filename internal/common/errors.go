// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed failure below unwraps to exactly one of these so callers can
// branch with errors.Is without knowing the concrete type.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrDataQuality     = errors.New("data quality check failed")
	ErrArtifactMissing = errors.New("artifact missing")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports malformed prediction input. Recoverable: the caller should re-prompt.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s=%v %s", ErrValidation, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NotFoundError reports a lookup key that is absent from an index.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %v", e.Kind, e.Key, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// DataQualityError reports degenerate fit input. It aborts the fit and leaves previously
// published artifacts untouched.
type DataQualityError struct {
	Stage  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("%v in %s: %s", ErrDataQuality, e.Stage, e.Reason)
}

func (e *DataQualityError) Unwrap() error {
	return ErrDataQuality
}

// NewDataQualityError creates a DataQualityError.
func NewDataQualityError(stage, reason string) error {
	return &DataQualityError{Stage: stage, Reason: reason}
}

// ArtifactMissingError reports a persisted artifact that is absent, unreadable or written
// with an unsupported schema version. It indicates a deployment problem and is not retried.
type ArtifactMissingError struct {
	Err  error
	Name string
	Path string
}

func (e *ArtifactMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s (%s): %v", ErrArtifactMissing, e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %s (%s)", ErrArtifactMissing, e.Name, e.Path)
}

// Is lets errors.Is match both the kind sentinel and the wrapped cause.
func (e *ArtifactMissingError) Is(target error) bool {
	return target == ErrArtifactMissing
}

func (e *ArtifactMissingError) Unwrap() error {
	return e.Err
}

// NewArtifactMissingError creates an ArtifactMissingError.
func NewArtifactMissingError(name, path string, err error) error {
	return &ArtifactMissingError{Name: name, Path: path, Err: err}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRecoverable reports whether the caller can fix the failure by changing its input.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
