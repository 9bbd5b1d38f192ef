package entity

import "fmt"

// ValidationError represents a structural validation failure on an entity
// field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// BusinessLogicError represents a violation of a domain rule during an
// analysis operation.
type BusinessLogicError struct {
	Operation string
	Reason    string
}

func (e *BusinessLogicError) Error() string {
	return fmt.Sprintf("business logic error in '%s': %s", e.Operation, e.Reason)
}

// NewBusinessLogicError creates a new business logic error.
func NewBusinessLogicError(operation, reason string) *BusinessLogicError {
	return &BusinessLogicError{Operation: operation, Reason: reason}
}

// InsufficientDataError reports that an operation received fewer records or
// groups than it needs to produce a meaningful result.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need at least %d, got %d", e.Op, e.Need, e.Got)
}

// NewInsufficientDataError creates a new insufficient data error.
func NewInsufficientDataError(op string, need, got int) *InsufficientDataError {
	return &InsufficientDataError{Op: op, Need: need, Got: got}
}

// UnknownCategoryError reports a categorical value at inference time that
// was never seen during training. Unseen categories fail loudly instead of
// being coerced to an arbitrary encoding.
type UnknownCategoryError struct {
	Feature string
	Value   string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for feature '%s'", e.Value, e.Feature)
}

// NewUnknownCategoryError creates a new unknown category error.
func NewUnknownCategoryError(feature, value string) *UnknownCategoryError {
	return &UnknownCategoryError{Feature: feature, Value: value}
}

// FeatureShapeError reports a feature vector whose length does not match
// the shape the model was trained on.
type FeatureShapeError struct {
	Want int
	Got  int
}

func (e *FeatureShapeError) Error() string {
	return fmt.Sprintf("feature vector has %d values, model expects %d", e.Got, e.Want)
}

// NewFeatureShapeError creates a new feature shape error.
func NewFeatureShapeError(want, got int) *FeatureShapeError {
	return &FeatureShapeError{Want: want, Got: got}
}

// InvalidTargetError reports a simulation target that is not an improvement
// over the current state.
type InvalidTargetError struct {
	Target      float64
	CurrentMean float64
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("target delay %.2f days is not below the current mean of %.2f days", e.Target, e.CurrentMean)
}

// NewInvalidTargetError creates a new invalid target error.
func NewInvalidTargetError(target, currentMean float64) *InvalidTargetError {
	return &InvalidTargetError{Target: target, CurrentMean: currentMean}
}

// ModelVersionMismatchError reports a persisted model artifact whose schema
// or identity does not match what the loader expects. Incompatible
// artifacts fail loudly instead of producing silently wrong predictions.
type ModelVersionMismatchError struct {
	Name string
	Want string
	Got  string
}

func (e *ModelVersionMismatchError) Error() string {
	return fmt.Sprintf("model artifact '%s': version %s is not loadable by this build (want %s)", e.Name, e.Got, e.Want)
}

// NewModelVersionMismatchError creates a new model version mismatch error.
func NewModelVersionMismatchError(name, want, got string) *ModelVersionMismatchError {
	return &ModelVersionMismatchError{Name: name, Want: want, Got: got}
}
