package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common application errors
var (
	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnknownModel         = errors.New("unknown model")
	ErrUnknownFeatureMode   = errors.New("unknown feature mode")
	ErrUnknownSchedule      = errors.New("unknown learning rate schedule")
	ErrUnknownSplit         = errors.New("unknown data split")
	ErrUnknownFrequency     = errors.New("unknown time feature frequency")

	// Data errors
	ErrInsufficientData = errors.New("insufficient data for the requested windows")
	ErrEmptyLoader      = errors.New("data loader yielded no batches")
	ErrShapeMismatch    = errors.New("shape mismatch")

	// Training errors
	ErrNonFiniteLoss   = errors.New("non-finite loss")
	ErrTrainingAborted = errors.New("training aborted")

	// Checkpoint errors
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointCorrupt  = errors.New("checkpoint corrupt")
	ErrParameterMismatch  = errors.New("parameter mismatch")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeData          ErrorType = "data"
	ErrorTypeModel         ErrorType = "model"
	ErrorTypeTraining      ErrorType = "training"
	ErrorTypeCheckpoint    ErrorType = "checkpoint"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewConfigurationError wraps ErrInvalidConfiguration, or a more specific
// sentinel when one is given.
func NewConfigurationError(sentinel error, message string) *AppError {
	if sentinel == nil {
		sentinel = ErrInvalidConfiguration
	}
	return WrapError(sentinel, ErrorTypeConfiguration, CodeInvalidConfiguration, message)
}

// NewShapeError creates a data error wrapping ErrShapeMismatch
func NewShapeError(message string) *AppError {
	return WrapError(ErrShapeMismatch, ErrorTypeData, CodeShapeMismatch, message)
}

// NewDataError creates a data error
func NewDataError(code, message string) *AppError {
	return NewAppError(ErrorTypeData, code, message)
}

// NewTrainingError creates a training error
func NewTrainingError(code, message string) *AppError {
	return NewAppError(ErrorTypeTraining, code, message)
}

// NewCheckpointError creates a checkpoint error
func NewCheckpointError(code, message string) *AppError {
	return NewAppError(ErrorTypeCheckpoint, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// ValidationErrorDetail represents detailed validation error information
type ValidationErrorDetail struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Cause   error       `json:"-"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Message string                  `json:"message"`
	Errors  []ValidationErrorDetail `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return ve.Message
	}
	parts := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Sprintf("%s: %s", ve.Message, strings.Join(parts, "; "))
}

// Unwrap exposes the sentinel causes so errors.Is can match any of them
func (ve *ValidationErrors) Unwrap() []error {
	causes := []error{ErrInvalidConfiguration}
	for _, e := range ve.Errors {
		if e.Cause != nil {
			causes = append(causes, e.Cause)
		}
	}
	return causes
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, code, message string, value interface{}) {
	ve.AddCause(field, code, message, value, nil)
}

// AddCause adds a validation error backed by a sentinel
func (ve *ValidationErrors) AddCause(field, code, message string, value interface{}, cause error) {
	ve.Errors = append(ve.Errors, ValidationErrorDetail{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
		Cause:   cause,
	})
}

// HasErrors checks if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Message: "Validation failed",
		Errors:  make([]ValidationErrorDetail, 0),
	}
}

// Error codes for different error scenarios
const (
	// Configuration error codes
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeMissingField         = "MISSING_FIELD"
	CodeOutOfRange           = "OUT_OF_RANGE"
	CodeUnknownValue         = "UNKNOWN_VALUE"

	// Data error codes
	CodeShapeMismatch    = "SHAPE_MISMATCH"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeEmptyLoader      = "EMPTY_LOADER"

	// Training error codes
	CodeNonFiniteLoss  = "NON_FINITE_LOSS"
	CodeTrainingFailed = "TRAINING_FAILED"
	CodeForwardFailed  = "FORWARD_FAILED"
	CodeBackwardFailed = "BACKWARD_FAILED"

	// Checkpoint error codes
	CodeCheckpointNotFound = "CHECKPOINT_NOT_FOUND"
	CodeCheckpointCorrupt  = "CHECKPOINT_CORRUPT"
	CodeCheckpointWrite    = "CHECKPOINT_WRITE_FAILED"
	CodeParameterMismatch  = "PARAMETER_MISMATCH"

	// Storage error codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeInvalidConfig    = "INVALID_CONFIG"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
