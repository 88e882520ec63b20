package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMatchesSentinelThroughCause(t *testing.T) {
	err := WrapError(ErrCheckpointNotFound, ErrorTypeCheckpoint, CodeCheckpointNotFound, "no checkpoint at ./checkpoints/x")
	wrapped := fmt.Errorf("load best model: %w", err)

	assert.True(t, errors.Is(wrapped, ErrCheckpointNotFound))
	assert.False(t, errors.Is(wrapped, ErrCheckpointCorrupt))
	assert.Contains(t, err.Error(), CodeCheckpointNotFound)
	assert.Contains(t, err.Error(), "checkpoint not found")
}

func TestAppErrorIsComparesTypeAndCode(t *testing.T) {
	a := NewTrainingError(CodeNonFiniteLoss, "loss is NaN")
	b := NewTrainingError(CodeNonFiniteLoss, "different message")
	c := NewCheckpointError(CodeNonFiniteLoss, "loss is NaN")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWithContextAndDetails(t *testing.T) {
	err := NewDataError(CodeInsufficientData, "too short").
		WithDetails("need 120 rows").
		WithContext("rows", 50)

	assert.Equal(t, 50, err.Context["rows"])
	assert.Equal(t, "INSUFFICIENT_DATA: too short - need 120 rows", err.Error())
}

func TestConfigurationErrorDefaultsToInvalidConfiguration(t *testing.T) {
	assert.True(t, errors.Is(NewConfigurationError(nil, "bad"), ErrInvalidConfiguration))
	assert.True(t, errors.Is(NewConfigurationError(ErrUnknownModel, "model Foo"), ErrUnknownModel))
}

func TestShapeError(t *testing.T) {
	err := NewShapeError("(2, 3) vs (2, 4)")
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Equal(t, ErrorTypeData, err.Type)
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	assert.False(t, ve.HasErrors())

	ve.Add("seq_len", CodeOutOfRange, "must be positive", 0)
	ve.AddCause("features", CodeUnknownValue, "must be one of M, S, MS", "X", ErrUnknownFeatureMode)

	require.True(t, ve.HasErrors())
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, ve.Error(), "seq_len: must be positive")
	assert.True(t, errors.Is(ve, ErrUnknownFeatureMode))
	assert.True(t, errors.Is(ve, ErrInvalidConfiguration))
	assert.False(t, errors.Is(ve, ErrUnknownModel))
}

func TestWrapStorageError(t *testing.T) {
	assert.Nil(t, WrapStorageError(nil, "write", "redis"))

	cause := errors.New("connection refused")
	err := WrapStorageError(cause, "write", "influxdb").WithTarget("training")

	assert.True(t, errors.Is(err, ErrStorageWriteFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "training", err.Target)
	assert.Equal(t, CodeWriteFailed, err.Code)

	readErr := WrapStorageError(cause, "list", "sqlite")
	assert.True(t, errors.Is(readErr, ErrStorageReadFailed))
}
