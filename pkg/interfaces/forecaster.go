package interfaces

import (
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// ForecastInput bundles the four arrays a forecaster consumes
type ForecastInput struct {
	// X is the encoder input (batch, seq_len, channels)
	X *tensor.Tensor
	// XMark carries the calendar features aligned to X
	XMark *tensor.Tensor
	// DecoderInput is the known label window followed by a zero block (batch, label_len+pred_len, channels)
	DecoderInput *tensor.Tensor
	// DecoderMark carries the calendar features aligned to DecoderInput
	DecoderMark *tensor.Tensor
}

// Forecaster defines the interface for trainable forecasting models
type Forecaster interface {
	// Name returns the registry name of the model
	Name() string

	// Parameters returns every trainable parameter, each tagged with its optimizer group
	Parameters() []*tensor.Parameter

	// Forward computes a forecast shaped (batch, >=pred_len, channels).
	// In training mode the model keeps what Backward needs.
	Forward(in *ForecastInput) (*tensor.Tensor, error)

	// Backward accumulates parameter gradients given dLoss/dOutput for the
	// most recent Forward call. The gradient has the shape of that output.
	Backward(gradOut *tensor.Tensor) error

	// SetTraining toggles between training and evaluation mode
	SetTraining(training bool)

	// Training reports the current mode
	Training() bool
}
