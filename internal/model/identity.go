package model

import (
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// IdentityName is the registry name of Identity
const IdentityName = "Identity"

// Identity echoes the decoder input. It has no parameters, so its forecast
// of the horizon is the zero block the driver appends.
type Identity struct {
	training bool
}

// NewIdentity creates an Identity model
func NewIdentity(Options) (*Identity, error) {
	return &Identity{training: true}, nil
}

func (m *Identity) Name() string { return IdentityName }

func (m *Identity) Parameters() []*tensor.Parameter { return nil }

// Forward returns a copy of the decoder input
func (m *Identity) Forward(in *interfaces.ForecastInput) (*tensor.Tensor, error) {
	if in == nil || in.DecoderInput == nil {
		return nil, errors.NewShapeError("identity model needs a decoder input")
	}
	return in.DecoderInput.Clone(), nil
}

// Backward has nothing to accumulate
func (m *Identity) Backward(*tensor.Tensor) error { return nil }

func (m *Identity) SetTraining(training bool) { m.training = training }

func (m *Identity) Training() bool { return m.training }
