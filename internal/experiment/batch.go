package experiment

import (
	"fmt"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// DecoderInput returns the first labelLen steps of y followed by predLen
// zero steps.
func DecoderInput(y *tensor.Tensor, labelLen, predLen int) (*tensor.Tensor, error) {
	if labelLen < 0 || predLen <= 0 {
		return nil, errors.NewShapeError(fmt.Sprintf("invalid decoder lengths label %d pred %d", labelLen, predLen))
	}
	head, err := y.FirstSteps(labelLen)
	if err != nil {
		return nil, err
	}
	return tensor.ConcatSteps(head, tensor.New(y.Batch, predLen, y.Channels))
}

// horizon locates the scored region of a (batch, steps, channels) tensor:
// the last predLen steps and, in MS mode, only the last channel.
type horizon struct {
	predLen  int
	features string
}

func (h horizon) bounds(t *tensor.Tensor) (stepFrom, chanFrom int, err error) {
	if t.Steps < h.predLen {
		return 0, 0, errors.NewShapeError(fmt.Sprintf("tensor has %d steps, need at least pred_len %d", t.Steps, h.predLen))
	}
	if h.features == constants.FeaturesMultiToSingle {
		chanFrom = t.Channels - 1
	}
	return t.Steps - h.predLen, chanFrom, nil
}

func (h horizon) slice(t *tensor.Tensor) (*tensor.Tensor, error) {
	from, ch, err := h.bounds(t)
	if err != nil {
		return nil, err
	}
	return t.Slice(from, t.Steps, ch)
}

// scatter places grad, shaped like the sliced region, into a zero tensor
// shaped like full.
func (h horizon) scatter(full, grad *tensor.Tensor) (*tensor.Tensor, error) {
	from, ch, err := h.bounds(full)
	if err != nil {
		return nil, err
	}
	if grad.Batch != full.Batch || grad.Steps != h.predLen || grad.Channels != full.Channels-ch {
		return nil, errors.NewShapeError(fmt.Sprintf("gradient %v does not fit the horizon of %v", grad.Shape(), full.Shape()))
	}

	out := tensor.ZerosLike(full)
	for b := 0; b < grad.Batch; b++ {
		for s := 0; s < grad.Steps; s++ {
			src := grad.Index(b, s, 0)
			copy(out.Data[out.Index(b, from+s, ch):], grad.Data[src:src+grad.Channels])
		}
	}
	return out, nil
}

// mseGrad returns d mean((p-t)^2) / dp
func mseGrad(pred, truth *tensor.Tensor) *tensor.Tensor {
	g := tensor.ZerosLike(pred)
	n := float64(len(pred.Data))
	for i, p := range pred.Data {
		g.Data[i] = 2 * (p - truth.Data[i]) / n
	}
	return g
}
