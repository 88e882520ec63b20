// Package tensor provides the dense numeric arrays exchanged between data
// providers, models and the experiment driver.
//
// A Tensor is always three dimensional: (batch, steps, channels), stored
// row-major so that the channel index varies fastest. This matches the layout
// of every batch the driver handles (encoder input, targets, time features and
// forecasts). Window copies go through a gonum matrix view of shape
// (batch*steps, channels) over the same backing slice.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/tsforecast/pkg/errors"
)

// Tensor is a dense (batch, steps, channels) array of float64 values
type Tensor struct {
	Batch    int
	Steps    int
	Channels int
	Data     []float64
}

// New allocates a zero-filled tensor
func New(batch, steps, channels int) *Tensor {
	if batch < 0 || steps < 0 || channels < 0 {
		panic(fmt.Sprintf("tensor: negative dimension (%d, %d, %d)", batch, steps, channels))
	}
	return &Tensor{
		Batch:    batch,
		Steps:    steps,
		Channels: channels,
		Data:     make([]float64, batch*steps*channels),
	}
}

// FromData wraps data without copying. The length must match the shape.
func FromData(batch, steps, channels int, data []float64) (*Tensor, error) {
	if len(data) != batch*steps*channels {
		return nil, errors.NewShapeError(
			fmt.Sprintf("data length %d does not match shape (%d, %d, %d)", len(data), batch, steps, channels))
	}
	return &Tensor{Batch: batch, Steps: steps, Channels: channels, Data: data}, nil
}

// Shape returns the dimensions as a slice
func (t *Tensor) Shape() []int {
	return []int{t.Batch, t.Steps, t.Channels}
}

// Len returns the number of elements
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Index returns the flat offset of (b, s, c)
func (t *Tensor) Index(b, s, c int) int {
	return (b*t.Steps+s)*t.Channels + c
}

// At returns the value at (b, s, c)
func (t *Tensor) At(b, s, c int) float64 {
	return t.Data[t.Index(b, s, c)]
}

// Set stores v at (b, s, c)
func (t *Tensor) Set(b, s, c int, v float64) {
	t.Data[t.Index(b, s, c)] = v
}

// SameShape reports whether o has the same dimensions as t
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.Batch == o.Batch && t.Steps == o.Steps && t.Channels == o.Channels
}

// Clone returns a deep copy
func (t *Tensor) Clone() *Tensor {
	out := New(t.Batch, t.Steps, t.Channels)
	copy(out.Data, t.Data)
	return out
}

// ZerosLike returns a zero tensor with the shape of t
func ZerosLike(t *Tensor) *Tensor {
	return New(t.Batch, t.Steps, t.Channels)
}

// Matrix returns a (batch*steps, channels) view sharing t.Data, or nil when t
// has no elements
func (t *Tensor) Matrix() *mat.Dense {
	if t.Len() == 0 {
		return nil
	}
	return mat.NewDense(t.Batch*t.Steps, t.Channels, t.Data)
}

// Slice copies the window [stepFrom, stepTo) x [chanFrom, Channels) into a new tensor.
func (t *Tensor) Slice(stepFrom, stepTo, chanFrom int) (*Tensor, error) {
	if stepFrom < 0 || stepTo > t.Steps || stepFrom > stepTo {
		return nil, errors.NewShapeError(
			fmt.Sprintf("step range [%d, %d) out of bounds for %d steps", stepFrom, stepTo, t.Steps))
	}
	if chanFrom < 0 || chanFrom > t.Channels {
		return nil, errors.NewShapeError(
			fmt.Sprintf("channel offset %d out of bounds for %d channels", chanFrom, t.Channels))
	}

	out := New(t.Batch, stepTo-stepFrom, t.Channels-chanFrom)
	if out.Len() == 0 {
		return out, nil
	}

	src, dst := t.Matrix(), out.Matrix()
	for b := 0; b < t.Batch; b++ {
		window := src.Slice(b*t.Steps+stepFrom, b*t.Steps+stepTo, chanFrom, t.Channels)
		dst.Slice(b*out.Steps, (b+1)*out.Steps, 0, out.Channels).(*mat.Dense).Copy(window)
	}
	return out, nil
}

// FirstSteps copies the first n steps
func (t *Tensor) FirstSteps(n int) (*Tensor, error) {
	return t.Slice(0, n, 0)
}

// LastSteps copies the last n steps
func (t *Tensor) LastSteps(n int) (*Tensor, error) {
	return t.Slice(t.Steps-n, t.Steps, 0)
}

// ConcatSteps joins a and b along the step axis
func ConcatSteps(a, b *Tensor) (*Tensor, error) {
	if a.Batch != b.Batch || a.Channels != b.Channels {
		return nil, errors.NewShapeError(
			fmt.Sprintf("cannot concatenate (%d, %d, %d) with (%d, %d, %d)",
				a.Batch, a.Steps, a.Channels, b.Batch, b.Steps, b.Channels))
	}

	out := New(a.Batch, a.Steps+b.Steps, a.Channels)
	if out.Len() == 0 {
		return out, nil
	}

	dst := out.Matrix()
	for i := 0; i < out.Batch; i++ {
		row := i * out.Steps
		if a.Len() > 0 {
			dst.Slice(row, row+a.Steps, 0, out.Channels).(*mat.Dense).
				Copy(a.Matrix().Slice(i*a.Steps, (i+1)*a.Steps, 0, a.Channels))
		}
		if b.Len() > 0 {
			dst.Slice(row+a.Steps, row+out.Steps, 0, out.Channels).(*mat.Dense).
				Copy(b.Matrix().Slice(i*b.Steps, (i+1)*b.Steps, 0, b.Channels))
		}
	}
	return out, nil
}

// ConcatBatch stacks tensors along the batch axis. All inputs must agree on
// steps and channels.
func ConcatBatch(parts []*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return New(0, 0, 0), nil
	}

	steps, channels := parts[0].Steps, parts[0].Channels
	total := 0
	for _, p := range parts {
		if p.Steps != steps || p.Channels != channels {
			return nil, errors.NewShapeError(
				fmt.Sprintf("batch part (%d, %d) does not match (%d, %d)", p.Steps, p.Channels, steps, channels))
		}
		total += p.Batch
	}

	out := New(total, steps, channels)
	if out.Len() == 0 {
		return out, nil
	}

	dst := out.Matrix()
	row := 0
	for _, p := range parts {
		if p.Len() == 0 {
			continue
		}
		rows := p.Batch * steps
		dst.Slice(row, row+rows, 0, channels).(*mat.Dense).Copy(p.Matrix())
		row += rows
	}
	return out, nil
}
