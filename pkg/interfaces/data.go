package interfaces

import (
	"context"

	"github.com/inferloop/tsforecast/pkg/tensor"
)

// Batch is one (input, target, input marks, target marks) tuple yielded by a Loader.
// Consumers must not modify it.
type Batch struct {
	X     *tensor.Tensor
	Y     *tensor.Tensor
	XMark *tensor.Tensor
	YMark *tensor.Tensor
}

// Size returns the number of sequences in the batch
func (b *Batch) Size() int {
	if b == nil || b.X == nil {
		return 0
	}
	return b.X.Batch
}

// Dataset is the windowed view of one split
type Dataset interface {
	// Len returns the number of windows
	Len() int

	// Channels returns the number of value channels per step
	Channels() int

	// InverseTransform maps scaled values back to the original units
	InverseTransform(values []float64) []float64
}

// Loader yields batches from a Dataset
type Loader interface {
	// Len returns the number of batches one pass yields
	Len() int

	// BatchSize returns the configured batch size
	BatchSize() int

	// Iterate calls fn once per batch. Iteration stops at the first error or
	// when ctx is done.
	Iterate(ctx context.Context, fn func(i int, batch *Batch) error) error
}

// DataProvider builds the dataset and loader for a named split
type DataProvider interface {
	Get(split string) (Dataset, Loader, error)
}
