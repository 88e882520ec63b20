package data

import (
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// WindowDataset slides a (seq_len, label_len+pred_len) window over one split
type WindowDataset struct {
	values   [][]float64 // scaled, selected columns
	marks    [][]float64
	seqLen   int
	labelLen int
	predLen  int
	scaler   *DataScaler
}

// Len returns the number of complete windows
func (d *WindowDataset) Len() int {
	n := len(d.values) - d.seqLen - d.predLen + 1
	if n < 0 {
		return 0
	}
	return n
}

// Channels returns the number of value columns
func (d *WindowDataset) Channels() int {
	if len(d.values) == 0 {
		return 0
	}
	return len(d.values[0])
}

// MarkChannels returns the number of calendar features
func (d *WindowDataset) MarkChannels() int {
	if len(d.marks) == 0 {
		return 0
	}
	return len(d.marks[0])
}

// InverseTransform maps scaled values back to the original units
func (d *WindowDataset) InverseTransform(values []float64) []float64 {
	if d.scaler == nil {
		return append([]float64(nil), values...)
	}
	return d.scaler.InverseTransform(values)
}

// fill copies window i into row b of the four batch tensors
func (d *WindowDataset) fill(i, b int, x, y, xMark, yMark *tensor.Tensor) {
	sBegin := i
	sEnd := sBegin + d.seqLen
	rBegin := sEnd - d.labelLen
	rEnd := rBegin + d.labelLen + d.predLen

	for s := sBegin; s < sEnd; s++ {
		copy(x.Data[x.Index(b, s-sBegin, 0):], d.values[s])
		copy(xMark.Data[xMark.Index(b, s-sBegin, 0):], d.marks[s])
	}
	for s := rBegin; s < rEnd; s++ {
		copy(y.Data[y.Index(b, s-rBegin, 0):], d.values[s])
		copy(yMark.Data[yMark.Index(b, s-rBegin, 0):], d.marks[s])
	}
}
