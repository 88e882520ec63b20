package data

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/inferloop/tsforecast/pkg/errors"
)

// Frame is a regularly sampled multi-channel series. The last column is the
// target of the S and MS feature modes.
type Frame struct {
	Timestamps []time.Time
	Columns    []string
	Values     [][]float64 // row-major, one row per timestamp
}

// Rows returns the number of timestamps
func (f *Frame) Rows() int {
	return len(f.Values)
}

// Validate checks that the frame is rectangular and aligned
func (f *Frame) Validate() error {
	if len(f.Columns) == 0 {
		return errors.NewDataError(errors.CodeInsufficientData, "frame has no columns")
	}
	if len(f.Timestamps) != len(f.Values) {
		return errors.NewShapeError(fmt.Sprintf("%d timestamps for %d rows", len(f.Timestamps), len(f.Values)))
	}
	for i, row := range f.Values {
		if len(row) != len(f.Columns) {
			return errors.NewShapeError(fmt.Sprintf("row %d has %d values, want %d", i, len(row), len(f.Columns)))
		}
	}
	return nil
}

// SyntheticOptions configures Synthetic
type SyntheticOptions struct {
	Rows     int
	Channels int
	Freq     string
	Start    time.Time
	Seed     int64
	Noise    float64
}

// Synthetic generates channels made of a daily and a weekly cycle, a slow
// trend and gaussian noise. Each channel has its own phase and amplitude;
// the last channel is called "OT" so it reads like a target column.
func Synthetic(opts SyntheticOptions) (*Frame, error) {
	if opts.Rows <= 0 || opts.Channels <= 0 {
		return nil, errors.NewConfigurationError(nil,
			fmt.Sprintf("synthetic data needs positive rows and channels, got %d and %d", opts.Rows, opts.Channels))
	}
	step, err := FreqStep(opts.Freq)
	if err != nil {
		return nil, err
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	phase := make([]float64, opts.Channels)
	amp := make([]float64, opts.Channels)
	trend := make([]float64, opts.Channels)
	for c := range phase {
		phase[c] = rng.Float64() * 2 * math.Pi
		amp[c] = 1 + rng.Float64()*4
		trend[c] = (rng.Float64() - 0.5) * 1e-3
	}

	f := &Frame{
		Timestamps: make([]time.Time, opts.Rows),
		Columns:    make([]string, opts.Channels),
		Values:     make([][]float64, opts.Rows),
	}
	for c := range f.Columns {
		f.Columns[c] = fmt.Sprintf("ch%d", c)
	}
	f.Columns[opts.Channels-1] = "OT"

	day := float64(24 * time.Hour / step)
	for i := 0; i < opts.Rows; i++ {
		ts := start.Add(time.Duration(i) * step)
		f.Timestamps[i] = ts
		row := make([]float64, opts.Channels)
		for c := range row {
			t := float64(i)
			row[c] = amp[c]*math.Sin(2*math.Pi*t/day+phase[c]) +
				0.5*amp[c]*math.Sin(2*math.Pi*t/(7*day)+phase[c]/2) +
				trend[c]*t +
				opts.Noise*rng.NormFloat64()
		}
		f.Values[i] = row
	}
	return f, nil
}
