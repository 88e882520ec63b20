package data

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	tserrors "github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

func rampFrame(rows, channels int) *Frame {
	f := &Frame{
		Timestamps: make([]time.Time, rows),
		Columns:    make([]string, channels),
		Values:     make([][]float64, rows),
	}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range f.Values {
		f.Timestamps[i] = start.Add(time.Duration(i) * time.Hour)
		row := make([]float64, channels)
		for c := range row {
			row[c] = float64(i*10 + c)
		}
		f.Values[i] = row
	}
	return f
}

func TestScalerZScore(t *testing.T) {
	s := NewDataScaler(ScalerZScore)
	rows := [][]float64{{1, 10}, {2, 10}, {3, 10}}
	require.NoError(t, s.Fit(rows))

	out := s.Transform(rows)
	col := []float64{out[0][0], out[1][0], out[2][0]}
	mean, std := stat.PopMeanStdDev(col, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)
	assert.Equal(t, 0.0, out[0][1], "constant column is centred")

	back := s.InverseTransform([]float64{out[2][0], out[2][1]})
	assert.InDelta(t, 3, back[0], 1e-9)
	assert.InDelta(t, 10, back[1], 1e-6)

	assert.Error(t, NewDataScaler("robust").Fit(rows))
	assert.Error(t, s.Fit(nil))
}

func TestScalerMinMax(t *testing.T) {
	s := NewDataScaler(ScalerMinMax)
	require.NoError(t, s.Fit([][]float64{{0}, {5}, {10}}))
	assert.Equal(t, [][]float64{{0.5}}, s.Transform([][]float64{{5}}))
	assert.Equal(t, []float64{10}, s.InverseTransform([]float64{1}))
}

func TestTimeFeatures(t *testing.T) {
	ts := []time.Time{time.Date(2021, 1, 1, 23, 30, 0, 0, time.UTC)}

	hourly, err := TimeFeatures(ts, "h")
	require.NoError(t, err)
	require.Len(t, hourly[0], 4)
	assert.InDelta(t, 0.5, hourly[0][0], 1e-12)  // 23h
	assert.InDelta(t, -0.5, hourly[0][2], 1e-12) // 1st of month
	for _, v := range hourly[0] {
		assert.True(t, v >= -0.5 && v <= 0.5)
	}

	n, err := TimeFeatureCount("t")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = TimeFeatures(ts, "w")
	assert.True(t, errors.Is(err, tserrors.ErrUnknownFrequency))
}

func TestSyntheticIsDeterministic(t *testing.T) {
	opts := SyntheticOptions{Rows: 50, Channels: 3, Freq: "h", Seed: 4, Noise: 0.1}
	a, err := Synthetic(opts)
	require.NoError(t, err)
	b, err := Synthetic(opts)
	require.NoError(t, err)

	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, "OT", a.Columns[2])
	assert.Equal(t, time.Hour, a.Timestamps[1].Sub(a.Timestamps[0]))
	assert.NoError(t, a.Validate())

	_, err = Synthetic(SyntheticOptions{Rows: 0, Channels: 1, Freq: "h"})
	assert.Error(t, err)
}

func TestProviderSplitsAndWindows(t *testing.T) {
	frame := rampFrame(100, 2)
	p, err := NewProvider(frame, Options{SeqLen: 8, LabelLen: 2, PredLen: 3, Features: "M", Freq: "h", BatchSize: 4}, nil)
	require.NoError(t, err)

	// 70 / 10 / 20 rows
	trainDS, trainLoader, err := p.Get("train")
	require.NoError(t, err)
	assert.Equal(t, 70-8-3+1, trainDS.Len())
	assert.Equal(t, trainDS.Len()/4, trainLoader.Len())

	valDS, _, err := p.Get("val")
	require.NoError(t, err)
	assert.Equal(t, 10-3+1, valDS.Len())

	testDS, testLoader, err := p.Get("test")
	require.NoError(t, err)
	assert.Equal(t, 20-3+1, testDS.Len())
	assert.Equal(t, 2, testDS.Channels())

	var first *interfaces.Batch
	require.NoError(t, testLoader.Iterate(context.Background(), func(i int, b *interfaces.Batch) error {
		if i == 0 {
			first = b
		}
		return nil
	}))
	require.NotNil(t, first)
	assert.Equal(t, []int{4, 8, 2}, first.X.Shape())
	assert.Equal(t, []int{4, 5, 2}, first.Y.Shape())
	assert.Equal(t, []int{4, 8, 4}, first.XMark.Shape())

	// unscaled ramp: the first test window starts at row 80-8=72
	assert.Equal(t, 720.0, first.X.At(0, 0, 0))
	assert.Equal(t, 791.0, first.X.At(0, 7, 1))
	// y starts label_len rows before the end of x
	assert.Equal(t, first.X.At(0, 6, 0), first.Y.At(0, 0, 0))
	assert.Equal(t, 820.0, first.Y.At(0, 4, 0))
}

func TestProviderFeatureModes(t *testing.T) {
	frame := rampFrame(100, 3)
	opts := Options{SeqLen: 4, PredLen: 2, Freq: "h", BatchSize: 2}

	opts.Features = "S"
	p, err := NewProvider(frame, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Channels())
	ds, loader, err := p.Get("test")
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Channels())
	require.NoError(t, loader.Iterate(context.Background(), func(i int, b *interfaces.Batch) error {
		if i == 0 {
			assert.Equal(t, 762.0, b.X.At(0, 0, 0), "S keeps only the last column")
		}
		return nil
	}))

	opts.Features = "MS"
	p, err = NewProvider(frame, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Channels())

	opts.Features = "X"
	_, err = NewProvider(frame, opts, nil)
	assert.True(t, errors.Is(err, tserrors.ErrUnknownFeatureMode))
}

func TestProviderScalesWithTrainStatistics(t *testing.T) {
	frame := rampFrame(200, 1)
	p, err := NewProvider(frame, Options{SeqLen: 4, PredLen: 2, Features: "S", Freq: "h", BatchSize: 1, Scale: true}, nil)
	require.NoError(t, err)

	train := make([]float64, 140)
	for i := range train {
		train[i] = float64(i * 10)
	}
	mean, std := stat.PopMeanStdDev(train, nil)

	ds, loader, err := p.Get("test")
	require.NoError(t, err)
	require.NoError(t, loader.Iterate(context.Background(), func(i int, b *interfaces.Batch) error {
		if i == 0 {
			// row 160-4=156
			assert.InDelta(t, (1560-mean)/std, b.X.At(0, 0, 0), 1e-9)
		}
		return nil
	}))
	assert.InDelta(t, 1560, ds.InverseTransform([]float64{(1560 - mean) / std})[0], 1e-9)
}

func TestProviderRejectsShortSeries(t *testing.T) {
	_, err := NewProvider(rampFrame(20, 1), Options{SeqLen: 8, PredLen: 4, Features: "S", Freq: "h", BatchSize: 1}, nil)
	assert.True(t, errors.Is(err, tserrors.ErrInsufficientData))
}

func TestProviderUnknownSplit(t *testing.T) {
	p, err := NewProvider(rampFrame(100, 1), Options{SeqLen: 4, PredLen: 2, Features: "S", Freq: "h", BatchSize: 1}, nil)
	require.NoError(t, err)
	_, _, err = p.Get("holdout")
	assert.True(t, errors.Is(err, tserrors.ErrUnknownSplit))
}

func TestLoaderShufflesTrainAndStopsOnCancel(t *testing.T) {
	p, err := NewProvider(rampFrame(300, 1), Options{SeqLen: 4, PredLen: 2, Features: "S", Freq: "h", BatchSize: 1}, nil)
	require.NoError(t, err)

	_, loader, err := p.Get("train")
	require.NoError(t, err)

	var starts []float64
	require.NoError(t, loader.Iterate(context.Background(), func(_ int, b *interfaces.Batch) error {
		starts = append(starts, b.X.At(0, 0, 0))
		return nil
	}))
	sorted := true
	for i := 1; i < len(starts); i++ {
		if starts[i] < starts[i-1] {
			sorted = false
		}
	}
	assert.False(t, sorted, "train batches should be shuffled")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = loader.Iterate(ctx, func(int, *interfaces.Batch) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.False(t, math.IsNaN(starts[0]))
}
