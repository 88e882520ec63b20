package earlystop

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/interfaces"
)

type saveRecorder struct {
	paths []string
	err   error
}

func (r *saveRecorder) save(_ interfaces.Forecaster, path string) error {
	if r.err != nil {
		return r.err
	}
	r.paths = append(r.paths, path)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestStrictlyImprovingNeverStops(t *testing.T) {
	rec := &saveRecorder{}
	m := New(2, 0, rec.save, quietLogger())

	for i, score := range []float64{1, 0.9, 0.5, 0.4, 0.1, 0.01} {
		state, err := m.Step(score, nil, "ckpt")
		require.NoError(t, err)
		assert.Equal(t, Improved, state, "step %d", i)
		assert.False(t, m.Stopped())
	}
	assert.Len(t, rec.paths, 6)
	assert.Equal(t, filepath.Join("ckpt", "checkpoint.pth"), rec.paths[0])
}

func TestStopsExactlyAfterPatience(t *testing.T) {
	for _, patience := range []int{1, 2, 3, 5} {
		rec := &saveRecorder{}
		m := New(patience, 0, rec.save, quietLogger())

		state, err := m.Step(1.0, nil, "d")
		require.NoError(t, err)
		require.Equal(t, Improved, state)

		for i := 1; i <= patience; i++ {
			state, err = m.Step(1.0+float64(i), nil, "d")
			require.NoError(t, err)
			if i < patience {
				assert.Equal(t, Waiting, state)
				assert.False(t, m.Stopped())
			}
		}
		assert.Equal(t, Stopped, state)
		assert.True(t, m.Stopped())
		assert.Len(t, rec.paths, 1)
	}
}

func TestImprovementResetsCounter(t *testing.T) {
	m := New(3, 0, (&saveRecorder{}).save, quietLogger())

	for _, s := range []float64{1, 2, 2} {
		_, err := m.Step(s, nil, "d")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Counter())

	state, err := m.Step(0.5, nil, "d")
	require.NoError(t, err)
	assert.Equal(t, Improved, state)
	assert.Equal(t, 0, m.Counter())

	best, ok := m.Best()
	assert.True(t, ok)
	assert.Equal(t, 0.5, best)
}

func TestDeltaRequiresMargin(t *testing.T) {
	m := New(5, 0.1, (&saveRecorder{}).save, quietLogger())

	_, err := m.Step(1.0, nil, "d")
	require.NoError(t, err)

	state, err := m.Step(0.95, nil, "d")
	require.NoError(t, err)
	assert.Equal(t, Waiting, state)

	state, err = m.Step(0.85, nil, "d")
	require.NoError(t, err)
	assert.Equal(t, Improved, state)
}

func TestEqualScoreIsNotAnImprovement(t *testing.T) {
	m := New(1, 0, (&saveRecorder{}).save, quietLogger())
	_, err := m.Step(0.3, nil, "d")
	require.NoError(t, err)
	state, err := m.Step(0.3, nil, "d")
	require.NoError(t, err)
	assert.Equal(t, Stopped, state)
}

func TestStoppedIsTerminal(t *testing.T) {
	rec := &saveRecorder{}
	m := New(1, 0, rec.save, quietLogger())
	_, _ = m.Step(1, nil, "d")
	_, _ = m.Step(2, nil, "d")
	require.True(t, m.Stopped())

	state, err := m.Step(0.001, nil, "d")
	require.NoError(t, err)
	assert.Equal(t, Stopped, state)
	assert.Len(t, rec.paths, 1)
}

func TestNaNNeverImproves(t *testing.T) {
	m := New(2, 0, (&saveRecorder{}).save, quietLogger())
	state, err := m.Step(math.NaN(), nil, "d")
	require.NoError(t, err)
	assert.Equal(t, Waiting, state)
	_, ok := m.Best()
	assert.False(t, ok)
}

func TestSaveErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	m := New(2, 0, (&saveRecorder{err: boom}).save, quietLogger())

	_, err := m.Step(1, nil, "d")
	assert.ErrorIs(t, err, boom)
	_, ok := m.Best()
	assert.False(t, ok)
}
