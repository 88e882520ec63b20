package visualization

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLossCurve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "loss.png")
	history := []EpochLoss{
		{Epoch: 1, Train: 1.0, Vali: 1.2, Test: 1.3},
		{Epoch: 2, Train: 0.6, Vali: 0.9, Test: 1.0},
		{Epoch: 3, Train: 0.4, Vali: 0.8, Test: 0.95},
	}

	require.NoError(t, SaveLossCurve(path, history))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestSaveLossCurveRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, SaveLossCurve(filepath.Join(dir, "empty.png"), nil))
	assert.Error(t, SaveLossCurve(filepath.Join(dir, "nan.png"), []EpochLoss{{Epoch: 1, Train: math.NaN()}}))
}
