package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentCapturesLogs(t *testing.T) {
	env := NewTestEnvironment(t)

	env.Logger.Info("hello")
	env.Logger.Debug("details")

	assert.True(t, env.Logged(logrus.InfoLevel, "hello"))
	assert.False(t, env.Logged(logrus.WarnLevel, "hello"))
	assert.Equal(t, []string{"details"}, env.Messages(logrus.DebugLevel))
	assert.NoError(t, env.Context.Err())
	assert.DirExists(t, env.TempDir)
}

func TestFloatAssertions(t *testing.T) {
	AssertFloatEquals(t, 1.0, 1.0+1e-12, 1e-9)
	AssertFloatEquals(t, math.NaN(), math.NaN(), 0)
	AssertFloatEquals(t, math.Inf(1), math.Inf(1), 0)
	AssertFloatSliceEquals(t, []float64{1, 2}, []float64{1, 2 + 1e-10}, 1e-9)
}

func TestAssertFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte{1}, 0o644))
	AssertFileExists(t, path)
}
