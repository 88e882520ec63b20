package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevelAndFallsBack(t *testing.T) {
	logger, closer, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger, _, err = New(Options{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	logger, closer, err := New(Options{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.WithField("epoch", 3).Info("Epoch finished")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "Epoch finished", entry["msg"])
	assert.Equal(t, float64(3), entry["epoch"])
}

func TestNewFailsOnUnwritableFile(t *testing.T) {
	_, _, err := New(Options{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.Equal(t, logrus.PanicLevel, Discard().GetLevel())
}
