// Package results lays out and persists the evaluation artifacts of a run:
// the metric vector and the optional prediction and ground-truth dumps.
package results

import (
	"os"
	"path/filepath"

	"github.com/inferloop/tsforecast/internal/metric"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Dir returns <root>/<setting>
func Dir(root, setting string) string {
	return filepath.Join(root, setting)
}

// MetricsPath returns <dir>/<split>_metrics.npy
func MetricsPath(dir, split string) string {
	return filepath.Join(dir, split+constants.MetricsFileSuffix)
}

// PredictionsPath returns <dir>/pred.npy
func PredictionsPath(dir string) string {
	return filepath.Join(dir, constants.PredictionsFile)
}

// GroundTruthPath returns <dir>/true.npy
func GroundTruthPath(dir string) string {
	return filepath.Join(dir, constants.GroundTruthFile)
}

// EnsureDir creates dir if needed
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeWriteFailed, "failed to create results directory "+dir)
	}
	return nil
}

// SaveMetrics writes the 5-element metric vector of split into dir
func SaveMetrics(dir, split string, r metric.Result) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	path := MetricsPath(dir, split)
	v := r.Vector()
	if err := SaveNPY(path, []int{len(v)}, v); err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeWriteFailed, "failed to write "+path)
	}
	return path, nil
}

// LoadMetrics reads a vector written by SaveMetrics
func LoadMetrics(dir, split string) (metric.Result, error) {
	path := MetricsPath(dir, split)
	_, v, err := LoadNPY(path)
	if err != nil {
		return metric.Result{}, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeReadFailed, "failed to read "+path)
	}
	return metric.FromVector(v)
}

// SaveArrays writes pred.npy and true.npy, each shaped (sequences, horizon, channels)
func SaveArrays(dir string, shape []int, pred, truth []float64) ([]string, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	paths := []string{PredictionsPath(dir), GroundTruthPath(dir)}
	for i, data := range [][]float64{pred, truth} {
		if err := SaveNPY(paths[i], shape, data); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeWriteFailed, "failed to write "+paths[i])
		}
	}
	return paths, nil
}
