package data

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler types
const (
	ScalerZScore = "zscore"
	ScalerMinMax = "minmax"
)

// DataScaler normalizes every column of a row-major table independently
type DataScaler struct {
	scalerType string
	min        []float64
	max        []float64
	mean       []float64
	stddev     []float64
	fitted     bool
}

// NewDataScaler creates a new data scaler
func NewDataScaler(scalerType string) *DataScaler {
	return &DataScaler{scalerType: scalerType}
}

// Fit calculates per-column scaling parameters from rows
func (ds *DataScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return fmt.Errorf("cannot fit scaler on empty data")
	}

	cols := len(rows[0])
	column := make([]float64, len(rows))

	switch ds.scalerType {
	case ScalerMinMax:
		ds.min = make([]float64, cols)
		ds.max = make([]float64, cols)
		for c := 0; c < cols; c++ {
			ds.min[c], ds.max[c] = rows[0][c], rows[0][c]
			for _, row := range rows {
				ds.min[c] = math.Min(ds.min[c], row[c])
				ds.max[c] = math.Max(ds.max[c], row[c])
			}
			if ds.max[c] == ds.min[c] {
				ds.max[c] = ds.min[c] + 1e-8
			}
		}

	case ScalerZScore:
		ds.mean = make([]float64, cols)
		ds.stddev = make([]float64, cols)
		for c := 0; c < cols; c++ {
			for i, row := range rows {
				column[i] = row[c]
			}
			// population deviation, matching sklearn's StandardScaler
			mean, std := stat.PopMeanStdDev(column, nil)
			if std == 0 {
				std = 1e-8
			}
			ds.mean[c], ds.stddev[c] = mean, std
		}

	default:
		return fmt.Errorf("unknown scaler type: %s", ds.scalerType)
	}

	ds.fitted = true
	return nil
}

// Transform returns scaled copies of rows
func (ds *DataScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(row))
		for c, v := range row {
			out[i][c] = ds.scale(c, v)
		}
	}
	return out
}

// InverseTransform reverses the scaling of a flat slice whose values cycle
// through the fitted columns in order
func (ds *DataScaler) InverseTransform(values []float64) []float64 {
	out := make([]float64, len(values))
	if !ds.fitted {
		copy(out, values)
		return out
	}
	cols := ds.columns()
	for i, v := range values {
		c := i % cols
		switch ds.scalerType {
		case ScalerMinMax:
			out[i] = v*(ds.max[c]-ds.min[c]) + ds.min[c]
		default:
			out[i] = v*ds.stddev[c] + ds.mean[c]
		}
	}
	return out
}

func (ds *DataScaler) scale(c int, v float64) float64 {
	if !ds.fitted {
		return v
	}
	switch ds.scalerType {
	case ScalerMinMax:
		return (v - ds.min[c]) / (ds.max[c] - ds.min[c])
	default:
		return (v - ds.mean[c]) / ds.stddev[c]
	}
}

func (ds *DataScaler) columns() int {
	if ds.scalerType == ScalerMinMax {
		return len(ds.min)
	}
	return len(ds.mean)
}

// IsFitted returns whether the scaler has been fitted
func (ds *DataScaler) IsFitted() bool {
	return ds.fitted
}

// GetParameters returns the per-column scaling parameters
func (ds *DataScaler) GetParameters() map[string][]float64 {
	switch ds.scalerType {
	case ScalerMinMax:
		return map[string][]float64{"min": ds.min, "max": ds.max}
	default:
		return map[string][]float64{"mean": ds.mean, "stddev": ds.stddev}
	}
}
