// Package metric computes forecast error statistics over flattened
// prediction and ground-truth arrays.
package metric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tsforecast/pkg/errors"
)

// Names lists the metrics in the order Vector returns them
var Names = []string{"mae", "mse", "rmse", "mape", "mspe"}

// Result holds the five scalar error statistics
type Result struct {
	MAE  float64 `json:"mae" yaml:"mae"`
	MSE  float64 `json:"mse" yaml:"mse"`
	RMSE float64 `json:"rmse" yaml:"rmse"`
	MAPE float64 `json:"mape" yaml:"mape"`
	MSPE float64 `json:"mspe" yaml:"mspe"`
}

// Vector returns (MAE, MSE, RMSE, MAPE, MSPE)
func (r Result) Vector() []float64 {
	return []float64{r.MAE, r.MSE, r.RMSE, r.MAPE, r.MSPE}
}

// FromVector is the inverse of Vector
func FromVector(v []float64) (Result, error) {
	if len(v) != len(Names) {
		return Result{}, errors.NewShapeError(fmt.Sprintf("metric vector has %d values, want %d", len(v), len(Names)))
	}
	return Result{MAE: v[0], MSE: v[1], RMSE: v[2], MAPE: v[3], MSPE: v[4]}, nil
}

func (r Result) String() string {
	return fmt.Sprintf("mse:%v, mae:%v, rmse:%v, mape:%v, mspe:%v", r.MSE, r.MAE, r.RMSE, r.MAPE, r.MSPE)
}

// Compute returns the error statistics of pred against truth. Relative
// errors divide by the target as is: zero targets yield Inf or NaN.
func Compute(pred, truth []float64) (Result, error) {
	if err := checkLengths(pred, truth); err != nil {
		return Result{}, err
	}

	n := len(pred)
	diff := make([]float64, n)
	floats.SubTo(diff, pred, truth)

	abs := make([]float64, n)
	sq := make([]float64, n)
	relAbs := make([]float64, n)
	relSq := make([]float64, n)
	for i, d := range diff {
		abs[i] = math.Abs(d)
		sq[i] = d * d
		rel := d / truth[i]
		relAbs[i] = math.Abs(rel)
		relSq[i] = rel * rel
	}

	mse := stat.Mean(sq, nil)
	return Result{
		MAE:  stat.Mean(abs, nil),
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		MAPE: stat.Mean(relAbs, nil),
		MSPE: stat.Mean(relSq, nil),
	}, nil
}

// MSE returns the mean squared error only
func MSE(pred, truth []float64) (float64, error) {
	if err := checkLengths(pred, truth); err != nil {
		return 0, err
	}
	d := make([]float64, len(pred))
	floats.SubTo(d, pred, truth)
	return floats.Dot(d, d) / float64(len(d)), nil
}

// DirectionalAccuracy is the fraction of positions where prediction and
// target fall on the same side of zero. Zero counts as non-negative.
func DirectionalAccuracy(pred, truth []float64) (float64, error) {
	if err := checkLengths(pred, truth); err != nil {
		return 0, err
	}
	match := 0
	for i := range pred {
		if (truth[i] >= 0 && pred[i] >= 0) || (truth[i] < 0 && pred[i] < 0) {
			match++
		}
	}
	return float64(match) / float64(len(pred)), nil
}

func checkLengths(pred, truth []float64) error {
	if len(pred) != len(truth) {
		return errors.NewShapeError(fmt.Sprintf("prediction length %d does not match ground truth length %d", len(pred), len(truth)))
	}
	if len(pred) == 0 {
		return errors.NewDataError(errors.CodeInsufficientData, "cannot compute metrics over empty arrays")
	}
	return nil
}
