package experiment

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tsforecast/internal/checkpoint"
	"github.com/inferloop/tsforecast/internal/metric"
	"github.com/inferloop/tsforecast/internal/results"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// TestReport is the outcome of one evaluation pass
type TestReport struct {
	Setting             string
	Split               string
	Metrics             metric.Result
	DirectionalAccuracy float64
	// Shape is (sequences, pred_len, scored channels)
	Shape       []int
	MetricsPath string
	ArrayPaths  []string
}

// Samples returns the number of evaluated sequences
func (r *TestReport) Samples() int {
	if len(r.Shape) == 0 {
		return 0
	}
	return r.Shape[0]
}

func (e *Experiment) forward(batch *interfaces.Batch) (*tensor.Tensor, error) {
	dec, err := DecoderInput(batch.Y, e.cfg.LabelLen, e.cfg.PredLen)
	if err != nil {
		return nil, err
	}
	out, err := e.model.Forward(&interfaces.ForecastInput{
		X:            batch.X,
		XMark:        batch.XMark,
		DecoderInput: dec,
		DecoderMark:  batch.YMark,
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeTraining, errors.CodeForwardFailed, "forward pass failed")
	}
	return out, nil
}

// Vali returns the mean per-batch MSE over loader with the model in
// evaluation mode. Training mode is restored afterwards.
func (e *Experiment) Vali(ctx context.Context, loader interfaces.Loader) (float64, error) {
	e.model.SetTraining(false)
	defer e.model.SetTraining(true)

	h := horizon{predLen: e.cfg.PredLen, features: e.cfg.Features}
	losses := make([]float64, 0, loader.Len())

	err := loader.Iterate(ctx, func(_ int, batch *interfaces.Batch) error {
		out, err := e.forward(batch)
		if err != nil {
			return err
		}
		pred, err := h.slice(out)
		if err != nil {
			return err
		}
		truth, err := h.slice(batch.Y)
		if err != nil {
			return err
		}
		loss, err := metric.MSE(pred.Data, truth.Data)
		if err != nil {
			return err
		}
		losses = append(losses, loss)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(losses) == 0 {
		return 0, errors.WrapError(errors.ErrEmptyLoader, errors.ErrorTypeData, errors.CodeEmptyLoader,
			"validation loader yields no batches")
	}
	return stat.Mean(losses, nil), nil
}

// Test loads the best checkpoint of setting, evaluates split and writes
// <results>/<setting>/<split>_metrics.npy, plus pred.npy and true.npy when
// saveVals is set.
func (e *Experiment) Test(ctx context.Context, setting, split string, saveVals bool) (*TestReport, error) {
	_, loader, err := e.provider.Get(split)
	if err != nil {
		return nil, err
	}

	ckptPath := checkpoint.Path(filepath.Join(e.cfg.Checkpoints, setting))
	e.logger.WithField("path", ckptPath).Info("Loading model")
	if err := checkpoint.Load(e.model, ckptPath); err != nil {
		return nil, err
	}

	e.model.SetTraining(false)
	defer e.model.SetTraining(true)

	h := horizon{predLen: e.cfg.PredLen, features: e.cfg.Features}
	var preds, trues []*tensor.Tensor

	err = loader.Iterate(ctx, func(_ int, batch *interfaces.Batch) error {
		out, err := e.forward(batch)
		if err != nil {
			return err
		}
		pred, err := h.slice(out)
		if err != nil {
			return err
		}
		truth, err := h.slice(batch.Y)
		if err != nil {
			return err
		}
		preds = append(preds, pred)
		trues = append(trues, truth)
		return nil
	})
	if err != nil {
		return nil, err
	}

	pred, err := tensor.ConcatBatch(preds)
	if err != nil {
		return nil, err
	}
	truth, err := tensor.ConcatBatch(trues)
	if err != nil {
		return nil, err
	}
	if pred.Batch == 0 {
		return nil, errors.WrapError(errors.ErrEmptyLoader, errors.ErrorTypeData, errors.CodeEmptyLoader,
			fmt.Sprintf("%s loader yields no batches", split))
	}
	if !pred.SameShape(truth) {
		return nil, errors.NewShapeError(fmt.Sprintf("predictions %v do not match ground truth %v", pred.Shape(), truth.Shape()))
	}

	e.logger.WithFields(logrus.Fields{
		"shape": pred.Shape(),
		"pred":  head(pred.Data, e.cfg.PredLen*pred.Channels),
		"true":  head(truth.Data, e.cfg.PredLen*truth.Channels),
	}).Debug("First test sequence")

	res, err := metric.Compute(pred.Data, truth.Data)
	if err != nil {
		return nil, err
	}
	directional, err := metric.DirectionalAccuracy(pred.Data, truth.Data)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"split":   split,
		"setting": setting,
	}).Infof("mse:%v, mae:%v, mape:%v", res.MSE, res.MAE, res.MAPE)
	e.logger.WithField("split", split).
		Infof("Percentage of Sign Match (%% time directionally correct): %v", directional)

	dir := results.Dir(e.cfg.Results, setting)
	metricsPath, err := results.SaveMetrics(dir, split, res)
	if err != nil {
		return nil, err
	}

	report := &TestReport{
		Setting:             setting,
		Split:               split,
		Metrics:             res,
		DirectionalAccuracy: directional,
		Shape:               pred.Shape(),
		MetricsPath:         metricsPath,
	}

	if saveVals {
		paths, err := results.SaveArrays(dir, pred.Shape(), pred.Data, truth.Data)
		if err != nil {
			return nil, err
		}
		report.ArrayPaths = paths
	}

	if e.telemetry != nil {
		e.telemetry.RecordEvaluation(setting, split, res, directional)
	}
	e.record(ctx, report)
	e.syncArtifacts(ctx, constants.ResultsArtifact, setting, dir)

	return report, nil
}

// record appends report to the ledger; failures are only logged
func (e *Experiment) record(ctx context.Context, report *TestReport) {
	if e.ledger == nil {
		return
	}
	entry := &interfaces.ResultEntry{
		RunID:               e.runID,
		Setting:             report.Setting,
		Split:               report.Split,
		Model:               e.model.Name(),
		MAE:                 report.Metrics.MAE,
		MSE:                 report.Metrics.MSE,
		RMSE:                report.Metrics.RMSE,
		MAPE:                report.Metrics.MAPE,
		MSPE:                report.Metrics.MSPE,
		DirectionalAccuracy: report.DirectionalAccuracy,
		Samples:             report.Samples(),
		CreatedAt:           time.Now().UTC(),
	}
	if err := e.ledger.Record(ctx, entry); err != nil {
		e.logger.WithError(err).Warn("Failed to record result")
	}
}

func (e *Experiment) syncArtifacts(ctx context.Context, kind, setting, dir string) {
	if e.artifacts == nil {
		return
	}
	uris, err := e.artifacts.SyncDir(ctx, kind, setting, dir)
	if err != nil {
		e.logger.WithError(err).WithField("kind", kind).Warn("Failed to sync artifacts")
		return
	}
	e.logger.WithFields(logrus.Fields{"kind": kind, "files": len(uris)}).Debug("Artifacts synced")
}

func head(v []float64, n int) []float64 {
	if len(v) < n {
		return v
	}
	return v[:n]
}
