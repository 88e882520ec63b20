package experiment

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tsforecast/internal/checkpoint"
	"github.com/inferloop/tsforecast/internal/earlystop"
	"github.com/inferloop/tsforecast/internal/metric"
	"github.com/inferloop/tsforecast/internal/optim"
	"github.com/inferloop/tsforecast/internal/schedule"
	"github.com/inferloop/tsforecast/internal/visualization"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// TrainSummary describes a finished training run
type TrainSummary struct {
	Setting        string
	CheckpointPath string
	Epochs         int
	EarlyStopped   bool
	BestValiLoss   float64
	History        []visualization.EpochLoss
}

// Train runs the epoch loop for setting and finally reloads the best
// checkpoint into the model.
func (e *Experiment) Train(ctx context.Context, setting string) (*TrainSummary, error) {
	_, trainLoader, err := e.provider.Get(constants.SplitTrain)
	if err != nil {
		return nil, err
	}
	_, valiLoader, err := e.provider.Get(constants.SplitVal)
	if err != nil {
		return nil, err
	}
	_, testLoader, err := e.provider.Get(constants.SplitTest)
	if err != nil {
		return nil, err
	}

	trainSteps := trainLoader.Len()
	if trainSteps == 0 {
		return nil, errors.WrapError(errors.ErrEmptyLoader, errors.ErrorTypeData, errors.CodeEmptyLoader,
			"train loader yields no batches; lower batch_size or add rows")
	}

	dir := filepath.Join(e.cfg.Checkpoints, setting)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeCheckpointWrite,
			"failed to create checkpoint directory "+dir)
	}
	if _, err := e.cfg.WriteArgs(dir); err != nil {
		return nil, err
	}

	groups, err := optim.Partition(e.model.Parameters(), groupRates(e.cfg))
	if err != nil {
		return nil, err
	}
	opt := optim.NewAdam(groups)

	strategy, err := schedule.New(e.cfg.LRAdjust, e.cfg.ScheduleOptions())
	if err != nil {
		return nil, err
	}

	monitor := earlystop.New(e.cfg.Patience, e.cfg.Delta, nil, e.logger)
	h := horizon{predLen: e.cfg.PredLen, features: e.cfg.Features}

	summary := &TrainSummary{
		Setting:        setting,
		CheckpointPath: checkpoint.Path(dir),
	}

	timeNow := time.Now()
	for epoch := 0; epoch < e.cfg.TrainEpochs; epoch++ {
		iterCount := 0
		losses := make([]float64, 0, trainSteps)
		epochStart := time.Now()

		e.model.SetTraining(true)
		err := trainLoader.Iterate(ctx, func(i int, batch *interfaces.Batch) error {
			iterCount++
			batchStart := time.Now()

			opt.ZeroGrad()
			loss, err := e.step(h, batch)
			if err != nil {
				return fmt.Errorf("epoch %d iteration %d: %w", epoch+1, i+1, err)
			}
			losses = append(losses, loss)

			if (i+1)%e.cfg.LogEvery == 0 {
				speed := time.Since(timeNow).Seconds() / float64(iterCount)
				left := speed * float64((e.cfg.TrainEpochs-epoch)*trainSteps-i)
				e.logger.WithFields(logrus.Fields{
					"iters": i + 1,
					"epoch": epoch + 1,
					"loss":  loss,
				}).Infof("speed: %.4fs/iter; left time: %.4fs", speed, left)
				iterCount = 0
				timeNow = time.Now()
			}

			optim.ClipGradNorm(groups, e.cfg.GradClip)
			opt.Step()

			if e.telemetry != nil {
				e.telemetry.ObserveBatch(setting, time.Since(batchStart))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		cost := time.Since(epochStart)
		e.logger.WithField("epoch", epoch+1).Infof("Epoch: %d cost time: %s", epoch+1, cost)

		trainLoss := stat.Mean(losses, nil)
		valiLoss, err := e.Vali(ctx, valiLoader)
		if err != nil {
			return nil, fmt.Errorf("validation after epoch %d: %w", epoch+1, err)
		}
		testLoss, err := e.Vali(ctx, testLoader)
		if err != nil {
			return nil, fmt.Errorf("test loss after epoch %d: %w", epoch+1, err)
		}

		e.logger.WithFields(logrus.Fields{
			"epoch":      epoch + 1,
			"steps":      trainSteps,
			"train_loss": trainLoss,
			"vali_loss":  valiLoss,
			"test_loss":  testLoss,
		}).Infof("Epoch: %d, Steps: %d | Train Loss: %.7f Vali Loss: %.7f Test Loss: %.7f",
			epoch+1, trainSteps, trainLoss, valiLoss, testLoss)

		state, err := monitor.Step(valiLoss, e.model, dir)
		if err != nil {
			return nil, err
		}

		summary.Epochs = epoch + 1
		summary.History = append(summary.History, visualization.EpochLoss{
			Epoch: epoch + 1,
			Train: trainLoss,
			Vali:  valiLoss,
			Test:  testLoss,
		})

		e.reporter.ReportEpoch(ctx, &interfaces.EpochReport{
			RunID:            e.runID,
			Setting:          setting,
			Epoch:            epoch + 1,
			TrainLoss:        trainLoss,
			ValiLoss:         valiLoss,
			TestLoss:         testLoss,
			LearningRates:    opt.LearningRates(),
			EarlyStopCounter: monitor.Counter(),
			Improved:         state == earlystop.Improved,
			Duration:         cost,
			Timestamp:        time.Now().UTC(),
		})

		if monitor.Stopped() {
			e.logger.Info("Early stopping")
			summary.EarlyStopped = true
			break
		}

		schedule.Adjust(strategy, epoch+1, opt, e.logger)
	}

	if best, ok := monitor.Best(); ok {
		summary.BestValiLoss = best
	}

	if e.cfg.Plot && len(summary.History) > 0 {
		path := filepath.Join(dir, constants.LossCurveFile)
		if err := visualization.SaveLossCurve(path, summary.History); err != nil {
			e.logger.WithError(err).Warn("Failed to plot loss curve")
		}
	}

	if err := checkpoint.Load(e.model, summary.CheckpointPath); err != nil {
		return nil, err
	}

	e.syncArtifacts(ctx, constants.CheckpointArtifact, setting, dir)
	return summary, nil
}

// step runs forward and backward for one batch and returns its loss. The
// caller owns zeroing gradients and the optimizer update.
func (e *Experiment) step(h horizon, batch *interfaces.Batch) (float64, error) {
	out, err := e.forward(batch)
	if err != nil {
		return 0, err
	}

	pred, err := h.slice(out)
	if err != nil {
		return 0, err
	}
	truth, err := h.slice(batch.Y)
	if err != nil {
		return 0, err
	}
	if !pred.SameShape(truth) {
		return 0, errors.NewShapeError(fmt.Sprintf("forecast %v does not match target %v", pred.Shape(), truth.Shape()))
	}

	loss, err := metric.MSE(pred.Data, truth.Data)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, errors.WrapError(errors.ErrNonFiniteLoss, errors.ErrorTypeTraining, errors.CodeNonFiniteLoss,
			fmt.Sprintf("training loss is %v", loss))
	}

	grad, err := h.scatter(out, mseGrad(pred, truth))
	if err != nil {
		return 0, err
	}
	if err := e.model.Backward(grad); err != nil {
		return 0, errors.WrapError(err, errors.ErrorTypeTraining, errors.CodeBackwardFailed, "backward pass failed")
	}
	return loss, nil
}
