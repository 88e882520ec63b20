package config

import (
	"fmt"
	"strings"

	"github.com/inferloop/tsforecast/internal/model"
	"github.com/inferloop/tsforecast/internal/schedule"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	ve := errors.NewValidationErrors()

	if !model.Known(c.Model) {
		ve.AddCause("model", errors.CodeUnknownValue,
			fmt.Sprintf("must be one of %s", strings.Join(model.Names(), ", ")), c.Model, errors.ErrUnknownModel)
	}

	switch c.Features {
	case constants.FeaturesMultivariate, constants.FeaturesUnivariate, constants.FeaturesMultiToSingle:
	default:
		ve.AddCause("features", errors.CodeUnknownValue, "must be one of M, S, MS", c.Features, errors.ErrUnknownFeatureMode)
	}

	if !knownMode(c.LRAdjust) {
		ve.AddCause("lradj", errors.CodeUnknownValue,
			fmt.Sprintf("must be one of %s", strings.Join(schedule.Modes(), ", ")), c.LRAdjust, errors.ErrUnknownSchedule)
	} else if c.LearningRate > 0 {
		if _, err := schedule.New(c.LRAdjust, c.ScheduleOptions()); err != nil {
			ve.AddCause("lradj", errors.CodeOutOfRange, err.Error(), c.LRAdjust, err)
		}
	}

	positive := []struct {
		field string
		value int
	}{
		{"seq_len", c.SeqLen},
		{"pred_len", c.PredLen},
		{"enc_in", c.EncIn},
		{"train_epochs", c.TrainEpochs},
		{"batch_size", c.BatchSize},
		{"patience", c.Patience},
		{"itr", c.Iterations},
		{"log_every", c.LogEvery},
	}
	for _, p := range positive {
		if p.value <= 0 {
			ve.Add(p.field, errors.CodeOutOfRange, "must be positive", p.value)
		}
	}

	if c.LabelLen < 0 || c.LabelLen > c.SeqLen {
		ve.Add("label_len", errors.CodeOutOfRange, "must lie in [0, seq_len]", c.LabelLen)
	}
	if c.LearningRate <= 0 {
		ve.Add("learning_rate", errors.CodeOutOfRange, "must be positive", c.LearningRate)
	}
	if c.SmoothingLearningRate < 0 {
		ve.Add("smoothing_learning_rate", errors.CodeOutOfRange, "must not be negative", c.SmoothingLearningRate)
	}
	if c.DampingLearningRate < 0 {
		ve.Add("damping_learning_rate", errors.CodeOutOfRange, "must not be negative", c.DampingLearningRate)
	}
	if c.MinLR < 0 {
		ve.Add("min_lr", errors.CodeOutOfRange, "must not be negative", c.MinLR)
	}
	if c.GradClip <= 0 {
		ve.Add("grad_clip", errors.CodeOutOfRange, "must be positive", c.GradClip)
	}
	if c.Delta < 0 {
		ve.Add("delta", errors.CodeOutOfRange, "must not be negative", c.Delta)
	}
	if c.Checkpoints == "" {
		ve.Add("checkpoints", errors.CodeMissingField, "is required", c.Checkpoints)
	}
	if c.Results == "" {
		ve.Add("results", errors.CodeMissingField, "is required", c.Results)
	}

	if c.Ledger.Enabled && c.Ledger.Driver != "sqlite" && c.Ledger.Driver != "postgres" {
		ve.Add("ledger.driver", errors.CodeUnknownValue, "must be sqlite or postgres", c.Ledger.Driver)
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		ve.Add("s3.bucket", errors.CodeMissingField, "is required when s3 is enabled", c.S3.Bucket)
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func knownMode(mode string) bool {
	for _, m := range schedule.Modes() {
		if m == strings.ToLower(mode) {
			return true
		}
	}
	return false
}
