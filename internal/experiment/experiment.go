// Package experiment drives training, validation and testing of a
// forecaster: it owns the optimizer, the early-stopping monitor, the
// learning-rate schedule and the persistence of results.
package experiment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/data"
	"github.com/inferloop/tsforecast/internal/model"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/storage"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// Experiment is one configured model plus the collaborators it reports to
type Experiment struct {
	cfg      *config.Config
	model    interfaces.Forecaster
	provider interfaces.DataProvider
	logger   *logrus.Logger
	runID    string
	seedBump int64

	telemetry *metrics.TrainingMetrics
	reporter  *storage.MultiReporter
	sinks     []interfaces.EpochReporter
	ledger    interfaces.ResultLedger
	artifacts interfaces.ArtifactStore
}

// Option customises an Experiment
type Option func(*Experiment)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Experiment) { e.logger = logger }
}

// WithProvider replaces the synthetic data provider
func WithProvider(p interfaces.DataProvider) Option {
	return func(e *Experiment) { e.provider = p }
}

// WithTelemetry publishes progress to Prometheus collectors
func WithTelemetry(tm *metrics.TrainingMetrics) Option {
	return func(e *Experiment) { e.telemetry = tm }
}

// WithReporters adds epoch sinks. They remain owned by the caller, which
// closes them once every experiment sharing them is done.
func WithReporters(reporters ...interfaces.EpochReporter) Option {
	return func(e *Experiment) { e.sinks = append(e.sinks, reporters...) }
}

// WithLedger records every test pass
func WithLedger(l interfaces.ResultLedger) Option {
	return func(e *Experiment) { e.ledger = l }
}

// WithArtifactStore uploads checkpoints and results after each pass
func WithArtifactStore(s interfaces.ArtifactStore) Option {
	return func(e *Experiment) { e.artifacts = s }
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(e *Experiment) { e.runID = id }
}

// WithIteration shifts the model initialisation seed so repeated
// iterations over the same data start from different weights
func WithIteration(ii int) Option {
	return func(e *Experiment) { e.seedBump = int64(ii) }
}

// New validates cfg, builds the data provider (unless one is supplied) and
// the model. Unknown model, feature mode or schedule names fail here.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if cfg == nil {
		return nil, fmt.Errorf("experiment config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Experiment{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logrus.New()
	}
	if e.runID == "" {
		e.runID = uuid.New().String()
	}

	if e.provider == nil {
		p, err := syntheticProvider(cfg, e.logger)
		if err != nil {
			return nil, err
		}
		e.provider = p
	}

	channels, err := e.channels()
	if err != nil {
		return nil, err
	}

	m, err := model.New(cfg.Model, model.Options{
		SeqLen:   cfg.SeqLen,
		LabelLen: cfg.LabelLen,
		PredLen:  cfg.PredLen,
		Channels: channels,
		Seed:     cfg.Seed + e.seedBump,
	})
	if err != nil {
		return nil, err
	}
	e.model = m

	sinks := append([]interfaces.EpochReporter(nil), e.sinks...)
	if e.telemetry != nil {
		sinks = append(sinks, e.telemetry)
	}
	e.reporter = storage.NewMultiReporter(e.logger, sinks...)

	e.logger.WithFields(logrus.Fields{
		"model":    m.Name(),
		"channels": channels,
		"params":   len(m.Parameters()),
		"run_id":   e.runID,
	}).Info("Experiment ready")

	return e, nil
}

// Model returns the forecaster being trained
func (e *Experiment) Model() interfaces.Forecaster {
	return e.model
}

// RunID identifies this process's run in reports and ledger rows
func (e *Experiment) RunID() string {
	return e.runID
}

// Config returns the experiment configuration
func (e *Experiment) Config() *config.Config {
	return e.cfg
}

func (e *Experiment) channels() (int, error) {
	ds, _, err := e.provider.Get(constants.SplitTrain)
	if err != nil {
		return 0, err
	}
	return ds.Channels(), nil
}

// groupRates returns the initial learning rate per optimizer group. The nn
// group starts at min_lr under a warmup schedule; smoothing and damping
// default to a hundred times the base rate.
func groupRates(cfg *config.Config) map[tensor.Group]float64 {
	nn := cfg.LearningRate
	if strings.Contains(cfg.LRAdjust, "warmup") {
		nn = cfg.MinLR
	}

	smoothing := cfg.SmoothingLearningRate
	if smoothing <= 0 {
		smoothing = 100 * cfg.LearningRate
	}

	damping := cfg.DampingLearningRate
	if damping <= 0 {
		damping = 100 * cfg.LearningRate
	}

	return map[tensor.Group]float64{
		tensor.GroupNN:        nn,
		tensor.GroupSmoothing: smoothing,
		tensor.GroupDamping:   damping,
	}
}

func syntheticProvider(cfg *config.Config, logger *logrus.Logger) (*data.Provider, error) {
	frame, err := data.Synthetic(data.SyntheticOptions{
		Rows:     cfg.Rows,
		Channels: cfg.EncIn,
		Freq:     cfg.Freq,
		Seed:     cfg.Seed,
		Noise:    cfg.Noise,
	})
	if err != nil {
		return nil, err
	}

	return data.NewProvider(frame, data.Options{
		SeqLen:    cfg.SeqLen,
		LabelLen:  cfg.LabelLen,
		PredLen:   cfg.PredLen,
		Features:  cfg.Features,
		Freq:      cfg.Freq,
		BatchSize: cfg.BatchSize,
		Scale:     cfg.Scale,
		Seed:      cfg.Seed,
	}, logger)
}
