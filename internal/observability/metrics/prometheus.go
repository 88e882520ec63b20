package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/metric"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// TrainingMetrics exposes training progress as Prometheus collectors. It also
// satisfies interfaces.EpochReporter so it can sit in a reporter fan-out.
type TrainingMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	loss               *prometheus.GaugeVec
	learningRate       *prometheus.GaugeVec
	epoch              *prometheus.GaugeVec
	earlyStopCounter   *prometheus.GaugeVec
	optimizerSteps     *prometheus.CounterVec
	batchDuration      *prometheus.HistogramVec
	evaluation         *prometheus.GaugeVec
	checkpointsWritten *prometheus.CounterVec
}

// NewTrainingMetrics creates the collectors on a private registry
func NewTrainingMetrics(namespace string, logger *logrus.Logger) (*TrainingMetrics, error) {
	if namespace == "" {
		namespace = constants.DefaultMetricsNamespace
	}
	if logger == nil {
		logger = logrus.New()
	}

	tm := &TrainingMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	tm.initializeMetrics(namespace)

	if err := tm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return tm, nil
}

func (tm *TrainingMetrics) initializeMetrics(namespace string) {
	tm.loss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "loss",
			Help:      "Average loss of the last finished epoch",
		},
		[]string{"setting", "split"},
	)

	tm.learningRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "learning_rate",
			Help:      "Current learning rate per optimizer group",
		},
		[]string{"setting", "group"},
	)

	tm.epoch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "epoch",
			Help:      "Last finished epoch (1-based)",
		},
		[]string{"setting"},
	)

	tm.earlyStopCounter = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "early_stopping_counter",
			Help:      "Consecutive epochs without validation improvement",
		},
		[]string{"setting"},
	)

	tm.optimizerSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "optimizer_steps_total",
			Help:      "Total number of optimizer steps",
		},
		[]string{"setting"},
	)

	tm.batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one training batch",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"setting"},
	)

	tm.evaluation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "metric",
			Help:      "Test metrics of the best checkpoint",
		},
		[]string{"setting", "split", "metric"},
	)

	tm.checkpointsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "checkpoints_written_total",
			Help:      "Checkpoints written on validation improvement",
		},
		[]string{"setting"},
	)
}

func (tm *TrainingMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		tm.loss,
		tm.learningRate,
		tm.epoch,
		tm.earlyStopCounter,
		tm.optimizerSteps,
		tm.batchDuration,
		tm.evaluation,
		tm.checkpointsWritten,
	}
	for _, c := range collectors {
		if err := tm.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the registry holding every collector
func (tm *TrainingMetrics) Registry() *prometheus.Registry {
	return tm.registry
}

// Handler serves the registry in the Prometheus exposition format
func (tm *TrainingMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(tm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveBatch records one optimizer step and its duration
func (tm *TrainingMetrics) ObserveBatch(setting string, duration time.Duration) {
	tm.optimizerSteps.WithLabelValues(setting).Inc()
	tm.batchDuration.WithLabelValues(setting).Observe(duration.Seconds())
}

// ReportEpoch updates the per-epoch gauges
func (tm *TrainingMetrics) ReportEpoch(_ context.Context, report *interfaces.EpochReport) error {
	tm.loss.WithLabelValues(report.Setting, constants.SplitTrain).Set(report.TrainLoss)
	tm.loss.WithLabelValues(report.Setting, constants.SplitVal).Set(report.ValiLoss)
	tm.loss.WithLabelValues(report.Setting, constants.SplitTest).Set(report.TestLoss)
	for group, lr := range report.LearningRates {
		tm.learningRate.WithLabelValues(report.Setting, group).Set(lr)
	}
	tm.epoch.WithLabelValues(report.Setting).Set(float64(report.Epoch))
	tm.earlyStopCounter.WithLabelValues(report.Setting).Set(float64(report.EarlyStopCounter))
	if report.Improved {
		tm.checkpointsWritten.WithLabelValues(report.Setting).Inc()
	}
	return nil
}

// RecordEvaluation publishes the metrics of a test pass
func (tm *TrainingMetrics) RecordEvaluation(setting, split string, r metric.Result, directional float64) {
	for i, v := range r.Vector() {
		tm.evaluation.WithLabelValues(setting, split, metric.Names[i]).Set(v)
	}
	tm.evaluation.WithLabelValues(setting, split, "directional_accuracy").Set(directional)
}

// Close is a no-op; collectors live as long as the registry
func (tm *TrainingMetrics) Close() error {
	return nil
}
