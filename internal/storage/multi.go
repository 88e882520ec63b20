package storage

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// MultiReporter fans an epoch report out to several sinks. A failing sink
// is logged and skipped so that training is never interrupted by telemetry.
type MultiReporter struct {
	reporters []interfaces.EpochReporter
	logger    *logrus.Logger
}

// NewMultiReporter wraps reporters; nil entries are dropped
func NewMultiReporter(logger *logrus.Logger, reporters ...interfaces.EpochReporter) *MultiReporter {
	if logger == nil {
		logger = logrus.New()
	}
	m := &MultiReporter{logger: logger}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

// Len returns the number of wrapped sinks
func (m *MultiReporter) Len() int {
	return len(m.reporters)
}

// ReportEpoch forwards report to every sink and reports how many failed
func (m *MultiReporter) ReportEpoch(ctx context.Context, report *interfaces.EpochReport) error {
	failed := 0
	for _, r := range m.reporters {
		if err := r.ReportEpoch(ctx, report); err != nil {
			failed++
			m.logger.WithError(err).WithField("epoch", report.Epoch).Warn("Failed to report epoch")
		}
	}
	if failed > 0 {
		m.logger.WithField("failed", failed).Debug("Epoch report partially delivered")
	}
	return nil
}

// Close closes every sink and joins their errors
func (m *MultiReporter) Close() error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
