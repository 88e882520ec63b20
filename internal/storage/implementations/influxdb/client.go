package influxdb

import (
	"context"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// InfluxDBConfig contains configuration for the InfluxDB epoch sink
type InfluxDBConfig struct {
	URL          string        `json:"url" yaml:"url"`
	Token        string        `json:"token" yaml:"token"`
	Organization string        `json:"organization" yaml:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket"`
	Measurement  string        `json:"measurement" yaml:"measurement"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	UseGZip      bool          `json:"use_gzip" yaml:"use_gzip"`
}

// InfluxDBReporter writes one point per finished epoch
type InfluxDBReporter struct {
	config    *InfluxDBConfig
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	logger    *logrus.Logger
	mu        sync.Mutex
	connected bool
}

// NewInfluxDBReporter creates a new InfluxDB reporter instance
func NewInfluxDBReporter(config *InfluxDBConfig, logger *logrus.Logger) (*InfluxDBReporter, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB config cannot be nil")
	}

	if config.URL == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB URL is required")
	}

	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	if config.Timeout == 0 {
		config.Timeout = constants.DefaultStorageTimeout
	}
	if config.Measurement == "" {
		config.Measurement = constants.DefaultMeasurement
	}

	return &InfluxDBReporter{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to InfluxDB
func (s *InfluxDBReporter) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetUseGZip(s.config.UseGZip)
	options.SetPrecision(time.Millisecond)
	options.SetHTTPRequestTimeout(uint(s.config.Timeout.Seconds()))

	client := influxdb2.NewClientWithOptions(s.config.URL, s.config.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return errors.WrapStorageError(err, "connect", "influxdb").WithTarget(s.config.URL)
	}
	if !ok {
		client.Close()
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}

	s.client = client
	s.writeAPI = client.WriteAPIBlocking(s.config.Organization, s.config.Bucket)
	s.connected = true

	s.logger.WithFields(logrus.Fields{
		"url":          s.config.URL,
		"organization": s.config.Organization,
		"bucket":       s.config.Bucket,
	}).Info("Connected to InfluxDB")

	return nil
}

// Close closes the connection to InfluxDB
func (s *InfluxDBReporter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.client.Close()
	s.client = nil
	s.writeAPI = nil
	s.connected = false

	s.logger.Debug("Disconnected from InfluxDB")
	return nil
}

// Ping tests the InfluxDB connection
func (s *InfluxDBReporter) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Not connected to InfluxDB")
	}

	ok, err := s.client.Ping(ctx)
	if err != nil {
		return errors.WrapStorageError(err, "ping", "influxdb")
	}
	if !ok {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}
	return nil
}

// ReportEpoch writes report as a single point and waits for the server to accept it
func (s *InfluxDBReporter) ReportEpoch(ctx context.Context, report *interfaces.EpochReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Not connected to InfluxDB")
	}

	start := time.Now()
	if err := s.writeAPI.WritePoint(ctx, epochPoint(s.config.Measurement, report)); err != nil {
		return errors.WrapStorageError(err, "write", "influxdb").
			WithTarget(s.config.Bucket).
			WithDuration(time.Since(start))
	}

	s.logger.WithFields(logrus.Fields{
		"setting": report.Setting,
		"epoch":   report.Epoch,
	}).Debug("Wrote epoch to InfluxDB")

	return nil
}

func epochPoint(measurement string, report *interfaces.EpochReport) *write.Point {
	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("run_id", report.RunID).
		AddTag("setting", report.Setting).
		AddField("epoch", report.Epoch).
		AddField("train_loss", report.TrainLoss).
		AddField("vali_loss", report.ValiLoss).
		AddField("test_loss", report.TestLoss).
		AddField("early_stop_counter", report.EarlyStopCounter).
		AddField("improved", report.Improved).
		AddField("duration_seconds", report.Duration.Seconds()).
		SetTime(ts)

	for group, lr := range report.LearningRates {
		p.AddField("lr_"+strings.ToLower(group), lr)
	}
	return p
}
