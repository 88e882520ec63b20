// Package storage builds the optional run sinks (epoch reporters, the
// results ledger and the artifact store) from the experiment configuration.
package storage

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/storage/implementations/influxdb"
	"github.com/inferloop/tsforecast/internal/storage/implementations/ledger"
	redisstore "github.com/inferloop/tsforecast/internal/storage/implementations/redis"
	"github.com/inferloop/tsforecast/internal/storage/implementations/s3"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Factory connects the backends a configuration enables
type Factory struct {
	logger *logrus.Logger
}

// NewFactory creates a new storage factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Factory{logger: logger}
}

// Reporters connects every enabled epoch sink. On error the sinks already
// connected are closed.
func (f *Factory) Reporters(ctx context.Context, cfg *config.Config) ([]interfaces.EpochReporter, error) {
	var reporters []interfaces.EpochReporter
	fail := func(err error) ([]interfaces.EpochReporter, error) {
		for _, r := range reporters {
			r.Close()
		}
		return nil, err
	}

	if cfg.InfluxDB.Enabled {
		r, err := influxdb.NewInfluxDBReporter(&influxdb.InfluxDBConfig{
			URL:          cfg.InfluxDB.URL,
			Token:        cfg.InfluxDB.Token,
			Organization: cfg.InfluxDB.Organization,
			Bucket:       cfg.InfluxDB.Bucket,
			Measurement:  cfg.InfluxDB.Measurement,
			Timeout:      cfg.InfluxDB.Timeout,
		}, f.logger)
		if err != nil {
			return fail(err)
		}
		if err := r.Connect(ctx); err != nil {
			return fail(err)
		}
		reporters = append(reporters, r)
	}

	if cfg.Redis.Enabled {
		r, err := redisstore.NewRedisReporter(&redisstore.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			StreamMaxLen: cfg.Redis.MaxLen,
		}, f.logger)
		if err != nil {
			return fail(err)
		}
		if err := r.Connect(ctx); err != nil {
			return fail(err)
		}
		reporters = append(reporters, r)
	}

	return reporters, nil
}

// Ledger connects the results ledger, or returns nil when it is disabled
func (f *Factory) Ledger(ctx context.Context, cfg *config.Config) (interfaces.ResultLedger, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}

	l, err := ledger.NewSQLLedger(&ledger.LedgerConfig{
		Driver: cfg.Ledger.Driver,
		DSN:    cfg.Ledger.DSN,
		Table:  cfg.Ledger.Table,
	}, f.logger)
	if err != nil {
		return nil, err
	}
	if err := l.Connect(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// ArtifactStore connects the S3 artifact store, or returns nil when it is disabled
func (f *Factory) ArtifactStore(ctx context.Context, cfg *config.Config) (interfaces.ArtifactStore, error) {
	if !cfg.S3.Enabled {
		return nil, nil
	}

	store, err := s3.NewS3ArtifactStore(&s3.S3Config{
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		Prefix:         cfg.S3.Prefix,
		Endpoint:       cfg.S3.Endpoint,
		ForcePathStyle: cfg.S3.ForcePathStyle,
		MaxRetries:     3,
	}, f.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
