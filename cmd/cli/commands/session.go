package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/experiment"
	"github.com/inferloop/tsforecast/internal/logging"
	"github.com/inferloop/tsforecast/internal/observability/health"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/server"
	"github.com/inferloop/tsforecast/internal/storage"
	"github.com/inferloop/tsforecast/internal/storage/implementations/influxdb"
	"github.com/inferloop/tsforecast/internal/storage/implementations/ledger"
	redisstore "github.com/inferloop/tsforecast/internal/storage/implementations/redis"
	"github.com/inferloop/tsforecast/internal/storage/implementations/s3"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// flagKeys maps flags whose name differs from their configuration key
var flagKeys = map[string]string{
	"telemetry_addr": "telemetry.addr",
	"log_format":     "logging.format",
	"log_output":     "logging.output",
}

// loadConfig resolves defaults, the --config file, the environment and the
// flags of cmd that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "verbose", "help", "setting", "split", "iteration", "format", "limit", "json":
			return
		}
		key := f.Name
		if k, ok := flagKeys[f.Name]; ok {
			key = k
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		v.Set("logging.level", "debug")
	}

	return config.Load(v, cfgFile)
}

// addExperimentFlags registers the flags shared by train and test
func addExperimentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("model", "", "model name (ETSformer, Identity)")
	f.String("model_id", "", "model id used in the setting name")
	f.String("features", "", "forecasting task: M, S or MS")
	f.String("freq", "", "time feature frequency: h, t or d")
	f.Int("seq_len", 0, "input sequence length")
	f.Int("label_len", 0, "start token length")
	f.Int("pred_len", 0, "prediction sequence length")
	f.Int("enc_in", 0, "number of channels of the synthetic series")
	f.Int("rows", 0, "rows of the synthetic series")
	f.Int("batch_size", 0, "batch size")
	f.String("des", "", "experiment description")
	f.String("checkpoints", "", "checkpoint root directory")
	f.String("results", "", "results root directory")
	f.Bool("save_vals", false, "write pred.npy and true.npy for the test split")
	f.String("log_format", "", "log format: text or json")
	f.String("log_output", "", "log sink: stderr, stdout or a file path")
}

// session holds the process-wide collaborators of a command
type session struct {
	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
	runID     string

	telemetry *metrics.TrainingMetrics
	server    *server.Server
	health    *health.HealthMonitor
	reporters []interfaces.EpochReporter
	ledger    interfaces.ResultLedger
	artifacts interfaces.ArtifactStore
}

// newSession builds the logger and connects every enabled backend. The
// telemetry endpoint is started when telemetry.addr is set.
func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	rt := &session{
		cfg:       cfg,
		logger:    logger,
		logCloser: closer,
		runID:     uuid.New().String(),
	}

	factory := storage.NewFactory(logger)

	if rt.reporters, err = factory.Reporters(ctx, cfg); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to connect epoch reporters: %w", err)
	}
	if rt.ledger, err = factory.Ledger(ctx, cfg); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to connect results ledger: %w", err)
	}
	if rt.artifacts, err = factory.ArtifactStore(ctx, cfg); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to connect artifact store: %w", err)
	}

	if cfg.Telemetry.Addr != "" {
		rt.health = health.NewHealthMonitor(2*time.Second, logger)
		for _, r := range rt.reporters {
			rt.health.RegisterPinger(backendName(r), false, r)
		}
		rt.health.RegisterPinger(backendName(rt.ledger), false, rt.ledger)
		rt.health.RegisterPinger(backendName(rt.artifacts), false, rt.artifacts)

		if rt.telemetry, err = metrics.NewTrainingMetrics(cfg.Telemetry.Namespace, logger); err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.server = server.NewServer(&server.Config{Addr: cfg.Telemetry.Addr}, rt.telemetry.Handler(), rt.status, logger)
		if err := rt.server.Start(); err != nil {
			rt.server = nil
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to start telemetry server: %w", err)
		}
	}

	return rt, nil
}

func (rt *session) status() map[string]interface{} {
	fields := map[string]interface{}{
		"run_id": rt.runID,
		"model":  rt.cfg.Model,
	}
	if rt.health != nil && len(rt.health.Names()) > 0 {
		st := rt.health.Run(context.Background())
		fields["status"] = st.OverallStatus
		fields["backends"] = st.CheckResults
	}
	return fields
}

func backendName(backend interface{}) string {
	switch backend.(type) {
	case *influxdb.InfluxDBReporter:
		return "influxdb"
	case *redisstore.RedisReporter:
		return "redis"
	case *ledger.SQLLedger:
		return "ledger"
	case *s3.S3ArtifactStore:
		return "s3"
	}
	return fmt.Sprintf("%T", backend)
}

// options wires the session into an experiment for iteration ii
func (rt *session) options(ii int) []experiment.Option {
	opts := []experiment.Option{
		experiment.WithLogger(rt.logger),
		experiment.WithRunID(rt.runID),
		experiment.WithIteration(ii),
		experiment.WithReporters(rt.reporters...),
	}
	if rt.telemetry != nil {
		opts = append(opts, experiment.WithTelemetry(rt.telemetry))
	}
	if rt.ledger != nil {
		opts = append(opts, experiment.WithLedger(rt.ledger))
	}
	if rt.artifacts != nil {
		opts = append(opts, experiment.WithArtifactStore(rt.artifacts))
	}
	return opts
}

// Close releases everything newSession opened. Errors are logged.
func (rt *session) Close(ctx context.Context) {
	if rt.server != nil {
		if err := rt.server.Stop(ctx); err != nil {
			rt.logger.WithError(err).Warn("Failed to stop telemetry server")
		}
	}
	for _, r := range rt.reporters {
		if err := r.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close epoch reporter")
		}
	}
	if rt.ledger != nil {
		if err := rt.ledger.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close results ledger")
		}
	}
	if rt.artifacts != nil {
		if err := rt.artifacts.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close artifact store")
		}
	}
	if rt.logCloser != nil {
		rt.logCloser.Close()
	}
}
