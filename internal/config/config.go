// Package config resolves the experiment configuration from defaults, an
// optional YAML file, TSFORECAST_* environment variables and CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/tsforecast/internal/logging"
	"github.com/inferloop/tsforecast/internal/schedule"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Config is the full set of experiment arguments
type Config struct {
	ModelID string `mapstructure:"model_id" yaml:"model_id"`
	Model   string `mapstructure:"model" yaml:"model"`
	Data    string `mapstructure:"data" yaml:"data"`

	Features string  `mapstructure:"features" yaml:"features"`
	Freq     string  `mapstructure:"freq" yaml:"freq"`
	SeqLen   int     `mapstructure:"seq_len" yaml:"seq_len"`
	LabelLen int     `mapstructure:"label_len" yaml:"label_len"`
	PredLen  int     `mapstructure:"pred_len" yaml:"pred_len"`
	EncIn    int     `mapstructure:"enc_in" yaml:"enc_in"`
	Rows     int     `mapstructure:"rows" yaml:"rows"`
	Noise    float64 `mapstructure:"noise" yaml:"noise"`
	Scale    bool    `mapstructure:"scale" yaml:"scale"`
	Seed     int64   `mapstructure:"seed" yaml:"seed"`

	TrainEpochs           int     `mapstructure:"train_epochs" yaml:"train_epochs"`
	BatchSize             int     `mapstructure:"batch_size" yaml:"batch_size"`
	Patience              int     `mapstructure:"patience" yaml:"patience"`
	Delta                 float64 `mapstructure:"delta" yaml:"delta"`
	LearningRate          float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	SmoothingLearningRate float64 `mapstructure:"smoothing_learning_rate" yaml:"smoothing_learning_rate"`
	DampingLearningRate   float64 `mapstructure:"damping_learning_rate" yaml:"damping_learning_rate"`
	MinLR                 float64 `mapstructure:"min_lr" yaml:"min_lr"`
	WarmupEpochs          int     `mapstructure:"warmup_epochs" yaml:"warmup_epochs"`
	LRAdjust              string  `mapstructure:"lradj" yaml:"lradj"`
	GradClip              float64 `mapstructure:"grad_clip" yaml:"grad_clip"`
	LogEvery              int     `mapstructure:"log_every" yaml:"log_every"`
	Iterations            int     `mapstructure:"itr" yaml:"itr"`
	Des                   string  `mapstructure:"des" yaml:"des"`

	Checkpoints string `mapstructure:"checkpoints" yaml:"checkpoints"`
	Results     string `mapstructure:"results" yaml:"results"`
	SaveVals    bool   `mapstructure:"save_vals" yaml:"save_vals"`
	Plot        bool   `mapstructure:"plot" yaml:"plot"`

	Logging   logging.Options `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	InfluxDB  InfluxDBConfig  `mapstructure:"influxdb" yaml:"influxdb"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	S3        S3Config        `mapstructure:"s3" yaml:"s3"`
}

// TelemetryConfig controls the prometheus endpoint
type TelemetryConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// InfluxDBConfig configures the epoch sink backed by InfluxDB
type InfluxDBConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	URL          string        `mapstructure:"url" yaml:"url"`
	Token        string        `mapstructure:"token" yaml:"-"`
	Organization string        `mapstructure:"organization" yaml:"organization"`
	Bucket       string        `mapstructure:"bucket" yaml:"bucket"`
	Measurement  string        `mapstructure:"measurement" yaml:"measurement"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RedisConfig configures the epoch sink backed by a Redis stream
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"-"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
	MaxLen    int64  `mapstructure:"max_len" yaml:"max_len"`
}

// LedgerConfig configures the SQL results ledger
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	DSN     string `mapstructure:"dsn" yaml:"-"`
	Table   string `mapstructure:"table" yaml:"table"`
}

// S3Config configures artifact upload
type S3Config struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix"`
	Region         string `mapstructure:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// SetDefaults registers every key with its default value on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model_id", "synthetic_96_24")
	v.SetDefault("model", constants.DefaultModel)
	v.SetDefault("data", "synthetic")
	v.SetDefault("features", constants.FeaturesMultivariate)
	v.SetDefault("freq", constants.DefaultFreq)
	v.SetDefault("seq_len", constants.DefaultSeqLen)
	v.SetDefault("label_len", constants.DefaultLabelLen)
	v.SetDefault("pred_len", constants.DefaultPredLen)
	v.SetDefault("enc_in", 7)
	v.SetDefault("rows", constants.DefaultSyntheticRows)
	v.SetDefault("noise", 0.1)
	v.SetDefault("scale", true)
	v.SetDefault("seed", 2021)

	v.SetDefault("train_epochs", constants.DefaultTrainEpochs)
	v.SetDefault("batch_size", constants.DefaultBatchSize)
	v.SetDefault("patience", constants.DefaultPatience)
	v.SetDefault("delta", 0.0)
	v.SetDefault("learning_rate", constants.DefaultLearningRate)
	v.SetDefault("smoothing_learning_rate", 0.0)
	v.SetDefault("damping_learning_rate", 0.0)
	v.SetDefault("min_lr", constants.DefaultMinLR)
	v.SetDefault("warmup_epochs", constants.DefaultWarmupEpochs)
	v.SetDefault("lradj", constants.DefaultLRAdjust)
	v.SetDefault("grad_clip", constants.DefaultGradClipNorm)
	v.SetDefault("log_every", constants.DefaultLogEvery)
	v.SetDefault("itr", constants.DefaultIterations)
	v.SetDefault("des", constants.DefaultDescription)

	v.SetDefault("checkpoints", constants.DefaultCheckpointDir)
	v.SetDefault("results", constants.DefaultResultsDir)
	v.SetDefault("save_vals", false)
	v.SetDefault("plot", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("telemetry.addr", "")
	v.SetDefault("telemetry.namespace", constants.DefaultMetricsNamespace)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.organization", "tsforecast")
	v.SetDefault("influxdb.bucket", "training")
	v.SetDefault("influxdb.measurement", constants.DefaultMeasurement)
	v.SetDefault("influxdb.timeout", constants.DefaultStorageTimeout)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", constants.AppName)
	v.SetDefault("redis.max_len", constants.DefaultStreamMaxLen)

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", "./results/ledger.db")
	v.SetDefault("ledger.table", constants.DefaultLedgerTable)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", constants.AppName)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.force_path_style", false)
}

// Load resolves the configuration. cfgFile may be empty.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigurationError(nil, fmt.Sprintf("error reading config file %s: %v", cfgFile, err))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigurationError(nil, fmt.Sprintf("error unmarshaling config: %v", err))
	}
	return cfg, nil
}

// ScheduleOptions returns the learning rate schedule parameters
func (c *Config) ScheduleOptions() schedule.Options {
	return schedule.Options{
		BaseLR:       c.LearningRate,
		MinLR:        c.MinLR,
		WarmupEpochs: c.WarmupEpochs,
		TrainEpochs:  c.TrainEpochs,
	}
}

// Setting names one iteration of the experiment. It keys the checkpoint
// and results directories.
func (c *Config) Setting(iteration int) string {
	return fmt.Sprintf("%s_%s_%s_ft%s_sl%d_ll%d_pl%d_lr%s_%s_%d",
		c.ModelID, c.Model, c.Data, c.Features,
		c.SeqLen, c.LabelLen, c.PredLen,
		strconv.FormatFloat(c.LearningRate, 'g', -1, 64),
		c.Des, iteration)
}

// WriteArgs dumps the configuration as YAML into dir. Secrets are omitted.
func (c *Config) WriteArgs(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, constants.ArgsFile)
	return path, os.WriteFile(path, out, 0644)
}

// ReadArgs loads a file written by WriteArgs
func ReadArgs(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.NewConfigurationError(nil, fmt.Sprintf("cannot parse %s: %v", path, err))
	}
	return cfg, nil
}
