package redis

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// RedisConfig holds configuration for the Redis epoch stream
type RedisConfig struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	PoolSize     int           `json:"pool_size"`
	MaxRetries   int           `json:"max_retries"`
	KeyPrefix    string        `json:"key_prefix"`
	StreamMaxLen int64         `json:"stream_max_len"`
}

// RedisReporter appends one stream entry per finished epoch
type RedisReporter struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisReporter creates a new Redis reporter instance
func NewRedisReporter(config *RedisConfig, logger *logrus.Logger) (*RedisReporter, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}

	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = constants.AppName
	}
	if config.StreamMaxLen <= 0 {
		config.StreamMaxLen = constants.DefaultStreamMaxLen
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &RedisReporter{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to Redis
func (r *RedisReporter) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         r.config.Addr,
		Password:     r.config.Password,
		DB:           r.config.DB,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
		PoolSize:     r.config.PoolSize,
		MaxRetries:   r.config.MaxRetries,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapStorageError(err, "connect", "redis").WithTarget(r.config.Addr)
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr":   r.config.Addr,
		"db":     r.config.DB,
		"stream": r.streamKey(),
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection
func (r *RedisReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true
	if err != nil {
		return errors.WrapStorageError(err, "close", "redis")
	}

	r.logger.Debug("Redis connection closed")
	return nil
}

// Ping tests the Redis connection
func (r *RedisReporter) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.client == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Redis not connected")
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.WrapStorageError(err, "ping", "redis")
	}
	return nil
}

// ReportEpoch appends report to the epoch stream, trimming it to roughly StreamMaxLen
func (r *RedisReporter) ReportEpoch(ctx context.Context, report *interfaces.EpochReport) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.client == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Redis not connected")
	}

	values, err := epochFields(report)
	if err != nil {
		return errors.WrapStorageError(err, "write", "redis").WithTarget(r.streamKey())
	}

	start := time.Now()
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamKey(),
		MaxLen: r.config.StreamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return errors.WrapStorageError(err, "write", "redis").
			WithTarget(r.streamKey()).
			WithDuration(time.Since(start))
	}

	r.logger.WithFields(logrus.Fields{
		"stream": r.streamKey(),
		"id":     id,
		"epoch":  report.Epoch,
	}).Debug("Epoch appended to stream")

	return nil
}

func (r *RedisReporter) streamKey() string {
	return r.config.KeyPrefix + ":epochs"
}

// epochFields flattens report into stream values. The full report also
// travels msgpack-encoded under "payload" for consumers that want it whole.
func epochFields(report *interfaces.EpochReport) (map[string]interface{}, error) {
	payload, err := msgpack.Marshal(report)
	if err != nil {
		return nil, err
	}

	values := map[string]interface{}{
		"run_id":             report.RunID,
		"setting":            report.Setting,
		"epoch":              strconv.Itoa(report.Epoch),
		"train_loss":         formatFloat(report.TrainLoss),
		"vali_loss":          formatFloat(report.ValiLoss),
		"test_loss":          formatFloat(report.TestLoss),
		"early_stop_counter": strconv.Itoa(report.EarlyStopCounter),
		"improved":           strconv.FormatBool(report.Improved),
		"duration_ms":        strconv.FormatInt(report.Duration.Milliseconds(), 10),
		"payload":            payload,
	}
	for group, lr := range report.LearningRates {
		values["lr_"+strings.ToLower(group)] = formatFloat(lr)
	}
	return values, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
