package interfaces

import (
	"context"
	"time"
)

// Storage defines the lifecycle shared by every backend
type Storage interface {
	// Connect establishes connection to the storage backend
	Connect(ctx context.Context) error

	// Close closes the connection and cleans up resources
	Close() error

	// Ping tests the connection
	Ping(ctx context.Context) error
}

// EpochReport summarises one finished training epoch
type EpochReport struct {
	RunID            string             `json:"run_id" msgpack:"run_id"`
	Setting          string             `json:"setting" msgpack:"setting"`
	Epoch            int                `json:"epoch" msgpack:"epoch"`
	TrainLoss        float64            `json:"train_loss" msgpack:"train_loss"`
	ValiLoss         float64            `json:"vali_loss" msgpack:"vali_loss"`
	TestLoss         float64            `json:"test_loss" msgpack:"test_loss"`
	LearningRates    map[string]float64 `json:"learning_rates" msgpack:"learning_rates"`
	EarlyStopCounter int                `json:"early_stop_counter" msgpack:"early_stop_counter"`
	Improved         bool               `json:"improved" msgpack:"improved"`
	Duration         time.Duration      `json:"duration" msgpack:"duration"`
	Timestamp        time.Time          `json:"timestamp" msgpack:"timestamp"`
}

// EpochReporter receives a report after every epoch
type EpochReporter interface {
	ReportEpoch(ctx context.Context, report *EpochReport) error
	Close() error
}

// ResultEntry is one row of the results ledger
type ResultEntry struct {
	ID                  string    `json:"id" yaml:"id"`
	RunID               string    `json:"run_id" yaml:"run_id"`
	Setting             string    `json:"setting" yaml:"setting"`
	Split               string    `json:"split" yaml:"split"`
	Model               string    `json:"model" yaml:"model"`
	MAE                 float64   `json:"mae" yaml:"mae"`
	MSE                 float64   `json:"mse" yaml:"mse"`
	RMSE                float64   `json:"rmse" yaml:"rmse"`
	MAPE                float64   `json:"mape" yaml:"mape"`
	MSPE                float64   `json:"mspe" yaml:"mspe"`
	DirectionalAccuracy float64   `json:"directional_accuracy" yaml:"directional_accuracy"`
	Samples             int       `json:"samples" yaml:"samples"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
}

// ResultLedger persists evaluation results across runs
type ResultLedger interface {
	Record(ctx context.Context, entry *ResultEntry) error
	// List returns entries for setting, or every entry when setting is empty, newest first
	List(ctx context.Context, setting string) ([]*ResultEntry, error)
	Close() error
}

// ArtifactStore copies run artifacts to remote storage
type ArtifactStore interface {
	// SyncDir uploads every regular file in dir and returns the remote locations
	SyncDir(ctx context.Context, kind, setting, dir string) ([]string, error)
	Close() error
}
