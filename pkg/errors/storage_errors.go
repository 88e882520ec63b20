package errors

import (
	"fmt"
	"time"
)

// StorageError represents a storage-specific error with additional context
type StorageError struct {
	*AppError
	StorageType string        `json:"storage_type,omitempty"` // "influxdb", "redis", "s3", "sqlite", "postgres"
	Target      string        `json:"target,omitempty"`       // bucket, stream, table
	Operation   string        `json:"operation,omitempty"`    // "write", "read", "upload", "record"
	Duration    time.Duration `json:"duration,omitempty"`
}

// Unwrap exposes the embedded AppError so errors.Is reaches its cause
func (se *StorageError) Unwrap() error {
	return se.AppError
}

// WrapStorageError wraps err with the backend and operation that produced it.
// The result matches ErrStorageWriteFailed or ErrStorageReadFailed depending
// on the operation, as well as err itself.
func WrapStorageError(err error, operation, storageType string) *StorageError {
	if err == nil {
		return nil
	}

	code, sentinel := CodeWriteFailed, ErrStorageWriteFailed
	switch operation {
	case "read", "list", "query":
		code, sentinel = CodeReadFailed, ErrStorageReadFailed
	case "connect", "ping":
		code, sentinel = CodeConnectionFailed, ErrStorageConnectionFailed
	}

	return &StorageError{
		AppError: WrapError(
			fmt.Errorf("%w: %w", sentinel, err),
			ErrorTypeStorage,
			code,
			fmt.Sprintf("%s %s failed", storageType, operation),
		),
		StorageType: storageType,
		Operation:   operation,
	}
}

// WithTarget records the bucket, stream or table involved
func (se *StorageError) WithTarget(target string) *StorageError {
	se.Target = target
	return se
}

// WithDuration records how long the failed operation ran
func (se *StorageError) WithDuration(d time.Duration) *StorageError {
	se.Duration = d
	return se
}
