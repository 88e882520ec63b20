package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// S3Config holds configuration for artifact upload
type S3Config struct {
	Region          string        `json:"region"`
	Bucket          string        `json:"bucket"`
	AccessKeyID     string        `json:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty"`
	Endpoint        string        `json:"endpoint,omitempty"`
	ForcePathStyle  bool          `json:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl"`
	Prefix          string        `json:"prefix"`
	Timeout         time.Duration `json:"timeout"`
	MaxRetries      int           `json:"max_retries"`
	PartSize        int64         `json:"part_size"`
	StorageClass    string        `json:"storage_class"`
}

// S3ArtifactStore uploads checkpoint and result directories to a bucket
type S3ArtifactStore struct {
	config   *S3Config
	s3Client *s3.S3
	uploader *s3manager.Uploader
	logger   *logrus.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewS3ArtifactStore creates a new S3 artifact store instance
func NewS3ArtifactStore(config *S3Config, logger *logrus.Logger) (*S3ArtifactStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}

	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &S3ArtifactStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect creates the AWS session and checks that the bucket is reachable
func (s *S3ArtifactStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}

	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}

	// S3-compatible services
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}

	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapStorageError(err, "connect", "s3")
	}

	client := s3.New(sess)
	uploader := s3manager.NewUploaderWithClient(client)
	if s.config.PartSize > 0 {
		uploader.PartSize = s.config.PartSize
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		return errors.WrapStorageError(err, "connect", "s3").
			WithTarget(s.config.Bucket)
	}

	s.s3Client = client
	s.uploader = uploader
	s.closed = false

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
	}).Info("Connected to S3")

	return nil
}

// Close releases the session
func (s *S3ArtifactStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.s3Client = nil
	s.uploader = nil
	s.closed = true

	s.logger.Debug("S3 connection closed")
	return nil
}

// Ping tests the S3 connection
func (s *S3ArtifactStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.s3Client == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "S3 not connected")
	}

	if _, err := s.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		return errors.WrapStorageError(err, "ping", "s3").WithTarget(s.config.Bucket)
	}

	return nil
}

// SyncDir uploads the regular files directly under dir to
// <prefix>/<kind>/<setting>/<file> and returns their s3:// URIs in name order.
func (s *S3ArtifactStore) SyncDir(ctx context.Context, kind, setting, dir string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.uploader == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "S3 not connected")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapStorageError(err, "read", "s3").WithTarget(dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	uploaded := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}

		key := s.generateKey(kind, setting, name)
		if err := s.uploadFile(ctx, filepath.Join(dir, name), key); err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, fmt.Sprintf("s3://%s/%s", s.config.Bucket, key))
	}

	s.logger.WithFields(logrus.Fields{
		"bucket":  s.config.Bucket,
		"kind":    kind,
		"setting": setting,
		"files":   len(uploaded),
	}).Info("Synced artifacts to S3")

	return uploaded, nil
}

func (s *S3ArtifactStore) uploadFile(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.WrapStorageError(err, "read", "s3").WithTarget(file)
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(constants.MimeTypeForFile(file)),
		Metadata: map[string]*string{
			"app": aws.String(constants.AppName),
		},
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	start := time.Now()
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return errors.WrapStorageError(err, "upload", "s3").
			WithTarget(key).
			WithDuration(time.Since(start))
	}

	s.logger.WithFields(logrus.Fields{
		"key":      key,
		"duration": time.Since(start),
	}).Debug("Uploaded artifact")

	return nil
}

func (s *S3ArtifactStore) generateKey(kind, setting, name string) string {
	prefix := strings.Trim(s.config.Prefix, "/")
	return path.Join(prefix, kind, setting, name)
}
