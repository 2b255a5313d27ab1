package storage

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/job"
	"github.com/reillywatson/reportsink/storage/local"
	"github.com/reillywatson/reportsink/storage/remote"
)

type Config struct {
	Dirs       job.WorkingDirectories
	S3Bucket   string
	GCSBucket  string
	Prefix     string
	BufferSize int
	CreateDir  bool
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Dirs.Root) == "" {
		return errors.New("working directory is required")
	}
	if c.S3Bucket != "" && c.GCSBucket != "" {
		return errors.New("only one of S3 bucket and GCS bucket may be set")
	}
	if c.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// New creates the sink stack for cfg.
//
// Sink options:
// 1. only local disk
// 2. local disk, published to Amazon S3
// 3. local disk, published to Google Cloud Storage
//
// A remote store that cannot be configured falls back to local disk.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (local.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	disk := local.NewDisk(logger, cfg.Dirs.Reports(),
		local.WithBufferSize(cfg.BufferSize),
		local.WithCreateDir(cfg.CreateDir),
	)

	switch {
	case cfg.S3Bucket != "":
		s3Client, err := remote.NewAmazonS3Client(ctx)
		if err != nil {
			logger.Warn("Amazon S3 configuration failed", zap.Error(err))
			return disk, nil
		}

		amazonS3 := remote.NewAmazonS3(s3Client, cfg.S3Bucket, cfg.Prefix, logger)
		return local.NewMergeRemote(disk, amazonS3, logger), nil

	case cfg.GCSBucket != "":
		cloudStorageClient, err := remote.NewGoogleCloudStorageClient(ctx)
		if err != nil {
			logger.Warn("Google Cloud Storage configuration failed", zap.Error(err))
			return disk, nil
		}

		googleCloudStorage := remote.NewGoogleCloudStorage(cloudStorageClient, cfg.GCSBucket, cfg.Prefix, logger)
		return local.NewMergeRemote(disk, googleCloudStorage, logger), nil
	default:
		return disk, nil
	}
}
