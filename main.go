package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/job"
	"github.com/reillywatson/reportsink/server"
	"github.com/reillywatson/reportsink/storage"
)

var (
	workDir    = flag.String("dir", "", "working directory; artifacts are written to <dir>/reports")
	s3Bucket   = flag.String("s3-bucket", "", "Amazon S3 bucket name")
	gcsBucket  = flag.String("gcs-bucket", "", "Google Cloud Storage bucket name")
	prefix     = flag.String("prefix", "reports", "remote object key prefix")
	bufferSize = flag.Int("buffer-size", 64*1024, "write buffer size in bytes")
	createDir  = flag.Bool("create-dir", false, "create the reports directory if missing")
	verbose    = flag.Bool("verbose", false, "print detail log")
)

func defaultWorkDir() string {
	d, err := os.UserCacheDir()
	if err != nil {
		log.Fatal(err)
	}

	return filepath.Join(d, "reportsink")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func main() {
	flag.Parse()
	if *workDir == "" {
		*workDir = defaultWorkDir()
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinkStorage, err := storage.New(ctx, storage.Config{
		Dirs:       job.WorkingDirectories{Root: *workDir},
		S3Bucket:   *s3Bucket,
		GCSBucket:  *gcsBucket,
		Prefix:     *prefix,
		BufferSize: *bufferSize,
		CreateDir:  *createDir,
	}, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	process := server.NewProcess(sinkStorage, os.Stdin, os.Stdout, logger)
	if err := process.Run(ctx); err != nil {
		logger.Fatal("process failed", zap.Error(err))
	}

	logger.Info(sinkStorage.Summary())
}
