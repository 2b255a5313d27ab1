package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/count"
)

func NewAmazonS3Client(ctx context.Context) (*s3.Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig), nil
}

// S3API is the subset of *s3.Client used by AmazonS3.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ Storage = &AmazonS3{}

// AmazonS3 publishes artifacts to an Amazon S3 bucket.
type AmazonS3 struct {
	s3Client S3API
	bucket   string
	prefix   string
	logger   *zap.Logger
	count.Count
}

func NewAmazonS3(client S3API, bucketName, prefix string, logger *zap.Logger) *AmazonS3 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AmazonS3{
		s3Client: client,
		bucket:   bucketName,
		prefix:   prefix,
		logger:   logger,
	}
}

func (a *AmazonS3) Kind() string {
	return "s3"
}

func (a *AmazonS3) key(ref string) string {
	return objectKey(a.prefix, ref)
}

func (a *AmazonS3) locator(ref string) sink.Locator {
	u := url.URL{Scheme: "s3", Host: a.bucket, Path: "/" + a.key(ref)}
	return sink.Locator(u.String())
}

func (a *AmazonS3) Start(context.Context) error {
	a.logger.Debug("configured", zap.String("kind", a.Kind()), zap.String("bucket", a.bucket), zap.String("prefix", a.prefix))
	return nil
}

func (a *AmazonS3) Put(ctx context.Context, ref string, size int64, body io.Reader) (sink.Locator, error) {
	key := a.key(ref)
	var optFns []func(*s3.Options)
	if _, ok := body.(io.Seeker); !ok {
		optFns = append(optFns, func(options *s3.Options) {
			options.RetryMaxAttempts = 1 // We cannot perform seek in Body
		})
	}
	if _, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			referenceIDMetadataKey: ref,
		},
	}, optFns...); err != nil {
		a.Count.PublishErrors.Add(1)
		return "", fmt.Errorf("[%s] put failed for %s/%s (size: %d): %w", a.Kind(), a.bucket, key, size, err)
	}

	a.Count.Produced.Add(1)
	a.Count.Bytes.Add(size)
	a.logger.Debug("put success", zap.String("kind", a.Kind()), zap.String("bucket", a.bucket), zap.String("key", key), zap.Int64("size", size))
	return a.locator(ref), nil
}

func (a *AmazonS3) Stat(ctx context.Context, ref string) (int64, error) {
	key := a.key(ref)
	out, err := a.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if isNotFoundError(err) {
		return 0, fmt.Errorf("[%s] stat %s/%s: %w", a.Kind(), a.bucket, key, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("[%s] stat %s/%s: %w", a.Kind(), a.bucket, key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (a *AmazonS3) Close() error {
	return nil
}

func (a *AmazonS3) Summary() string {
	return a.Count.Summary(a.Kind())
}

func isNotFoundError(err error) bool {
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			code := ae.ErrorCode()
			return code == "NotFound" || code == "NoSuchKey"
		}
	}
	return false
}
