package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/count"
)

func NewGoogleCloudStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Cloud Storage client: %w", err)
	}
	return client, nil
}

var _ Storage = &GoogleCloudStorage{}

// GoogleCloudStorage publishes artifacts to a Google Cloud Storage bucket.
type GoogleCloudStorage struct {
	client     *storage.Client
	bucketName string
	bucket     *storage.BucketHandle
	prefix     string
	logger     *zap.Logger
	count.Count
}

func NewGoogleCloudStorage(client *storage.Client, bucketName, prefix string, logger *zap.Logger) *GoogleCloudStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleCloudStorage{
		client:     client,
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		prefix:     prefix,
		logger:     logger,
	}
}

func (g *GoogleCloudStorage) objectName(ref string) string {
	return objectKey(g.prefix, ref)
}

func (g *GoogleCloudStorage) locator(ref string) sink.Locator {
	u := url.URL{Scheme: "gs", Host: g.bucketName, Path: "/" + g.objectName(ref)}
	return sink.Locator(u.String())
}

func (g *GoogleCloudStorage) bucketFullPath() string {
	return fmt.Sprintf("gs://%s/%s", g.bucketName, g.prefix)
}

func (g *GoogleCloudStorage) Kind() string {
	return "gcs"
}

func (g *GoogleCloudStorage) Start(ctx context.Context) error {
	g.logger.Debug("start", zap.String("kind", g.Kind()), zap.String("bucket", g.bucketFullPath()))
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("[%s] failed to start %s: %w", g.Kind(), g.bucketFullPath(), err)
	}
	return nil
}

// Put streams body into a new object. The object only exists once the
// writer's Close has succeeded; a failed copy cancels the upload.
func (g *GoogleCloudStorage) Put(ctx context.Context, ref string, size int64, body io.Reader) (sink.Locator, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectName := g.objectName(ref)
	writer := g.bucket.Object(objectName).NewWriter(ctx)
	writer.Metadata = map[string]string{
		referenceIDMetadataKey: ref,
	}

	if _, err := io.Copy(writer, body); err != nil {
		cancel()
		_ = writer.Close()
		g.Count.PublishErrors.Add(1)
		return "", fmt.Errorf("[%s] put failed for %s/%s (size: %d): %w", g.Kind(), g.bucketFullPath(), ref, size, err)
	}
	if err := writer.Close(); err != nil {
		g.Count.PublishErrors.Add(1)
		return "", fmt.Errorf("[%s] put failed for %s/%s (finalize): %w", g.Kind(), g.bucketFullPath(), ref, err)
	}

	g.Count.Produced.Add(1)
	g.Count.Bytes.Add(size)
	g.logger.Debug("put success", zap.String("kind", g.Kind()), zap.String("object", objectName), zap.Int64("size", size))
	return g.locator(ref), nil
}

func (g *GoogleCloudStorage) Stat(ctx context.Context, ref string) (int64, error) {
	attrs, err := g.bucket.Object(g.objectName(ref)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, fmt.Errorf("[%s] stat %s/%s: %w", g.Kind(), g.bucketFullPath(), ref, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("[%s] stat %s/%s: %w", g.Kind(), g.bucketFullPath(), ref, err)
	}
	return attrs.Size, nil
}

func (g *GoogleCloudStorage) Close() error {
	err := g.client.Close()
	if err != nil {
		return fmt.Errorf("[%s] close %s (error: %v)", g.Kind(), g.bucketFullPath(), err)
	}
	g.logger.Debug("close success", zap.String("kind", g.Kind()), zap.String("bucket", g.bucketFullPath()))
	return nil
}

func (g *GoogleCloudStorage) Summary() string {
	return g.Count.Summary(g.Kind())
}
