package remote

import (
	"context"
	"errors"
	"io"
	"path"

	"github.com/reillywatson/reportsink/sink"
)

const (
	referenceIDMetadataKey = "reference-id"
)

var ErrNotFound = errors.New("artifact not found")

// Storage publishes finalized artifacts to a remote bucket.
type Storage interface {
	Kind() string
	Start(ctx context.Context) error
	Put(ctx context.Context, ref string, size int64, body io.Reader) (sink.Locator, error)
	// Stat returns the stored size of ref, or ErrNotFound.
	Stat(ctx context.Context, ref string) (int64, error)
	Close() error
	Summary() string
}

func objectKey(prefix, ref string) string {
	return path.Join(prefix, ref)
}
