package local

import (
	"context"

	"github.com/reillywatson/reportsink/sink"
)

// Storage is a sink with a lifecycle, as driven by the job process.
type Storage interface {
	sink.Sink
	Kind() string
	Start(ctx context.Context) error
	Close() error
	Summary() string
}
