package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/job"
	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/count"
)

var _ Storage = &Disk{}

// Disk is a sink that writes each job's artifact to a file named by the job's
// reference id inside the reports directory.
type Disk struct {
	dir       string
	fs        afero.Fs
	bufSize   int
	createDir bool
	logger    *zap.Logger
	count.Count
}

type DiskOption func(*Disk)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) DiskOption {
	return func(d *Disk) { d.fs = fs }
}

func WithBufferSize(size int) DiskOption {
	return func(d *Disk) { d.bufSize = size }
}

// WithCreateDir makes Start create the reports directory if it is missing.
func WithCreateDir(create bool) DiskOption {
	return func(d *Disk) { d.createDir = create }
}

func NewDisk(logger *zap.Logger, dir string, opts ...DiskOption) *Disk {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Disk{
		dir:     dir,
		fs:      afero.NewOsFs(),
		bufSize: defaultBufferSize,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Disk) Kind() string {
	return "disk"
}

func (d *Disk) Dir() string {
	return d.dir
}

func (d *Disk) Start(context.Context) error {
	d.logger.Debug("reports directory", zap.String("kind", d.Kind()), zap.String("dir", d.dir))
	if d.createDir {
		return d.fs.MkdirAll(d.dir, 0755)
	}
	fi, err := d.fs.Stat(d.dir)
	if err != nil {
		return fmt.Errorf("[%s] reports directory: %w", d.Kind(), err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("[%s] reports directory %s is not a directory", d.Kind(), d.dir)
	}
	return nil
}

// ProduceResult opens <dir>/<ref> with overwrite semantics, hands a buffered
// writer over it to action, then flushes and closes in that order. The
// locator is only returned once both closes succeeded.
func (d *Disk) ProduceResult(_ context.Context, entry sink.Entry, action sink.Action) (_ sink.Locator, retErr error) {
	ref := entry.ReferenceID()
	defer func() {
		if retErr != nil {
			d.Count.Failed(retErr)
			d.logger.Warn("produce failed", zap.String("kind", d.Kind()), zap.String("ref", ref), zap.Error(retErr))
		}
	}()

	if action == nil {
		return "", &sink.Error{Phase: sink.PhaseSetup, Ref: ref, Err: sink.ErrNilAction}
	}
	if err := job.ValidateReference(ref); err != nil {
		return "", &sink.Error{Phase: sink.PhaseSetup, Ref: ref, Err: err}
	}
	file, err := filepath.Abs(filepath.Join(d.dir, ref))
	if err != nil {
		return "", &sink.Error{Phase: sink.PhaseSetup, Ref: ref, Err: err}
	}

	f, err := d.fs.OpenFile(file, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", &sink.Error{Phase: sink.PhaseSetup, Ref: ref, Err: err}
	}
	bw := newBufferedWriter(f, d.bufSize)
	if err := runAction(d.logger, ref, f, bw, action); err != nil {
		return "", err
	}

	d.Count.Produced.Add(1)
	d.Count.Bytes.Add(bw.written)
	d.logger.Debug("produced", zap.String("ref", ref), zap.String("file", file), zap.Int64("bytes", bw.written))
	return sink.FileLocator(file), nil
}

// runAction invokes action with bw, then closes bw and raw in that order on
// every exit path, including a panicking action.
func runAction(logger *zap.Logger, ref string, raw io.Closer, bw *bufferedWriter, action sink.Action) (err error) {
	var actionErr error
	defer func() {
		closeErr, closeRest := sink.Teardown(bw.Close, raw.Close)
		if closeRest != nil || (actionErr != nil && closeErr != nil) {
			logger.Error("secondary teardown failure", zap.String("ref", ref),
				zap.NamedError("first", closeErr), zap.NamedError("rest", closeRest))
		}
		err = sink.Settle(ref, actionErr, closeErr, closeRest)
	}()
	actionErr = action(bw)
	return nil
}

// open reopens a produced artifact for reading.
func (d *Disk) open(ref string) (afero.File, int64, error) {
	f, err := d.fs.Open(filepath.Join(d.dir, ref))
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !fi.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%s: not a regular file", fi.Name())
	}
	return f, fi.Size(), nil
}

func (d *Disk) Close() error {
	return nil
}

func (d *Disk) Summary() string {
	return d.Count.Summary(d.Kind())
}
