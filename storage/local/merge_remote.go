package local

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/remote"
)

// MergeRemote produces each artifact on local disk and then publishes the
// finalized file to a remote store. The remote locator is returned.
type MergeRemote struct {
	localStorage  *Disk
	remoteStorage remote.Storage
	logger        *zap.Logger
}

var _ Storage = &MergeRemote{}

func NewMergeRemote(localStorage *Disk, remoteStorage remote.Storage, logger *zap.Logger) *MergeRemote {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeRemote{
		localStorage:  localStorage,
		remoteStorage: remoteStorage,
		logger:        logger,
	}
}

func (m *MergeRemote) Kind() string {
	return "merge-remote"
}

func (m *MergeRemote) Start(ctx context.Context) error {
	err := m.localStorage.Start(ctx)
	if err != nil {
		_ = m.localStorage.Close()
		return fmt.Errorf("local sink start failed: %w", err)
	}
	err = m.remoteStorage.Start(ctx)
	if err != nil {
		_ = m.remoteStorage.Close()
		return fmt.Errorf("remote store start failed: %w", err)
	}

	return nil
}

// ProduceResult runs action through the local disk sink. Once the local file
// is closed it is uploaded and its remote size checked. A failed publish
// leaves the local artifact in place.
func (m *MergeRemote) ProduceResult(ctx context.Context, entry sink.Entry, action sink.Action) (sink.Locator, error) {
	ref := entry.ReferenceID()
	localLoc, err := m.localStorage.ProduceResult(ctx, entry, action)
	if err != nil {
		return "", err
	}

	loc, err := m.publish(ctx, ref)
	if err != nil {
		m.localStorage.Count.PublishErrors.Add(1)
		m.logger.Warn("publish failed", zap.String("ref", ref), zap.Stringer("local", localLoc), zap.Error(err))
		return "", &sink.Error{Phase: sink.PhasePublish, Ref: ref, Err: err}
	}
	m.logger.Debug("published", zap.String("ref", ref), zap.Stringer("local", localLoc), zap.Stringer("remote", loc))
	return loc, nil
}

func (m *MergeRemote) publish(ctx context.Context, ref string) (_ sink.Locator, retErr error) {
	f, size, err := m.localStorage.open(ref)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := f.Close(); err != nil {
			retErr = errors.Join(retErr, err)
		}
	}()

	loc, err := m.remoteStorage.Put(ctx, ref, size, f)
	if err != nil {
		return "", err
	}
	stored, err := m.remoteStorage.Stat(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("stat after successful put: %w", err)
	}
	if stored != size {
		return "", fmt.Errorf("published with wrong size: remote=%d; local=%d", stored, size)
	}
	return loc, nil
}

func (m *MergeRemote) Close() error {
	var errAll error
	if err := m.localStorage.Close(); err != nil {
		errAll = errors.Join(fmt.Errorf("local sink close failed: %w", err), errAll)
	}
	if err := m.remoteStorage.Close(); err != nil {
		errAll = errors.Join(fmt.Errorf("remote store close failed: %w", err), errAll)
	}

	return errAll
}

func (m *MergeRemote) Summary() string {
	return fmt.Sprintf("\n%s\n%s", m.localStorage.Summary(), m.remoteStorage.Summary())
}
