package local

import (
	"bytes"
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/reillywatson/reportsink/job"
	"github.com/reillywatson/reportsink/sink"
	"github.com/reillywatson/reportsink/storage/count"
)

var _ Storage = &Memory{}

// Memory keeps finalized artifacts in process memory, keyed by reference id.
// An artifact only becomes visible once its destination has been closed.
type Memory struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
	logger    *zap.Logger
	count.Count
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		artifacts: make(map[string][]byte),
		logger:    logger,
	}
}

func (m *Memory) Kind() string {
	return "memory"
}

func (m *Memory) Start(context.Context) error {
	return nil
}

func (m *Memory) ProduceResult(_ context.Context, entry sink.Entry, action sink.Action) (_ sink.Locator, retErr error) {
	ref := entry.ReferenceID()
	defer func() {
		if retErr != nil {
			m.Count.Failed(retErr)
			m.logger.Warn("produce failed", zap.String("kind", m.Kind()), zap.String("ref", ref), zap.Error(retErr))
		}
	}()
	if action == nil {
		return "", &sink.Error{Phase: sink.PhaseSetup, Ref: ref, Err: sink.ErrNilAction}
	}
	if err := job.ValidateReference(ref); err != nil {
		return "", &sink.Error{Phase: sink.PhaseSetup, Ref: ref, Err: err}
	}

	dst := &memoryDestination{}
	bw := newBufferedWriter(dst, defaultBufferSize)
	if err := runAction(m.logger, ref, dst, bw, action); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.artifacts[ref] = dst.buf.Bytes()
	m.mu.Unlock()

	m.Count.Produced.Add(1)
	m.Count.Bytes.Add(bw.written)
	return MemoryLocator(ref), nil
}

// Bytes returns the artifact produced for ref.
func (m *Memory) Bytes(ref string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.artifacts[ref]
	return b, ok
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Summary() string {
	return m.Count.Summary(m.Kind())
}

func MemoryLocator(ref string) sink.Locator {
	u := url.URL{Scheme: "mem", Host: "artifacts", Path: "/" + ref}
	return sink.Locator(u.String())
}

type memoryDestination struct {
	buf bytes.Buffer
}

func (d *memoryDestination) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

func (d *memoryDestination) Close() error {
	return nil
}
