package local

import (
	"bufio"
	"io"
)

const defaultBufferSize = 64 * 1024

// bufferedWriter is the buffering layer placed over a raw destination.
// Closing it flushes buffered bytes but leaves the raw destination open.
type bufferedWriter struct {
	bw      *bufio.Writer
	written int64
	closed  bool
}

func newBufferedWriter(w io.Writer, size int) *bufferedWriter {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &bufferedWriter{bw: bufio.NewWriterSize(w, size)}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := b.bw.Write(p)
	b.written += int64(n)
	return n, err
}

func (b *bufferedWriter) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.bw.Flush()
}
