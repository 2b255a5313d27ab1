// Package sink defines how a job turns a byte-producing action into a
// finalized, addressable artifact.
package sink

import (
	"context"
	"errors"
	"io"
	"net/url"
)

var ErrNilAction = errors.New("nil output action")

// Action writes a job's result into w. It must not retain w after it returns.
type Action func(w io.Writer) error

// Entry is the part of a job that a sink reads.
type Entry interface {
	ReferenceID() string
}

// Sink runs an action against a freshly opened destination and returns a
// locator to the finalized artifact.
//
// On success the destination has been fully closed. On failure no locator is
// returned and the error is a *Error describing the phase that failed.
type Sink interface {
	ProduceResult(ctx context.Context, entry Entry, action Action) (Locator, error)
}

// Locator is an absolute URI addressing a finalized artifact.
type Locator string

// FileLocator returns the file:// locator for an absolute path.
func FileLocator(absPath string) Locator {
	u := url.URL{Scheme: "file", Path: absPath}
	return Locator(u.String())
}

func (l Locator) String() string {
	return string(l)
}

func (l Locator) URL() (*url.URL, error) {
	return url.Parse(string(l))
}

// Path returns the filesystem path of a file:// locator, or "" for any other
// scheme.
func (l Locator) Path() string {
	u, err := l.URL()
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return u.Path
}
