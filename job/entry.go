// Package job holds the pieces of the surrounding job system that sinks read:
// job entries and the working directories artifacts are written under.
package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidReference = errors.New("invalid reference id")

// Entry is one unit of work. Ref doubles as the artifact's file name.
type Entry struct {
	Ref string
}

// NewEntry returns an entry with a freshly generated reference id.
func NewEntry() Entry {
	return Entry{Ref: uuid.NewString()}
}

func (e Entry) ReferenceID() string {
	return e.Ref
}

// ValidateReference rejects ids that cannot be used as a single file name.
func ValidateReference(ref string) error {
	switch {
	case strings.TrimSpace(ref) == "":
		return fmt.Errorf("%w: empty", ErrInvalidReference)
	case ref == "." || ref == "..":
		return fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	case strings.ContainsAny(ref, `/\`) || strings.ContainsRune(ref, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidReference, ref)
	}
	return nil
}

// WorkingDirectories is the directory set a job system provisions.
type WorkingDirectories struct {
	Root string
}

// Reports is the directory report artifacts are written to.
func (w WorkingDirectories) Reports() string {
	return filepath.Join(w.Root, "reports")
}

func (w WorkingDirectories) EnsureReports() error {
	return os.MkdirAll(w.Reports(), 0755)
}
