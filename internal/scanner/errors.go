package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kinds of recoverable per-file faults.
const (
	KindPermission    = "permission"
	KindBrokenSymlink = "broken-symlink"
	KindPathTooLong   = "path-too-long"
	KindLocked        = "locked"
	KindNotFound      = "not-found"
	KindIO            = "io"
)

// FileError is a per-file fault. The scanner skips the file, counts the
// error and carries on.
type FileError struct {
	Path string
	Op   string
	Kind string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func newFileError(path, op string, err error) *FileError {
	return &FileError{Path: path, Op: op, Kind: classify(err), Err: err}
}

// classify maps an OS error onto one of the Kind constants.
func classify(err error) string {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, syscall.ENAMETOOLONG):
		return KindPathTooLong
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY), errors.Is(err, syscall.EAGAIN):
		return KindLocked
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	default:
		return KindIO
	}
}
