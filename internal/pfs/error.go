package pfs

import (
	"errors"
	iofs "io/fs"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrIsDirectory is returned when a file-only operation is given a
	// path that resolves to a directory.
	ErrIsDirectory = errors.New("is a directory")
	// ErrNotDirectory is returned when a directory-only operation is
	// given a path that resolves to a file.
	ErrNotDirectory = errors.New("not a directory")
	// ErrBadPathResolution is returned when a path resolves to a
	// location outside the origin root.
	ErrBadPathResolution = errors.New("bad path resolution")
	// ErrNotRegular is returned when an operation that requires a
	// regular file is passed something else.
	ErrNotRegular = errors.New("not a regular file")

	ErrClosed     = iofs.ErrClosed
	ErrInvalid    = iofs.ErrInvalid
	ErrExist      = iofs.ErrExist
	ErrNotExist   = iofs.ErrNotExist
	ErrPermission = iofs.ErrPermission
)

// LinkError records an error during a link, symlink, or rename syscall
// and the paths that caused it.
type LinkError = os.LinkError

// PathError records an error and the operation and file path that caused it.
type PathError = iofs.PathError

// convertErrorType rewrites raw errno values into the portable sentinel
// errors above so callers can match on them with errors.Is.
func convertErrorType(err error) error {
	if err == nil {
		return nil
	}
	var pErr *PathError
	if !errors.As(err, &pErr) {
		return err
	}
	wrap := func(sentinel error) error {
		return &PathError{Op: pErr.Op, Path: pErr.Path, Err: sentinel}
	}
	switch {
	case errors.Is(pErr.Err, unix.EEXIST):
		return wrap(ErrExist)
	case errors.Is(pErr.Err, unix.EISDIR):
		return wrap(ErrIsDirectory)
	case errors.Is(pErr.Err, unix.ENOTDIR):
		return wrap(ErrNotDirectory)
	case errors.Is(pErr.Err, unix.ENOENT):
		return wrap(ErrNotExist)
	case errors.Is(pErr.Err, unix.EPERM):
		return wrap(ErrPermission)
	case errors.Is(pErr.Err, unix.EXDEV):
		// Invalid cross-device link, only reachable when a rename tries
		// to cross the sandbox boundary.
		return wrap(ErrBadPathResolution)
	case errors.Is(pErr.Err, unix.ELOOP):
		// Too many levels of symbolic links.
		return wrap(ErrBadPathResolution)
	}
	return err
}
