package originfs

import (
	"fmt"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/originfs/originfs/internal/pfs"
)

type ErrorCode string

const (
	ErrCodeIsDirectory    ErrorCode = "E_ISDIR"
	ErrCodeNotDirectory   ErrorCode = "E_NOTDIR"
	ErrCodeDiskSpace      ErrorCode = "E_NODISK"
	ErrCodeUnknownArchive ErrorCode = "E_UNKNFMT"
	ErrCodeInvalidName    ErrorCode = "E_BADNAME"
	ErrCodePathResolution ErrorCode = "E_BADPATH"
	ErrCodeDenylistFile   ErrorCode = "E_DENIED"
	ErrCodeNotAllowed     ErrorCode = "E_NOPERM"
	ErrCodeLocked         ErrorCode = "E_LOCKED"
	ErrCodeUnknownError   ErrorCode = "E_UNKNOWN"
)

type Error struct {
	code ErrorCode
	// path is the entry path as the caller provided it.
	path string
	// resolved is the path the sandbox actually resolved it to, if
	// resolution got that far.
	resolved string
	err      error
}

var _ error = (*Error)(nil)

// newStoreError returns a new error with the given code and wrapped
// cause (which may be nil).
func newStoreError(code ErrorCode, err error, path string) *Error {
	return &Error{code: code, err: err, path: path}
}

// NewBadPathResolutionError returns a new path resolution error for a
// requested path and the location it improperly resolved to.
func NewBadPathResolutionError(path string, resolved string) *Error {
	return &Error{code: ErrCodePathResolution, path: path, resolved: resolved}
}

func (e *Error) Code() ErrorCode {
	return e.code
}

func (e *Error) Path() string {
	return e.path
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Error() string {
	switch e.code {
	case ErrCodeIsDirectory:
		return fmt.Sprintf("originfs: is a directory: %s", e.path)
	case ErrCodeNotDirectory:
		return fmt.Sprintf("originfs: not a directory: %s", e.path)
	case ErrCodeDiskSpace:
		return "originfs: not enough storage space available"
	case ErrCodeUnknownArchive:
		return "originfs: unknown archive format"
	case ErrCodeInvalidName:
		return fmt.Sprintf("originfs: invalid entry name: %q", e.path)
	case ErrCodeDenylistFile:
		return fmt.Sprintf("originfs: filesystem: file access prohibited: %s", e.path)
	case ErrCodeNotAllowed:
		return fmt.Sprintf("originfs: permission not granted: %s", e.path)
	case ErrCodeLocked:
		return fmt.Sprintf("originfs: entry is locked by an open access handle: %s", e.path)
	case ErrCodePathResolution:
		r := e.resolved
		if r == "" {
			r = "<empty>"
		}
		return fmt.Sprintf("originfs: server path resolves to a location outside the origin root: %s -> %s", e.path, r)
	}
	return fmt.Sprintf("originfs: filesystem error: %s", e.code)
}

// IsErrorCode checks if err is an *Error carrying the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var fserr *Error
	if errors.As(err, &fserr) {
		return fserr.code == code
	}
	return false
}

// IsBadPathResolution reports whether err is a sandbox escape error
// from either the facade or the private filesystem layer.
func IsBadPathResolution(err error) bool {
	return IsErrorCode(err, ErrCodePathResolution) || errors.Is(err, pfs.ErrBadPathResolution)
}

// wrapError wraps err as a store error with the path attached, unless
// it already is one, or is nil.
func wrapError(err error, path string) error {
	if err == nil || IsErrorCode(err, ErrCodeUnknownError) {
		return err
	}
	var fserr *Error
	if errors.As(err, &fserr) {
		return err
	}
	return &Error{code: ErrCodeUnknownError, path: path, err: err}
}

// error returns a logger entry with the store's context fields filled
// in.
func (s *Store) error(err error) *log.Entry {
	return log.WithField("subsystem", "originfs").WithField("root", s.fs.Root()).WithError(err)
}

// handleWalkError is used when walking the origin tree to compute
// usage: entries that fail path resolution are skipped rather than
// aborting the walk. Skipping only applies to directories; for files
// the entry is simply ignored.
func (s *Store) handleWalkError(err error, d pfs.DirEntry) error {
	if !IsBadPathResolution(err) {
		return err
	}
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}
