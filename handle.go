package originfs

import (
	"path"

	"emperror.dev/errors"
	"golang.org/x/sys/unix"

	"github.com/originfs/originfs/internal/pfs"
)

// HandleKind discriminates between the two entry handle types.
type HandleKind string

const (
	KindFile      HandleKind = "file"
	KindDirectory HandleKind = "directory"
)

// Handle is the surface shared by File and Directory.
type Handle interface {
	// Name returns the entry name, the final path element. The root
	// directory has an empty name.
	Name() string
	// Kind reports whether the handle refers to a file or a directory.
	Kind() HandleKind
	// Path returns the root-relative path of the entry.
	Path() string
	// IsSameEntry reports whether both handles refer to the same
	// underlying entry on disk.
	IsSameEntry(other Handle) (bool, error)
	// QueryPermission returns the current permission state for the
	// entry without prompting.
	QueryPermission(mode PermissionMode) PermissionState
	// RequestPermission asks for an explicit permission decision.
	RequestPermission(mode PermissionMode) PermissionState
}

// handle carries the store reference and root-relative path shared by
// both handle kinds. A path of "." refers to the origin root.
type handle struct {
	store *Store
	path  string
}

func (h *handle) Name() string {
	if h.path == "." {
		return ""
	}
	return path.Base(h.path)
}

func (h *handle) Path() string {
	return h.path
}

func (h *handle) QueryPermission(mode PermissionMode) PermissionState {
	return h.store.perms.Query(h.path, mode)
}

func (h *handle) RequestPermission(mode PermissionMode) PermissionState {
	return h.store.perms.Request(h.path, mode)
}

// entryID identifies an entry by device and inode number, which
// survives renames but not delete/recreate cycles.
type entryID struct {
	dev uint64
	ino uint64
}

func (h *handle) entryID() (entryID, error) {
	st, err := h.store.fs.Lstat(h.path)
	if err != nil {
		return entryID{}, err
	}
	sys, ok := st.Sys().(*unix.Stat_t)
	if !ok {
		return entryID{}, errors.New("originfs: stat did not return a unix stat structure")
	}
	return entryID{dev: uint64(sys.Dev), ino: sys.Ino}, nil
}

// innerHandle unwraps the embedded handle of a File or Directory.
// Foreign Handle implementations yield nil.
func innerHandle(other Handle) *handle {
	switch t := other.(type) {
	case *File:
		return &t.handle
	case *Directory:
		return &t.handle
	}
	return nil
}

func (h *handle) isSameEntry(kind HandleKind, other Handle) (bool, error) {
	if other == nil || other.Kind() != kind {
		return false, nil
	}
	oh := innerHandle(other)
	if oh == nil || oh.store != h.store {
		return false, nil
	}

	a, errA := h.entryID()
	b, errB := oh.entryID()
	if errA != nil || errB != nil {
		// When neither entry exists anymore fall back to comparing the
		// paths the handles were created with.
		if errors.Is(errA, pfs.ErrNotExist) && errors.Is(errB, pfs.ErrNotExist) {
			return h.path == oh.path, nil
		}
		if errA != nil {
			return false, wrapError(errA, h.path)
		}
		return false, wrapError(errB, oh.path)
	}
	return a == b, nil
}
