//go:build unix

package pfs

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// FS is a filesystem rooted at an origin's private directory. Every
// operation is performed relative to the file descriptor of that
// directory, so escaping it through `..` segments or symlinks is not
// possible, even under concurrent modification of the tree.
type FS struct {
	// root is the absolute path of the origin directory. Operations on
	// root itself are rejected, operations on its descendants are
	// allowed.
	root string

	// dirfd holds the descriptor of root. Set to -1 once the
	// filesystem has been closed.
	dirfd atomic.Int64

	// useOpenat2 switches path resolution to the openat2 syscall with
	// RESOLVE_BENEATH, which pushes symlink containment into the
	// kernel. Requires Linux 5.6+.
	useOpenat2 bool
}

// NewFS opens the origin directory at root and returns a sandboxed
// filesystem over it. The directory must already exist.
func NewFS(root string, useOpenat2 bool) (*FS, error) {
	root = strings.TrimSuffix(root, "/")
	dirfd, err := unix.Openat(AT_EMPTY_PATH, root, O_DIRECTORY|O_RDONLY, 0)
	if err != nil {
		return nil, convertErrorType(&PathError{Op: "open", Path: root, Err: err})
	}
	fs := &FS{
		root:       root,
		useOpenat2: useOpenat2,
	}
	fs.dirfd.Store(int64(dirfd))
	return fs, nil
}

// Root returns the absolute path of the origin directory backing this
// filesystem.
func (fs *FS) Root() string {
	return fs.root
}

// Close releases the descriptor of the origin directory. Operations on
// a closed FS fail with ErrClosed.
func (fs *FS) Close() error {
	defer fs.dirfd.Store(-1)
	return unix.Close(int(fs.dirfd.Load()))
}

// Chmod changes the mode of the named file to mode. If the file is a
// symbolic link, it changes the mode of the link's target.
func (fs *FS) Chmod(name string, mode FileMode) error {
	dirfd, name, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return err
	}
	return convertErrorType(unix.Fchmodat(dirfd, name, uint32(mode), 0))
}

// Chtimes changes the access and modification times of the named file.
// A zero time value leaves the corresponding timestamp unchanged.
func (fs *FS) Chtimes(name string, atime, mtime time.Time) error {
	dirfd, name, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return err
	}
	var utimes [2]unix.Timespec
	set := func(i int, t time.Time) {
		if t.IsZero() {
			utimes[i] = unix.Timespec{Sec: unix.UTIME_OMIT, Nsec: unix.UTIME_OMIT}
		} else {
			utimes[i] = unix.NsecToTimespec(t.UnixNano())
		}
	}
	set(0, atime)
	set(1, mtime)
	if err := unix.UtimesNanoAt(dirfd, name, utimes[0:], 0); err != nil {
		return convertErrorType(&PathError{Op: "chtimes", Path: name, Err: err})
	}
	return nil
}

// Create creates or truncates the named file and opens it read-write.
func (fs *FS) Create(name string) (File, error) {
	return fs.OpenFile(name, O_CREATE|O_RDWR|O_TRUNC, 0o644)
}

// Mkdir creates a new directory with the specified name and permission
// bits (before umask).
func (fs *FS) Mkdir(name string, mode FileMode) error {
	dirfd, name, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return err
	}
	return fs.Mkdirat(dirfd, name, mode)
}

// Mkdirat is like Mkdir but relative to an already resolved directory
// descriptor.
func (fs *FS) Mkdirat(dirfd int, name string, mode FileMode) error {
	return convertErrorType(unix.Mkdirat(dirfd, name, uint32(mode)))
}

// MkdirAll creates a directory named path along with any necessary
// parents. If path is already a directory MkdirAll does nothing.
func (fs *FS) MkdirAll(name string, mode FileMode) error {
	name, err := fs.unsafePath(name)
	if err != nil {
		return err
	}
	return fs.mkdirAll(name, mode)
}

// Open opens the named file for reading.
func (fs *FS) Open(name string) (File, error) {
	return fs.OpenFile(name, O_RDONLY, 0)
}

// OpenFile is the generalized open call. If the file does not exist and
// O_CREATE is passed, it is created with mode perm (before umask).
func (fs *FS) OpenFile(name string, flag int, mode FileMode) (File, error) {
	dirfd, base, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return nil, err
	}
	return fs.OpenFileat(dirfd, base, flag, mode)
}

// OpenFileat is like OpenFile but relative to an already resolved
// directory descriptor. The caller owns the returned File and must
// Close it to release the descriptor.
func (fs *FS) OpenFileat(dirfd int, name string, flag int, mode FileMode) (File, error) {
	fd, err := fs.openat(dirfd, name, flag, mode)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

// ReadDir reads the named directory and returns its entries sorted by
// filename.
//
// The returned entries resolve Info lazily against the process working
// directory, not the sandbox; callers that need metadata should Lstat
// the joined entry path through the FS instead.
func (fs *FS) ReadDir(name string) ([]DirEntry, error) {
	dirfd, base, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return nil, err
	}
	fd, err := fs.openat(dirfd, base, O_DIRECTORY|O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), base)
	defer f.Close()
	entries, err := f.ReadDir(-1)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, convertErrorType(err)
}

// RemoveStat is a combination of Lstat and Remove used by the quota
// layer, which needs to know the size and mode of an entry in order to
// keep its usage accounting correct after the entry is gone.
func (fs *FS) RemoveStat(name string) (FileInfo, error) {
	dirfd, name, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return nil, err
	}

	// Lstat, not Stat: unlink operates on the link itself.
	s, err := fs.Lstatat(dirfd, name)
	if err != nil {
		return nil, err
	}

	if s.IsDir() {
		err = fs.unlinkat(dirfd, name, AT_REMOVEDIR)
	} else {
		err = fs.unlinkat(dirfd, name, 0)
	}
	if err != nil {
		return s, convertErrorType(&PathError{Op: "remove", Path: name, Err: err})
	}
	return s, nil
}

// Remove removes the named file or empty directory.
func (fs *FS) Remove(name string) error {
	dirfd, name, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return err
	}

	// Refuse to remove the origin root itself.
	if name == "." {
		return &PathError{Op: "remove", Path: name, Err: ErrBadPathResolution}
	}

	// The syscall interface forces us to know whether name is a file
	// or a directory. Trying both is cheaper on average than an Lstat
	// followed by the right call.
	err = fs.unlinkat(dirfd, name, 0)
	if err == nil {
		return nil
	}
	err1 := fs.unlinkat(dirfd, name, AT_REMOVEDIR)
	if err1 == nil {
		return nil
	}

	// Linux and darwin disagree on whether unlink(dir) returns EISDIR,
	// but both return ENOTDIR from rmdir(file), so use that to pick
	// which error is the real one.
	if err1 != unix.ENOTDIR {
		err = err1
	}
	return convertErrorType(&PathError{Op: "remove", Path: name, Err: err})
}

// RemoveAll removes path and any children it contains, returning the
// first error it encounters. A missing path is not an error.
func (fs *FS) RemoveAll(name string) error {
	name, err := fs.unsafePath(name)
	if err != nil {
		return err
	}
	if name == "." {
		return &PathError{Op: "removeall", Path: name, Err: ErrBadPathResolution}
	}
	return fs.removeAll(name)
}

func (fs *FS) unlinkat(dirfd int, name string, flags int) error {
	return ignoringEINTR(func() error {
		return unix.Unlinkat(dirfd, name, flags)
	})
}

// Rename renames (moves) oldpath to newpath. Missing parents of
// newpath are created; an existing entry at newpath is an error.
func (fs *FS) Rename(oldpath, newpath string) error {
	if oldpath == newpath {
		return nil
	}

	olddirfd, oldname, closeFd, err := fs.safePath(oldpath)
	defer closeFd()
	if err != nil {
		return err
	}
	// Never rename the origin root out from under ourselves.
	if oldname == "." {
		return convertErrorType(&PathError{Op: "rename", Path: oldname, Err: ErrBadPathResolution})
	}
	if _, err := fs.Lstatat(olddirfd, oldname); err != nil {
		return err
	}

	newdirfd, newname, closeFd2, err := fs.safePath(newpath)
	if err != nil {
		closeFd2()
		if !errors.Is(err, ErrNotExist) {
			return convertErrorType(err)
		}
		var pathErr *PathError
		if !errors.As(err, &pathErr) {
			return convertErrorType(err)
		}
		if err := fs.MkdirAll(pathErr.Path, 0o755); err != nil {
			return err
		}
		newdirfd, newname, closeFd2, err = fs.safePath(newpath)
		defer closeFd2()
		if err != nil {
			return err
		}
	} else {
		defer closeFd2()
	}

	if newname == "." {
		return convertErrorType(&PathError{Op: "rename", Path: newname, Err: ErrBadPathResolution})
	}
	// Stat the target to return a proper exists error.
	_, err = fs.Lstatat(newdirfd, newname)
	switch {
	case err == nil:
		return convertErrorType(&PathError{Op: "rename", Path: newname, Err: ErrExist})
	case !errors.Is(err, ErrNotExist):
		return err
	}
	return convertErrorType(unix.Renameat(olddirfd, oldname, newdirfd, newname))
}

// Replace renames oldpath over newpath, atomically replacing any
// existing entry at newpath. Unlike Rename it never creates parent
// directories; both parents must already exist.
func (fs *FS) Replace(oldpath, newpath string) error {
	if oldpath == newpath {
		return nil
	}

	olddirfd, oldname, closeFd, err := fs.safePath(oldpath)
	defer closeFd()
	if err != nil {
		return err
	}
	if oldname == "." {
		return convertErrorType(&PathError{Op: "rename", Path: oldname, Err: ErrBadPathResolution})
	}

	newdirfd, newname, closeFd2, err := fs.safePath(newpath)
	defer closeFd2()
	if err != nil {
		return err
	}
	if newname == "." {
		return convertErrorType(&PathError{Op: "rename", Path: newname, Err: ErrBadPathResolution})
	}
	return convertErrorType(unix.Renameat(olddirfd, oldname, newdirfd, newname))
}

// Stat returns a FileInfo describing the named file, following
// symlinks.
func (fs *FS) Stat(name string) (FileInfo, error) {
	return fs.fstat(name, 0)
}

// Lstat returns a FileInfo describing the named file without following
// symlinks.
func (fs *FS) Lstat(name string) (FileInfo, error) {
	return fs.fstat(name, AT_SYMLINK_NOFOLLOW)
}

// Lstatat is like Lstat but relative to an already resolved directory
// descriptor.
func (fs *FS) Lstatat(dirfd int, name string) (FileInfo, error) {
	return fs.fstatat(dirfd, name, AT_SYMLINK_NOFOLLOW)
}

func (fs *FS) fstat(name string, flags int) (FileInfo, error) {
	dirfd, name, closeFd, err := fs.safePath(name)
	defer closeFd()
	if err != nil {
		return nil, err
	}
	return fs.fstatat(dirfd, name, flags)
}

func (fs *FS) fstatat(dirfd int, name string, flags int) (FileInfo, error) {
	var s fileStat
	if err := ignoringEINTR(func() error {
		return unix.Fstatat(dirfd, name, &s.sys, flags)
	}); err != nil {
		return nil, convertErrorType(&PathError{Op: "stat", Path: name, Err: err})
	}
	fillFileStatFromSys(&s, name)
	return &s, nil
}

// Touch opens the named file, creating it and any missing parent
// directories if necessary. The file is only truncated when flag has
// O_TRUNC set.
func (fs *FS) Touch(path string, flag int, mode FileMode) (File, error) {
	if flag&O_CREATE == 0 {
		flag |= O_CREATE
	}
	dirfd, name, closeFd, err := fs.safePath(path)
	defer closeFd()
	if err == nil {
		return fs.OpenFileat(dirfd, name, flag, mode)
	}
	if !errors.Is(err, ErrNotExist) {
		return nil, err
	}
	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		return nil, err
	}
	if err := fs.MkdirAll(pathErr.Path, 0o755); err != nil {
		return nil, err
	}
	// Parents exist now, retry the open.
	return fs.OpenFile(path, flag, mode)
}

// WalkDir walks the file tree rooted at root in lexical order, calling
// fn for each file or directory in the tree, including root.
func (fs *FS) WalkDir(root string, fn WalkDirFunc) error {
	return WalkDir(fs, root, fn)
}

// openat opens name relative to dirfd, forcing O_NOFOLLOW so that a
// symlink in the final path element can never be followed blindly. With
// openat2 the kernel additionally refuses any resolution that would
// leave the sandbox; without it the opened descriptor is validated
// against /proc/self/fd after the fact.
func (fs *FS) openat(dirfd int, name string, flag int, mode FileMode) (int, error) {
	if flag&O_NOFOLLOW == 0 {
		flag |= O_NOFOLLOW
	}

	var fd int
	for {
		var err error
		if fs.useOpenat2 {
			fd, err = fs.openat2(dirfd, name, uint64(flag), uint64(syscallMode(mode)))
		} else {
			fd, err = fs.openat1(dirfd, name, flag, uint32(syscallMode(mode)))
		}
		if err == nil {
			break
		}
		// Retry on EINTR, see https://go.dev/issue/11180 and
		// https://go.dev/issue/39237.
		if err == unix.EINTR {
			continue
		}
		return 0, convertErrorType(err)
	}

	if !fs.useOpenat2 {
		// Older kernels: resolve what the descriptor actually points at
		// and reject it if it ended up outside the root.
		finalPath, err := filepath.EvalSymlinks(filepath.Join("/proc/self/fd/", strconv.Itoa(dirfd)))
		if err != nil {
			return fd, convertErrorType(err)
		}
		if !fs.unsafeIsPathInsideRoot(finalPath) {
			return fd, convertErrorType(&PathError{Op: "openat", Path: name, Err: ErrBadPathResolution})
		}
	}
	return fd, nil
}

func (fs *FS) openat1(dirfd int, name string, flag int, mode uint32) (int, error) {
	// The os package sets O_CLOEXEC for us, with the unix package we
	// have to do it ourselves. O_LARGEFILE is handled by Openat.
	if flag&O_CLOEXEC == 0 {
		flag |= O_CLOEXEC
	}
	fd, err := unix.Openat(dirfd, name, flag, mode)
	switch {
	case err == nil:
		return fd, nil
	case err == unix.EINTR, err == unix.EAGAIN:
		return 0, err
	default:
		return 0, &PathError{Op: "openat", Path: name, Err: err}
	}
}

func (fs *FS) openat2(dirfd int, name string, flag uint64, mode uint64) (int, error) {
	if flag&O_CLOEXEC == 0 {
		flag |= O_CLOEXEC
	}
	// Openat sets O_LARGEFILE itself, Openat2 does not.
	if flag&O_LARGEFILE == 0 {
		flag |= O_LARGEFILE
	}
	fd, err := unix.Openat2(dirfd, name, &unix.OpenHow{
		Flags: flag,
		Mode:  mode,
		// RESOLVE_BENEATH is what actually prevents a symlink escape;
		// without it we are back to validating paths ourselves.
		Resolve: unix.RESOLVE_BENEATH,
	})
	switch {
	case err == nil:
		return fd, nil
	case err == unix.EINTR, err == unix.EAGAIN:
		return 0, err
	default:
		return 0, &PathError{Op: "openat2", Path: name, Err: err}
	}
}

// SafePath resolves path to a directory descriptor and the final path
// element beneath it. The returned closer must always be called, even
// on error.
func (fs *FS) SafePath(path string) (int, string, func(), error) {
	return fs.safePath(path)
}

func (fs *FS) safePath(path string) (dirfd int, file string, closeFd func(), err error) {
	closeFd = func() {}

	// Clean the path and strip the root prefix if present.
	var name string
	name, err = fs.unsafePath(path)
	if err != nil {
		return
	}

	// A dirfd of -1 means Close was called on this filesystem.
	fsDirfd := int(fs.dirfd.Load())
	if fsDirfd == -1 {
		err = ErrClosed
		return
	}

	var dir string
	dir, file = filepath.Split(name)
	// An empty dir means name is a direct child of the root, in which
	// case the long-lived root descriptor is used as-is.
	if dir == "" {
		dirfd = fsDirfd
		return
	}

	dir = strings.TrimSuffix(dir, "/")
	dirfd, err = fs.openat(fsDirfd, dir, O_DIRECTORY|O_RDONLY, 0)
	if dirfd != 0 {
		closeFd = func() { _ = unix.Close(dirfd) }
	}
	return
}

// unsafePath joins path onto the root and cleans it, returning a path
// relative to the root directory. The result has not been checked
// against symlink escapes; only `..` style traversal is rejected here.
func (fs *FS) unsafePath(path string) (string, error) {
	// Cleaning the joined path collapses any ../ segments, leaving a
	// direct path we can compare against the root.
	r := filepath.Clean(filepath.Join(fs.root, strings.TrimPrefix(path, fs.root)))

	if !fs.unsafeIsPathInsideRoot(r) {
		return "", &PathError{Op: "safepath", Path: path, Err: ErrBadPathResolution}
	}

	// The *at syscalls behave differently when handed absolute paths,
	// so translate back to a root-relative one.
	r = strings.TrimPrefix(strings.TrimPrefix(r, fs.root), "/")
	if r == "" {
		// Pointing at the root itself.
		return ".", nil
	}
	return r, nil
}

func (fs *FS) unsafeIsPathInsideRoot(path string) bool {
	return strings.HasPrefix(
		strings.TrimSuffix(path, "/")+"/",
		fs.root+"/",
	)
}
