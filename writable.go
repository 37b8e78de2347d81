package originfs

import (
	"io"
	"path"
	"strings"
	"sync"

	"emperror.dev/errors"
	"github.com/google/uuid"

	"github.com/originfs/originfs/internal/pfs"
)

// stagePrefix marks in-progress writable staging files. They live next
// to their target and are hidden from listings, usage accounting and
// exports until the session commits.
const stagePrefix = ".originfs-stage-"

func isStagingName(name string) bool {
	return strings.HasPrefix(name, stagePrefix)
}

// Writable is a staged write session for a file. Everything written
// through it lands in a hidden sibling file; the target keeps its old
// contents until Close atomically swaps the staged data in. Abort
// throws the staged data away.
//
// A Writable is safe for concurrent use, though writes interleave in
// arrival order.
type Writable struct {
	mu     sync.Mutex
	store  *Store
	path   string
	stage  string
	file   pfs.File
	closed bool
}

var _ io.WriteCloser = (*Writable)(nil)

// CreateWritable starts a staged write session for the file. With
// keepExistingData the session starts from a copy of the current
// contents, otherwise from an empty file.
func (f *File) CreateWritable(keepExistingData bool) (*Writable, error) {
	if err := f.store.checkPermission(f.path, PermissionReadWrite); err != nil {
		return nil, err
	}
	if err := f.store.IsIgnored(f.path); err != nil {
		return nil, err
	}
	if f.store.locks.locked(f.path) {
		return nil, newStoreError(ErrCodeLocked, nil, f.path)
	}

	if st, err := f.store.fs.Lstat(f.path); err == nil {
		if st.IsDir() {
			return nil, newStoreError(ErrCodeIsDirectory, nil, f.path)
		}
	} else if !errors.Is(err, pfs.ErrNotExist) {
		return nil, wrapError(err, f.path)
	}

	stage := path.Join(path.Dir(f.path), stagePrefix+uuid.New().String())
	file, err := f.store.touch(stage, pfs.O_RDWR|pfs.O_CREATE|pfs.O_EXCL)
	if err != nil {
		return nil, err
	}

	w := &Writable{store: f.store, path: f.path, stage: stage, file: file}
	if keepExistingData {
		if err := w.seed(); err != nil {
			w.discard()
			return nil, err
		}
	}
	return w, nil
}

// seed copies the target's current contents into the staging file and
// rewinds, so the session starts from the existing data.
func (w *Writable) seed() error {
	src, err := w.store.fs.Open(w.path)
	if err != nil {
		if errors.Is(err, pfs.ErrNotExist) {
			return nil
		}
		return wrapError(err, w.path)
	}
	defer src.Close()
	if _, err := io.Copy(w.file, src); err != nil {
		return wrapError(err, w.path)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return wrapError(err, w.path)
	}
	return nil
}

// discard closes and deletes the staging file. The staged bytes were
// never charged against the quota, so the raw filesystem remove is
// used instead of the accounting one. Callers must hold mu.
func (w *Writable) discard() {
	_ = w.file.Close()
	_ = w.store.fs.FS.Remove(w.stage)
}

func (w *Writable) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, pfs.ErrClosed
	}
	if !w.store.fs.CanFit(int64(len(p))) {
		return 0, newStoreError(ErrCodeDiskSpace, nil, w.path)
	}
	n, err := w.file.Write(p)
	return n, wrapError(err, w.path)
}

func (w *Writable) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, pfs.ErrClosed
	}
	if !w.store.fs.CanFit(int64(len(p))) {
		return 0, newStoreError(ErrCodeDiskSpace, nil, w.path)
	}
	n, err := w.file.WriteAt(p, off)
	return n, wrapError(err, w.path)
}

// Seek moves the session's write offset, following the usual
// io.Seeker semantics.
func (w *Writable) Seek(offset int64, whence int) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, pfs.ErrClosed
	}
	n, err := w.file.Seek(offset, whence)
	return n, wrapError(err, w.path)
}

// Truncate resizes the staged data without moving the write offset.
func (w *Writable) Truncate(size int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return pfs.ErrClosed
	}
	st, err := w.file.Stat()
	if err != nil {
		return wrapError(err, w.path)
	}
	if delta := size - st.Size(); delta > 0 && !w.store.fs.CanFit(delta) {
		return newStoreError(ErrCodeDiskSpace, nil, w.path)
	}
	return wrapError(w.file.Truncate(size), w.path)
}

// Close commits the session: the staged file atomically replaces the
// target and the size difference is charged against the quota. When
// the commit cannot go through the staged data is discarded, matching
// what Abort would have done.
func (w *Writable) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return pfs.ErrClosed
	}
	w.closed = true

	if err := w.file.Sync(); err != nil {
		w.discard()
		return wrapError(err, w.path)
	}
	st, err := w.file.Stat()
	if err != nil {
		w.discard()
		return wrapError(err, w.path)
	}
	staged := st.Size()
	if err := w.file.Close(); err != nil {
		_ = w.store.fs.FS.Remove(w.stage)
		return wrapError(err, w.path)
	}

	var current int64
	if est, err := w.store.fs.Lstat(w.path); err == nil {
		if est.IsDir() {
			_ = w.store.fs.FS.Remove(w.stage)
			return newStoreError(ErrCodeIsDirectory, nil, w.path)
		}
		current = est.Size()
	} else if !errors.Is(err, pfs.ErrNotExist) {
		_ = w.store.fs.FS.Remove(w.stage)
		return wrapError(err, w.path)
	}

	// An access handle opened after this session started owns the
	// target exclusively, the commit loses.
	if w.store.locks.locked(w.path) {
		_ = w.store.fs.FS.Remove(w.stage)
		return newStoreError(ErrCodeLocked, nil, w.path)
	}

	delta := staged - current
	if delta > 0 && !w.store.fs.CanFit(delta) {
		_ = w.store.fs.FS.Remove(w.stage)
		return newStoreError(ErrCodeDiskSpace, nil, w.path)
	}

	if err := w.store.fs.Replace(w.stage, w.path); err != nil {
		_ = w.store.fs.FS.Remove(w.stage)
		return wrapError(err, w.path)
	}
	w.store.addDisk(delta)
	return nil
}

// Abort ends the session and throws the staged data away. The target
// file is left untouched.
func (w *Writable) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return pfs.ErrClosed
	}
	w.closed = true
	w.discard()
	return nil
}
