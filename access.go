package originfs

import (
	"io"
	"sync"

	"github.com/originfs/originfs/internal/pfs"
)

// lockTable tracks which paths are held by an open access handle. The
// lock is advisory within a single Store, which is the only way the
// bucket is supposed to be reached.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]struct{})}
}

func (l *lockTable) acquire(p string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.locks[p]; ok {
		return false
	}
	l.locks[p] = struct{}{}
	return true
}

func (l *lockTable) release(p string) {
	l.mu.Lock()
	delete(l.locks, p)
	l.mu.Unlock()
}

func (l *lockTable) locked(p string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[p]
	return ok
}

func (l *lockTable) empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks) == 0
}

// AccessHandle is an exclusive random-access handle to a file. While
// it is open no other access handle can be opened for the same path,
// staged write sessions cannot commit to it, and the entry cannot be
// removed or renamed. Writes land in the file directly, there is no
// staging.
type AccessHandle struct {
	mu     sync.Mutex
	store  *Store
	path   string
	file   pfs.File
	size   int64
	closed bool
}

// OpenAccessHandle opens an exclusive access handle for the file,
// creating it if it does not exist.
func (f *File) OpenAccessHandle() (*AccessHandle, error) {
	if err := f.store.checkPermission(f.path, PermissionReadWrite); err != nil {
		return nil, err
	}
	if err := f.store.IsIgnored(f.path); err != nil {
		return nil, err
	}
	if !f.store.locks.acquire(f.path) {
		return nil, newStoreError(ErrCodeLocked, nil, f.path)
	}

	file, err := f.store.touch(f.path, pfs.O_RDWR|pfs.O_CREATE)
	if err != nil {
		f.store.locks.release(f.path)
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		f.store.locks.release(f.path)
		return nil, wrapError(err, f.path)
	}
	return &AccessHandle{store: f.store, path: f.path, file: file, size: st.Size()}, nil
}

// ReadAt reads len(p) bytes starting at offset off.
func (h *AccessHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, pfs.ErrClosed
	}
	n, err := h.file.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, wrapError(err, h.path)
	}
	return n, err
}

// WriteAt writes len(p) bytes starting at offset off, growing the file
// if the write extends past the end.
func (h *AccessHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, pfs.ErrClosed
	}
	if growth := off + int64(len(p)) - h.size; growth > 0 {
		if err := h.store.HasSpaceFor(growth); err != nil {
			return 0, err
		}
	}
	n, err := h.file.WriteAt(p, off)
	if end := off + int64(n); end > h.size {
		h.store.addDisk(end - h.size)
		h.size = end
	}
	return n, wrapError(err, h.path)
}

// Truncate resizes the file.
func (h *AccessHandle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return pfs.ErrClosed
	}
	if growth := size - h.size; growth > 0 {
		if err := h.store.HasSpaceFor(growth); err != nil {
			return err
		}
	}
	if err := h.file.Truncate(size); err != nil {
		return wrapError(err, h.path)
	}
	h.store.addDisk(size - h.size)
	h.size = size
	return nil
}

// Size returns the current size of the file as seen by this handle.
func (h *AccessHandle) Size() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, pfs.ErrClosed
	}
	return h.size, nil
}

// Flush forces written data to stable storage.
func (h *AccessHandle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return pfs.ErrClosed
	}
	return wrapError(h.file.Sync(), h.path)
}

// Close releases the handle and its exclusive lock.
func (h *AccessHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return pfs.ErrClosed
	}
	h.closed = true
	defer h.store.locks.release(h.path)
	return wrapError(h.file.Close(), h.path)
}
