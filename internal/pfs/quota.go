package pfs

import (
	"sync/atomic"
)

// Quota wraps an FS with storage usage accounting so the facade can
// answer estimate queries and refuse writes that would push an origin
// over its allotment.
type Quota struct {
	*FS

	// limit is the maximum number of bytes the origin may use.
	//
	// A limit of `-1` disables all write operations.
	// A limit of `0` disables limit checking entirely.
	limit atomic.Int64

	// usage is the currently tracked usage of the origin.
	//
	// A usage of `-1` means it hasn't been calculated yet.
	usage atomic.Int64
}

func NewQuota(fs *FS, limit int64) *Quota {
	qfs := Quota{FS: fs}
	qfs.limit.Store(limit)
	return &qfs
}

// Close closes the underlying filesystem.
func (fs *Quota) Close() error {
	return fs.FS.Close()
}

// Limit returns the byte limit of the origin.
func (fs *Quota) Limit() int64 {
	return fs.limit.Load()
}

// SetLimit replaces the byte limit of the origin, returning the
// previous value.
func (fs *Quota) SetLimit(newLimit int64) int64 {
	return fs.limit.Swap(newLimit)
}

// Usage returns the tracked usage of the origin.
func (fs *Quota) Usage() int64 {
	return fs.usage.Load()
}

// SetUsage replaces the tracked usage of the origin, returning the
// previous value.
func (fs *Quota) SetUsage(newUsage int64) int64 {
	return fs.usage.Swap(newUsage)
}

// Add adds i to the tracked usage total. i may be negative; the total
// never drops below zero.
func (fs *Quota) Add(i int64) int64 {
	usage := fs.Usage()
	if usage+i < 0 {
		fs.usage.Store(0)
		return 0
	}
	return fs.usage.Add(i)
}

// CanFit checks if size additional bytes fit within the origin's limit.
func (fs *Quota) CanFit(size int64) bool {
	limit := fs.Limit()
	switch limit {
	case -1:
		// All writes disabled.
		return false
	case 0:
		// Unlimited.
		return true
	}

	usage := fs.Usage()
	if usage == -1 {
		// Usage hasn't been calculated yet, let the write through and
		// catch up when the next usage scan runs.
		return true
	}

	return usage+size <= limit
}

// Remove removes the named entry, subtracting regular file sizes from
// the tracked usage.
func (fs *Quota) Remove(name string) error {
	s, err := fs.RemoveStat(name)
	if err != nil {
		return err
	}

	// Only regular files count against usage.
	if !s.Mode().IsRegular() {
		return nil
	}

	fs.Add(-s.Size())
	return nil
}

// RemoveAll removes path and any children it contains, keeping the
// usage accounting in sync via the quota-aware unlinkat.
func (fs *Quota) RemoveAll(name string) error {
	name, err := fs.unsafePath(name)
	if err != nil {
		return err
	}
	if name == "." {
		return &PathError{Op: "removeall", Path: name, Err: ErrBadPathResolution}
	}
	return removeAll(fs, name)
}

func (fs *Quota) unlinkat(dirfd int, name string, flags int) error {
	if flags == 0 {
		s, err := fs.Lstatat(dirfd, name)
		if err == nil && s.Mode().IsRegular() {
			fs.Add(-s.Size())
		}
	}
	return fs.FS.unlinkat(dirfd, name, flags)
}
