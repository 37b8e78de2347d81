package originfs

import (
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"

	"github.com/originfs/originfs/internal/pfs"
)

// Estimate describes how much of the origin's storage allotment is in
// use. A Quota of 0 means the origin is not limited.
type Estimate struct {
	Usage int64 `json:"usage"`
	Quota int64 `json:"quota"`
}

// Estimate returns the current usage and configured quota for the
// origin. See DiskUsage for the semantics of allowStaleValue.
func (s *Store) Estimate(allowStaleValue bool) (Estimate, error) {
	usage, err := s.DiskUsage(allowStaleValue)
	if err != nil {
		return Estimate{}, err
	}
	limit := s.Limit()
	if limit < 0 {
		// Writes are administratively disabled; from the caller's point
		// of view there is simply no room.
		limit = 0
	}
	return Estimate{Usage: usage, Quota: limit}, nil
}

type usageLookupTime struct {
	sync.RWMutex
	value time.Time
}

// Set sets the last time that a disk space lookup was performed.
func (ult *usageLookupTime) Set(t time.Time) {
	ult.Lock()
	ult.value = t
	ult.Unlock()
}

// Get the last time that we performed a disk space usage lookup.
func (ult *usageLookupTime) Get() time.Time {
	ult.RLock()
	defer ult.RUnlock()

	return ult.value
}

// Limit returns the maximum amount of disk space this origin is
// allowed to use.
func (s *Store) Limit() int64 {
	return s.fs.Limit()
}

// SetLimit replaces the disk space limit for this origin.
func (s *Store) SetLimit(i int64) {
	s.fs.SetLimit(i)
}

// CachedUsage returns the cached amount of disk space used by the
// origin. Do not rely on this value for correctness checks, it may be
// arbitrarily stale.
func (s *Store) CachedUsage() int64 {
	return s.fs.Usage()
}

// HasSpaceErr is HasSpaceAvailable returning an error instead of a
// boolean.
func (s *Store) HasSpaceErr(allowStaleValue bool) error {
	if !s.HasSpaceAvailable(allowStaleValue) {
		return newStoreError(ErrCodeDiskSpace, nil, "")
	}
	return nil
}

// HasSpaceAvailable determines whether the origin still fits within
// its storage allotment.
//
// Because calculating the amount of space in use is expensive the
// result is cached; this call potentially blocks unless
// allowStaleValue is set. See DiskUsage for details.
func (s *Store) HasSpaceAvailable(allowStaleValue bool) bool {
	size, err := s.DiskUsage(allowStaleValue)
	if err != nil {
		s.error(err).Warn("failed to determine origin root directory size")
	}

	limit := s.Limit()
	switch {
	case limit == 0:
		// Unlimited. The usage lookup above still ran so that the cache
		// stays warm for estimate responses.
		return true
	case limit < 0:
		return false
	}
	return size <= limit
}

// HasSpaceFor checks whether size additional bytes fit within the
// origin's allotment.
func (s *Store) HasSpaceFor(size int64) error {
	if !s.fs.CanFit(size) {
		return newStoreError(ErrCodeDiskSpace, nil, "")
	}
	return nil
}

// DiskUsage returns the amount of disk space used by the origin,
// preferring the cached value whenever it is younger than the
// configured check interval.
//
// If allowStaleValue is true a stale value MAY be returned when the
// cache has expired but another lookup is already in progress. When no
// lookup is running the recalculation happens in the background and
// the stale value is returned immediately. With allowStaleValue false
// an expired cache always triggers a blocking recalculation.
func (s *Store) DiskUsage(allowStaleValue bool) (int64, error) {
	// A disk check interval of 0 disables this functionality entirely.
	if s.diskCheckInterval == 0 {
		return 0, nil
	}

	if !s.lastLookupTime.Get().After(time.Now().Add(time.Second * s.diskCheckInterval * -1)) {
		if !allowStaleValue {
			return s.updateCachedDiskUsage()
		} else if !s.lookupInProgress.Load() {
			go func(s *Store) {
				if _, err := s.updateCachedDiskUsage(); err != nil {
					s.error(err).Warn("failed to update disk usage from within routine")
				}
			}(s)
		}
	}

	return s.fs.Usage(), nil
}

// updateCachedDiskUsage recalculates the disk usage of the origin and
// stores the result in the cache.
func (s *Store) updateCachedDiskUsage() (int64, error) {
	// Only one walk at a time; concurrent callers block here and then
	// read the freshly cached value rather than hammering the disk in
	// parallel.
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookupInProgress.Store(true)
	defer s.lookupInProgress.Store(false)

	size, err := s.DirectorySize(".")

	// Cache the value even on error so a persistent failure doesn't
	// turn into an endless retry loop.
	s.lastLookupTime.Set(time.Now())
	s.fs.SetUsage(size)

	return size, err
}

// DirectorySize calculates the size of a directory and its
// descendants. Only regular files count toward the total; staged
// writable sessions are excluded since they are invisible until they
// commit.
func (s *Store) DirectorySize(root string) (int64, error) {
	var size atomic.Int64
	err := s.fs.WalkDir(root, func(name string, d pfs.DirEntry, err error) error {
		if err != nil {
			return s.handleWalkError(err, d)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if isStagingName(d.Name()) {
			return nil
		}
		info, err := s.fs.Lstat(name)
		if err != nil {
			return errors.Wrap(err, "lstat err")
		}
		size.Add(info.Size())
		return nil
	})
	return size.Load(), errors.WrapIf(err, "originfs: directorysize: failed to walk directory")
}

// addDisk updates the tracked disk usage for the origin.
func (s *Store) addDisk(i int64) int64 {
	return s.fs.Add(i)
}
