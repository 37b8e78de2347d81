package originfs

import (
	"time"

	"golang.org/x/sys/unix"
)

// CTime returns the time that the file was created at. Linux only
// tracks inode change time, which is the closest approximation
// available without statx.
func (s *Stat) CTime() time.Time {
	if st, ok := s.Sys().(*unix.Stat_t); ok {
		return time.Unix(st.Ctim.Unix())
	}
	return s.ModTime()
}
