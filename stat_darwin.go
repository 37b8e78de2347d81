package originfs

import (
	"time"

	"golang.org/x/sys/unix"
)

// CTime returns the time that the file was created at.
func (s *Stat) CTime() time.Time {
	if st, ok := s.Sys().(*unix.Stat_t); ok {
		return time.Unix(st.Ctimespec.Unix())
	}
	return s.ModTime()
}
