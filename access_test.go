package originfs

import (
	"errors"
	"io"
	"testing"

	. "github.com/franela/goblin"

	"github.com/originfs/originfs/internal/pfs"
)

func TestAccessHandle(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("AccessHandle", func() {
		g.It("reads and writes at arbitrary offsets", func() {
			g.Assert(rfs.CreateFileFromString("random.bin", "0123456789")).IsNil()

			f, err := root.GetFile("random.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()
			defer h.Close()

			n, err := h.WriteAt([]byte("AB"), 2)
			g.Assert(err).IsNil()
			g.Assert(n).Equal(2)

			buf := make([]byte, 10)
			n, err = h.ReadAt(buf, 0)
			g.Assert(err == nil || err == io.EOF).IsTrue()
			g.Assert(n).Equal(10)
			g.Assert(string(buf)).Equal("01AB456789")
		})

		g.It("tracks size through writes and truncates", func() {
			f, err := root.CreateFile("sized.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()
			defer h.Close()

			size, err := h.Size()
			g.Assert(err).IsNil()
			g.Assert(size).Equal(int64(0))

			_, err = h.WriteAt([]byte("12345678"), 0)
			g.Assert(err).IsNil()
			size, err = h.Size()
			g.Assert(err).IsNil()
			g.Assert(size).Equal(int64(8))

			g.Assert(h.Truncate(3)).IsNil()
			size, err = h.Size()
			g.Assert(err).IsNil()
			g.Assert(size).Equal(int64(3))
		})

		g.It("is exclusive per path", func() {
			f, err := root.CreateFile("locked.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()

			_, err = f.OpenAccessHandle()
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeLocked)).IsTrue()

			g.Assert(h.Close()).IsNil()
			// The lock is released on close.
			h2, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()
			g.Assert(h2.Close()).IsNil()
		})

		g.It("blocks removal and staged commits while open", func() {
			f, err := root.CreateFile("held.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()
			defer h.Close()

			err = root.RemoveEntry("held.bin")
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeLocked)).IsTrue()

			_, err = f.CreateWritable(false)
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeLocked)).IsTrue()
		})

		g.It("blocks clearing the bucket while open", func() {
			f, err := root.CreateFile("pinned.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()

			err = s.Clear()
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeLocked)).IsTrue()

			g.Assert(h.Close()).IsNil()
			g.Assert(s.Clear()).IsNil()
		})

		g.It("rejects operations after Close", func() {
			f, err := root.CreateFile("closed.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()
			g.Assert(h.Close()).IsNil()

			_, err = h.WriteAt([]byte("x"), 0)
			g.Assert(errors.Is(err, pfs.ErrClosed)).IsTrue()
			_, err = h.Size()
			g.Assert(errors.Is(err, pfs.ErrClosed)).IsTrue()
			g.Assert(errors.Is(h.Flush(), pfs.ErrClosed)).IsTrue()
			g.Assert(errors.Is(h.Close(), pfs.ErrClosed)).IsTrue()
		})

		g.It("enforces the quota on growth", func() {
			s2, _ := NewStore(&Config{MaxSize: 4})
			defer s2.Close()
			_, err := s2.DiskUsage(false)
			g.Assert(err).IsNil()

			f, err := s2.Root().CreateFile("tiny.bin")
			g.Assert(err).IsNil()
			h, err := f.OpenAccessHandle()
			g.Assert(err).IsNil()
			defer h.Close()

			_, err = h.WriteAt([]byte("12345"), 0)
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDiskSpace)).IsTrue()
		})
	})
}
