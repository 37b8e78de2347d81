package originfs

import (
	"errors"
	"io"
	"os"
	"testing"

	. "github.com/franela/goblin"

	"github.com/originfs/originfs/internal/pfs"
)

func TestWritable_Commit(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("Writable", func() {
		g.It("keeps staged data invisible until Close", func() {
			f, err := root.CreateFile("staged.txt")
			g.Assert(err).IsNil()
			g.Assert(root.RemoveEntry("staged.txt")).IsNil()

			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()
			_, err = w.Write([]byte("pending"))
			g.Assert(err).IsNil()

			// The target must not exist while the session is open.
			_, err = f.Bytes()
			g.Assert(err).IsNotNil()
			g.Assert(errors.Is(err, os.ErrNotExist)).IsTrue()

			g.Assert(w.Close()).IsNil()
			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("pending")
		})

		g.It("replaces existing contents atomically on Close", func() {
			g.Assert(rfs.CreateFileFromString("replace.txt", "old contents")).IsNil()

			f, err := root.GetFile("replace.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()
			_, err = w.Write([]byte("new"))
			g.Assert(err).IsNil()

			// The old data stays readable until the commit.
			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("old contents")

			g.Assert(w.Close()).IsNil()
			text, err = f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("new")
		})

		g.It("starts from existing data with keepExistingData", func() {
			g.Assert(rfs.CreateFileFromString("seeded.txt", "abcdef")).IsNil()

			f, err := root.GetFile("seeded.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(true)
			g.Assert(err).IsNil()
			// Overwrite just the first two bytes.
			_, err = w.WriteAt([]byte("XY"), 0)
			g.Assert(err).IsNil()
			g.Assert(w.Close()).IsNil()

			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("XYcdef")
		})

		g.It("supports Seek and Truncate on the staged data", func() {
			f, err := root.CreateFile("seek.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()

			_, err = w.Write([]byte("0123456789"))
			g.Assert(err).IsNil()
			g.Assert(w.Truncate(4)).IsNil()
			_, err = w.Seek(4, io.SeekStart)
			g.Assert(err).IsNil()
			_, err = w.Write([]byte("x"))
			g.Assert(err).IsNil()
			g.Assert(w.Close()).IsNil()

			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("0123x")
		})
	})
}

func TestWritable_Abort(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("Writable#Abort", func() {
		g.It("leaves the target untouched and removes the staging file", func() {
			g.Assert(rfs.CreateFileFromString("victim.txt", "original")).IsNil()

			f, err := root.GetFile("victim.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()
			_, err = w.Write([]byte("discarded"))
			g.Assert(err).IsNil()
			g.Assert(w.Abort()).IsNil()

			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("original")

			entries, err := os.ReadDir(s.Path())
			g.Assert(err).IsNil()
			for _, e := range entries {
				g.Assert(isStagingName(e.Name())).IsFalse()
			}
		})

		g.It("rejects operations after the session ended", func() {
			f, err := root.CreateFile("dead.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()
			g.Assert(w.Abort()).IsNil()

			_, err = w.Write([]byte("x"))
			g.Assert(errors.Is(err, pfs.ErrClosed)).IsTrue()
			g.Assert(errors.Is(w.Close(), pfs.ErrClosed)).IsTrue()
			g.Assert(errors.Is(w.Abort(), pfs.ErrClosed)).IsTrue()
		})
	})
}

func TestWritable_Quota(t *testing.T) {
	g := Goblin(t)

	g.Describe("Writable quota enforcement", func() {
		g.It("rejects writes when writes are disabled", func() {
			s, _ := NewStore(&Config{MaxSize: -1})
			defer s.Close()

			f, err := s.Root().CreateFile("blocked.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()
			defer w.Abort()

			_, err = w.Write([]byte("x"))
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDiskSpace)).IsTrue()
		})

		g.It("rejects a commit that would exceed the limit", func() {
			s, _ := NewStore(&Config{MaxSize: 16})
			defer s.Close()
			_, err := s.DiskUsage(false)
			g.Assert(err).IsNil()

			f, err := s.Root().CreateFile("big.txt")
			g.Assert(err).IsNil()
			w, err := f.CreateWritable(false)
			g.Assert(err).IsNil()
			_, err = w.Write([]byte("01234567"))
			g.Assert(err).IsNil()

			// Usage grows underneath the open session, so the staged
			// data no longer fits by the time it tries to commit.
			pad, err := s.Root().CreateFile("pad.txt")
			g.Assert(err).IsNil()
			g.Assert(pad.Write([]byte("0123456789"))).IsNil()

			err = w.Close()
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDiskSpace)).IsTrue()

			// The failed commit must not leave the staged data behind.
			_, err = f.Bytes()
			g.Assert(err).IsNotNil()
		})
	})
}
