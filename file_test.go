package originfs

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	. "github.com/franela/goblin"
)

func TestFile_ReadWrite(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("File#Bytes", func() {
		g.It("reads a file that exists on the system", func() {
			g.Assert(rfs.CreateFileFromString("test.txt", "testing")).IsNil()

			f, err := root.GetFile("test.txt")
			g.Assert(err).IsNil()
			b, err := f.Bytes()
			g.Assert(err).IsNil()
			g.Assert(string(b)).Equal("testing")
		})

		g.It("returns an error if the file does not exist", func() {
			_, err := root.GetFile("missing.txt")
			g.Assert(err).IsNotNil()
			g.Assert(errors.Is(err, os.ErrNotExist)).IsTrue()
		})

		g.It("returns an error if the entry is a directory", func() {
			g.Assert(os.Mkdir(s.Path()+"/adir", 0o755)).IsNil()

			_, err := root.GetFile("adir")
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeIsDirectory)).IsTrue()
		})
	})

	g.Describe("File#Open", func() {
		g.It("exposes stat information on the open reader", func() {
			g.Assert(rfs.CreateFileFromString("stream.txt", "streaming")).IsNil()

			f, err := root.GetFile("stream.txt")
			g.Assert(err).IsNil()
			r, err := f.Open()
			g.Assert(err).IsNil()
			defer r.Close()

			st, err := r.Stat()
			g.Assert(err).IsNil()
			g.Assert(st.Size()).Equal(int64(9))

			_, err = r.Seek(6, io.SeekStart)
			g.Assert(err).IsNil()
			b, err := io.ReadAll(r)
			g.Assert(err).IsNil()
			g.Assert(string(b)).Equal("ing")
		})
	})

	g.Describe("File#Text", func() {
		g.It("returns file contents as a string", func() {
			g.Assert(rfs.CreateFileFromString("text.txt", "hello world")).IsNil()

			f, err := root.GetFile("text.txt")
			g.Assert(err).IsNil()
			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("hello world")
		})
	})

	g.Describe("File#Write", func() {
		g.It("replaces the file contents", func() {
			f, err := root.CreateFile("write.txt")
			g.Assert(err).IsNil()
			g.Assert(f.Write([]byte("first"))).IsNil()
			g.Assert(f.Write([]byte("second"))).IsNil()

			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("second")
		})

		g.It("tracks the written bytes against usage", func() {
			s2, _ := NewStore(nil)
			defer s2.Close()
			// Prime the usage cache so writes add to a known value.
			_, err := s2.DiskUsage(false)
			g.Assert(err).IsNil()

			f, err := s2.Root().CreateFile("usage.txt")
			g.Assert(err).IsNil()
			g.Assert(f.Write([]byte("0123456789"))).IsNil()
			g.Assert(s2.CachedUsage()).Equal(int64(10))
		})
	})

	g.Describe("File#Append", func() {
		g.It("appends to existing contents", func() {
			f, err := root.CreateFile("append.txt")
			g.Assert(err).IsNil()
			g.Assert(f.Write([]byte("start"))).IsNil()
			g.Assert(f.Append([]byte("+end"))).IsNil()

			text, err := f.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("start+end")
		})
	})
}

func TestFile_Truncate(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("File#Truncate", func() {
		g.It("shrinks a file", func() {
			g.Assert(rfs.CreateFileFromString("shrink.txt", "0123456789")).IsNil()

			f, err := root.GetFile("shrink.txt")
			g.Assert(err).IsNil()
			g.Assert(f.Truncate(4)).IsNil()

			st, err := rfs.Stat("shrink.txt")
			g.Assert(err).IsNil()
			g.Assert(st.Size()).Equal(int64(4))
		})

		g.It("grows a file with zero bytes", func() {
			g.Assert(rfs.CreateFileFromString("grow.txt", "ab")).IsNil()

			f, err := root.GetFile("grow.txt")
			g.Assert(err).IsNil()
			g.Assert(f.Truncate(8)).IsNil()

			st, err := rfs.Stat("grow.txt")
			g.Assert(err).IsNil()
			g.Assert(st.Size()).Equal(int64(8))
		})

		g.It("rejects negative sizes", func() {
			g.Assert(rfs.CreateFileFromString("neg.txt", "ab")).IsNil()

			f, err := root.GetFile("neg.txt")
			g.Assert(err).IsNil()
			g.Assert(f.Truncate(-1)).IsNotNil()
		})

		g.It("rejects growth past the quota", func() {
			s2, rfs2 := NewStore(&Config{MaxSize: 10})
			defer s2.Close()
			g.Assert(rfs2.CreateFileFromString("full.txt", "0123456789")).IsNil()
			_, err := s2.DiskUsage(false)
			g.Assert(err).IsNil()

			f, err := s2.Root().GetFile("full.txt")
			g.Assert(err).IsNil()
			err = f.Truncate(100)
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDiskSpace)).IsTrue()
		})
	})
}

func TestFile_Copy(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("File#Copy", func() {
		g.It("creates a copy with a suffixed name", func() {
			g.Assert(rfs.CreateFileFromString("source.txt", "important")).IsNil()

			f, err := root.GetFile("source.txt")
			g.Assert(err).IsNil()
			dup, err := f.Copy()
			g.Assert(err).IsNil()
			g.Assert(dup.Name()).Equal("source copy.txt")

			text, err := dup.Text()
			g.Assert(err).IsNil()
			g.Assert(text).Equal("important")
		})

		g.It("numbers subsequent copies", func() {
			f, err := root.GetFile("source.txt")
			g.Assert(err).IsNil()
			dup, err := f.Copy()
			g.Assert(err).IsNil()
			g.Assert(dup.Name()).Equal("source copy 1.txt")
		})

		g.It("keeps .tar as part of the extension", func() {
			g.Assert(rfs.CreateFileFromString("backup.tar.gz", "gz")).IsNil()

			f, err := root.GetFile("backup.tar.gz")
			g.Assert(err).IsNil()
			dup, err := f.Copy()
			g.Assert(err).IsNil()
			g.Assert(dup.Name()).Equal("backup copy.tar.gz")
		})
	})
}

func TestFile_Stat(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)
	root := s.Root()

	g.Describe("File#Stat", func() {
		g.It("detects the mimetype of text files", func() {
			g.Assert(rfs.CreateFileFromString("stat.txt", "plain text contents")).IsNil()

			f, err := root.GetFile("stat.txt")
			g.Assert(err).IsNil()
			st, err := f.Stat()
			g.Assert(err).IsNil()
			g.Assert(st.Name()).Equal("stat.txt")
			g.Assert(st.Size()).Equal(int64(19))
			g.Assert(strings.HasPrefix(st.Mimetype, "text/plain")).IsTrue()
		})
	})
}

func TestFile_Denylist(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(&Config{Denylist: []string{"*.secret"}})
	root := s.Root()

	g.Describe("denylist", func() {
		g.It("blocks reads of denylisted files", func() {
			g.Assert(rfs.CreateFileFromString("token.secret", "hunter2")).IsNil()

			f, err := root.GetFile("token.secret")
			g.Assert(err).IsNil()
			_, err = f.Bytes()
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDenylistFile)).IsTrue()
		})

		g.It("blocks writes to denylisted files", func() {
			f, err := root.CreateFile("another.secret")
			g.Assert(err).IsNotNil()
			g.Assert(f == nil).IsTrue()
			g.Assert(IsErrorCode(err, ErrCodeDenylistFile)).IsTrue()
		})
	})
}
