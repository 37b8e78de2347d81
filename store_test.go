package originfs

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/franela/goblin"
)

// NewStore opens a store backed by a fresh temporary directory along
// with a helper for manipulating the bucket from outside the facade.
func NewStore(cfg *Config) (*Store, *rootFs) {
	tmpDir, err := os.MkdirTemp(os.TempDir(), "originfs")
	if err != nil {
		panic(err)
	}

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.BaseDirectory = tmpDir
	if cfg.Origin == "" {
		cfg.Origin = "https://example.com"
	}

	s, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return s, &rootFs{root: s.Path()}
}

type rootFs struct {
	root string
}

func (rfs *rootFs) CreateFile(p string, c []byte) error {
	full := filepath.Join(rfs.root, p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err == nil {
		_, _ = f.Write(c)
		_ = f.Close()
	}
	return err
}

func (rfs *rootFs) CreateFileFromString(p string, c string) error {
	return rfs.CreateFile(p, []byte(c))
}

func (rfs *rootFs) Stat(p string) (os.FileInfo, error) {
	return os.Lstat(filepath.Join(rfs.root, p))
}

func TestStore_Open(t *testing.T) {
	g := Goblin(t)

	g.Describe("Open", func() {
		g.It("creates the bucket directory for the origin", func() {
			s, _ := NewStore(nil)
			defer s.Close()

			st, err := os.Stat(s.Path())
			g.Assert(err).IsNil()
			g.Assert(st.IsDir()).IsTrue()
			g.Assert(filepath.Base(s.Path())).Equal("https_example.com")
		})

		g.It("returns a root directory handle", func() {
			s, _ := NewStore(nil)
			defer s.Close()

			root := s.Root()
			g.Assert(root.Path()).Equal(".")
			g.Assert(root.Name()).Equal("")
			g.Assert(string(root.Kind())).Equal("directory")
		})
	})
}

func TestStore_Clear(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)

	g.Describe("Clear", func() {
		g.It("removes every entry but keeps the bucket root", func() {
			g.Assert(rfs.CreateFileFromString("a.txt", "one")).IsNil()
			g.Assert(rfs.CreateFileFromString("dir/b.txt", "two")).IsNil()

			g.Assert(s.Clear()).IsNil()

			entries, err := os.ReadDir(s.Path())
			g.Assert(err).IsNil()
			g.Assert(len(entries)).Equal(0)
			g.Assert(s.CachedUsage()).Equal(int64(0))
		})
	})
}

func TestStore_Estimate(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(&Config{MaxSize: 1024})

	g.Describe("Estimate", func() {
		g.It("reports usage and the configured quota", func() {
			g.Assert(rfs.CreateFileFromString("data.bin", "0123456789")).IsNil()

			est, err := s.Estimate(false)
			g.Assert(err).IsNil()
			g.Assert(est.Usage).Equal(int64(10))
			g.Assert(est.Quota).Equal(int64(1024))
		})
	})
}

func TestStore_DirectorySize(t *testing.T) {
	g := Goblin(t)
	s, rfs := NewStore(nil)

	g.Describe("DirectorySize", func() {
		g.It("sums regular files recursively", func() {
			g.Assert(rfs.CreateFileFromString("one.txt", "12345")).IsNil()
			g.Assert(rfs.CreateFileFromString("sub/two.txt", "1234567890")).IsNil()

			size, err := s.DirectorySize(".")
			g.Assert(err).IsNil()
			g.Assert(size).Equal(int64(15))
		})

		g.It("ignores staged writable sessions", func() {
			g.Assert(rfs.CreateFileFromString(stagePrefix+"abc", "staged data")).IsNil()

			size, err := s.DirectorySize(".")
			g.Assert(err).IsNil()
			g.Assert(size).Equal(int64(15))
		})
	})
}

func TestStore_IsIgnored(t *testing.T) {
	g := Goblin(t)
	s, _ := NewStore(&Config{Denylist: []string{"*.secret", "private/"}})

	g.Describe("IsIgnored", func() {
		g.It("rejects entries matching the denylist", func() {
			err := s.IsIgnored("token.secret")
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDenylistFile)).IsTrue()

			err = s.IsIgnored("private/keys.txt")
			g.Assert(err).IsNotNil()
			g.Assert(IsErrorCode(err, ErrCodeDenylistFile)).IsTrue()
		})

		g.It("lets everything else through", func() {
			g.Assert(s.IsIgnored("notes.txt", "public/readme.md")).IsNil()
		})
	})
}
