package originfs

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"emperror.dev/errors"
	"github.com/juju/ratelimit"
	"github.com/karrick/godirwalk"
	"github.com/klauspost/pgzip"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/originfs/originfs/internal/pfs"
	"github.com/originfs/originfs/internal/progress"
)

const memory = 4 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, memory)
		return b
	},
}

// TarProgress routes file contents through a progress tracker on their
// way into a tar stream.
type TarProgress struct {
	*tar.Writer
	p *progress.Progress
}

func NewTarProgress(w *tar.Writer, p *progress.Progress) *TarProgress {
	if p != nil {
		p.Writer = w
	}
	return &TarProgress{
		Writer: w,
		p:      p,
	}
}

func (p *TarProgress) Write(v []byte) (int, error) {
	if p.p == nil {
		return p.Writer.Write(v)
	}
	return p.p.Write(v)
}

// Archive exports an origin's tree, or a selection of it, as a gzipped
// tarball.
type Archive struct {
	store *Store

	// Ignore is a gitignore-style pattern block of entries to leave out
	// of the archive.
	Ignore string

	// Files restricts the archive to the given root-relative paths,
	// taking priority over Ignore when set.
	Files []string

	// Progress, when set, tracks the number of bytes written into the
	// archive.
	Progress *progress.Progress
}

// Export streams a gzipped tarball of the origin's entire tree to dst.
// Staging files from uncommitted write sessions and denylisted entries
// are left out.
func (s *Store) Export(ctx context.Context, dst io.Writer, p *progress.Progress) error {
	a := &Archive{store: s, Progress: p}
	return a.Stream(ctx, dst)
}

// Create writes the archive to a file at dst on the host filesystem,
// outside of the origin's bucket.
func (a *Archive) Create(ctx context.Context, dst string) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return a.Stream(ctx, f)
}

// Stream writes the archive to the given writer, honoring the write
// rate limit and compression level from the store's configuration.
func (a *Archive) Stream(ctx context.Context, w io.Writer) error {
	// Wrap the destination in a token bucket limiter when a write limit
	// is configured, with a capacity of writeLimit MiB refilled at
	// writeLimit MiB/s.
	if writeLimit := int64(a.store.cfg.Export.WriteLimit * 1024 * 1024); writeLimit > 0 {
		w = ratelimit.Writer(w, ratelimit.NewBucketWithRate(float64(writeLimit), writeLimit))
	}

	var compressionLevel int
	switch a.store.cfg.Export.CompressionLevel {
	case "none":
		compressionLevel = pgzip.NoCompression
	case "best_compression":
		compressionLevel = pgzip.BestCompression
	case "best_speed":
		fallthrough
	default:
		compressionLevel = pgzip.BestSpeed
	}

	gw, _ := pgzip.NewWriterLevel(w, compressionLevel)
	_ = gw.SetConcurrency(1<<20, 1)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	pw := NewTarProgress(tw, a.Progress)

	options := &godirwalk.Options{
		FollowSymbolicLinks: false,
		Unsorted:            true,
		Callback:            a.callback(ctx, pw),
	}

	if len(a.Files) == 0 && len(a.Ignore) > 0 {
		i := ignore.CompileIgnoreLines(strings.Split(a.Ignore, "\n")...)

		options.Callback = a.callback(ctx, pw, func(_ string, rp string) error {
			if i.MatchesPath(rp) {
				return godirwalk.SkipThis
			}
			return nil
		})
	} else if len(a.Files) > 0 {
		options.Callback = a.withFilesCallback(ctx, pw)
	}

	return godirwalk.Walk(a.store.Path(), options)
}

// callback decides per entry whether it belongs in the archive and, if
// so, writes it.
func (a *Archive) callback(ctx context.Context, tw *TarProgress, opts ...func(path string, relative string) error) func(path string, de *godirwalk.Dirent) error {
	base := a.store.Path()
	return func(path string, de *godirwalk.Dirent) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Directories are materialized implicitly by the entries below
		// them, the walk itself recurses into them.
		if de.IsDir() {
			return nil
		}

		relative := filepath.ToSlash(strings.TrimPrefix(path, base+string(filepath.Separator)))

		// Uncommitted write sessions and denylisted entries never leave
		// the bucket.
		if isStagingName(de.Name()) {
			return nil
		}
		if a.store.denylist.MatchesPath(relative) {
			return nil
		}

		for _, opt := range opts {
			if err := opt(path, relative); err != nil {
				return err
			}
		}

		return a.addToArchive(path, relative, tw)
	}
}

// withFilesCallback only lets paths named in Files, or nested below
// one of them, through to the archive.
func (a *Archive) withFilesCallback(ctx context.Context, tw *TarProgress) func(path string, de *godirwalk.Dirent) error {
	base := a.store.Path()
	return a.callback(ctx, tw, func(_ string, rp string) error {
		for _, f := range a.Files {
			f = filepath.ToSlash(strings.TrimPrefix(f, base+string(filepath.Separator)))
			if rp != f && !strings.HasPrefix(strings.TrimSuffix(rp, "/")+"/", strings.TrimSuffix(f, "/")+"/") {
				continue
			}
			return nil
		}
		return godirwalk.SkipThis
	})
}

// addToArchive writes a single entry into the tar stream.
func (a *Archive) addToArchive(p string, rp string, w *TarProgress) error {
	// Lstat so a symlink is archived as a link rather than pulling in
	// whatever it points at, which may live outside the bucket.
	s, err := os.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapIff(err, "failed executing os.Lstat on '%s'", rp)
	}

	// archive/tar cannot represent sockets.
	if s.Mode()&pfs.ModeSocket != 0 {
		return nil
	}

	var target string
	if s.Mode()&pfs.ModeSymlink != 0 {
		// A broken or unreadable symlink is dropped from the archive
		// rather than failing the whole export.
		target, err = os.Readlink(p)
		if err != nil {
			if !os.IsNotExist(err) {
				a.store.error(err).WithField("path", rp).Warn("failed reading symlink for target path; skipping...")
			}
			return nil
		}
	}

	header, err := tar.FileInfoHeader(s, filepath.ToSlash(target))
	if err != nil {
		return errors.WrapIff(err, "failed to get tar#FileInfoHeader for '%s'", rp)
	}

	if s.Mode()&pfs.ModeSymlink == 0 {
		header.Name = rp
	}

	if err := w.WriteHeader(header); err != nil {
		return errors.WrapIff(err, "failed to write tar#FileInfoHeader for '%s'", rp)
	}

	// Symlinks and empty files carry no data.
	if header.Size < 1 {
		return nil
	}

	var buf []byte
	if header.Size < memory {
		buf = make([]byte, header.Size)
	} else {
		buf = bufPool.Get().([]byte)
		defer func() {
			buf = make([]byte, memory)
			bufPool.Put(buf)
		}()
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapIff(err, "failed to open '%s' for copying", header.Name)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(w, io.LimitReader(f, header.Size), buf); err != nil {
		return errors.WrapIff(err, "failed to copy '%s' to archive", header.Name)
	}

	return nil
}
