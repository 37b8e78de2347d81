package originfs

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/creasty/defaults"
	"github.com/gabriel-vasile/mimetype"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/originfs/originfs/internal/pfs"
	"github.com/originfs/originfs/internal/system"
)

// Store is the private storage bucket of a single origin. All entry
// paths are relative to the bucket root and can never resolve outside
// of it, even through symlinks.
type Store struct {
	mu sync.RWMutex

	cfg *Config
	fs  *pfs.Quota

	lastLookupTime    *usageLookupTime
	lookupInProgress  *system.AtomicBool
	diskCheckInterval time.Duration

	denylist *ignore.GitIgnore
	perms    *permissionCache
	locks    *lockTable
}

// Open opens (creating if necessary) the storage bucket for the origin
// described by cfg.
func Open(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = new(Config)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "originfs: failed to apply configuration defaults")
	}

	bucket := cfg.bucketName()
	if bucket == "" {
		bucket = "default"
	}
	root := filepath.Join(cfg.BaseDirectory, bucket)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "originfs: failed to create origin root directory")
	}

	fs, err := pfs.NewFS(root, cfg.UseOpenat2)
	if err != nil {
		return nil, err
	}
	quota := pfs.NewQuota(fs, cfg.MaxSize)
	// Usage starts out unknown; the first estimate or space check walks
	// the tree and fills it in.
	quota.SetUsage(-1)

	return &Store{
		cfg:               cfg,
		fs:                quota,
		lastLookupTime:    &usageLookupTime{},
		lookupInProgress:  system.NewAtomicBool(false),
		diskCheckInterval: time.Duration(cfg.DiskCheckInterval),
		denylist:          ignore.CompileIgnoreLines(cfg.Denylist...),
		perms:             newPermissionCache(cfg.PermissionHandler, time.Duration(cfg.PermissionTTL)*time.Second),
		locks:             newLockTable(),
	}, nil
}

// Root returns a directory handle for the root of the origin's bucket.
func (s *Store) Root() *Directory {
	return &Directory{handle{store: s, path: "."}}
}

// Path returns the absolute path of the bucket root on the host.
func (s *Store) Path() string {
	return s.fs.Root()
}

// Close releases the bucket's root descriptor. Handles created from
// the store fail with ErrClosed afterwards.
func (s *Store) Close() error {
	return s.fs.Close()
}

// Clear removes every entry in the bucket and resets the tracked usage
// to zero. The bucket root itself is kept. Clearing is refused while
// any access handle is open, the same way targeted removal is.
func (s *Store) Clear() error {
	if !s.locks.empty() {
		return newStoreError(ErrCodeLocked, nil, ".")
	}
	entries, err := s.fs.ReadDir(".")
	if err != nil {
		return wrapError(err, ".")
	}
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, e := range entries {
		name := e.Name()
		g.Go(func() error {
			return s.fs.RemoveAll(name)
		})
	}
	if err := g.Wait(); err != nil {
		return wrapError(err, ".")
	}
	s.fs.SetUsage(0)
	return nil
}

// IsIgnored returns an error when any of the given paths matches the
// configured denylist.
func (s *Store) IsIgnored(paths ...string) error {
	for _, p := range paths {
		if s.denylist.MatchesPath(p) {
			return newStoreError(ErrCodeDenylistFile, nil, p)
		}
	}
	return nil
}

// checkPermission enforces a permission decision for path before an
// operation runs. Prompt counts as not granted here; callers wanting a
// decision should surface RequestPermission instead.
func (s *Store) checkPermission(p string, mode PermissionMode) error {
	if s.perms.Query(p, mode) != PermissionGranted {
		return newStoreError(ErrCodeNotAllowed, nil, p)
	}
	return nil
}

// Stat returns stat information for the given path, including the
// detected mimetype of regular files.
func (s *Store) Stat(p string) (*Stat, error) {
	st, err := s.fs.Lstat(p)
	if err != nil {
		return nil, wrapError(err, p)
	}

	m := octetStream
	switch {
	case st.IsDir():
		m = inodeDirectory
	case st.Mode().IsRegular():
		// Sniffing through an opened descriptor keeps the detection
		// inside the sandbox. Pipes are excluded above, detection on a
		// pipe blocks forever.
		if f, err := s.fs.Open(p); err == nil {
			if mt, err := mimetype.DetectReader(f); err == nil {
				m = mt.String()
			}
			_ = f.Close()
		}
	}
	return &Stat{FileInfo: st, Mimetype: m}, nil
}

// touch opens p, creating it and any missing parent directories. Opens
// hitting a busy executable are retried briefly before giving up.
func (s *Store) touch(p string, flag int) (pfs.File, error) {
	var f pfs.File
	err := backoff.Retry(func() error {
		file, err := s.fs.Touch(p, flag, 0o644)
		if err != nil {
			// ETXTBSY clears once the running executable exits.
			if errors.Is(err, unix.ETXTBSY) {
				return err
			}
			return backoff.Permanent(err)
		}
		f = file
		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3))
	if err != nil {
		return nil, wrapError(err, p)
	}
	return f, nil
}

// writeFile streams r into the file at p, charging the size difference
// against the origin quota as the data is written.
func (s *Store) writeFile(p string, r io.Reader, flag int) error {
	if err := s.IsIgnored(p); err != nil {
		return err
	}

	var currentSize int64
	st, err := s.fs.Lstat(p)
	if err != nil && !errors.Is(err, pfs.ErrNotExist) {
		return wrapError(err, p)
	} else if err == nil {
		if st.IsDir() {
			return errors.WithStack(newStoreError(ErrCodeIsDirectory, nil, p))
		}
		if flag&pfs.O_TRUNC != 0 {
			currentSize = st.Size()
		}
	}

	// The size of the incoming stream is unknown up front, so only the
	// overall space state is checked here and the exact delta is
	// charged once the copy finishes.
	if err := s.HasSpaceErr(true); err != nil {
		return err
	}

	file, err := s.touch(p, flag)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := pfs.NewCountedWriter(file)
	if _, err := io.Copy(cw, r); err != nil {
		return wrapError(err, p)
	}
	s.addDisk(cw.BytesWritten() - currentSize)
	return nil
}

// findCopySuffix generates a unique "name copy.ext" style filename in
// dir, trying numbered suffixes before falling back to a timestamp.
func (s *Store) findCopySuffix(dir string, name string, extension string) (string, error) {
	var i int
	suffix := " copy"

	for i = 0; i < 51; i++ {
		if i > 0 {
			suffix = " copy " + strconv.Itoa(i)
		}

		n := name + suffix + extension
		if _, err := s.fs.Lstat(path.Join(dir, n)); err != nil {
			if !errors.Is(err, pfs.ErrNotExist) {
				return "", wrapError(err, path.Join(dir, n))
			}
			break
		}

		if i == 50 {
			suffix = "copy." + strings.ReplaceAll(time.Now().Format(time.RFC3339), ":", "")
		}
	}

	return name + suffix + extension, nil
}
